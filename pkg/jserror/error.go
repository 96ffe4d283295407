// Package jserror holds the normalized form of a JavaScript error captured
// in the browser by the collector extension.
package jserror

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Keys of a raw error record as produced by the in-page buffer.
const (
	KeyErrorCategory = "errorCategory"
	KeyErrorMessage  = "errorMessage"
	KeyURL           = "url"
	KeySourceName    = "sourceName"
	KeyLineNumber    = "lineNumber"
	KeyColumnNumber  = "columnNumber"
	KeyConsole       = "console"
	KeyStack         = "stack"
)

// Category flags reported by the browser console service.
const (
	FlagError     = 0
	FlagWarning   = 1
	FlagException = 2
	FlagStrict    = 4
	FlagInfo      = 8
)

const (
	CategoryError     = "Error"
	CategoryWarning   = "Warning"
	CategoryException = "Exception"
	CategoryStrict    = "Strict"
	CategoryInfo      = "Info"
)

const null = "null"

// Error is a single JavaScript error. It is immutable once parsed.
type Error struct {
	category     *string
	message      *string
	url          *string
	sourceName   *string
	lineNumber   *int
	columnNumber *int
	console      *string
	stack        *string
}

// Errors is an ordered list of errors as returned by one drain.
type Errors []Error

// Parse builds an Error from a raw record. It never fails: missing or
// wrong-typed fields are left absent.
func Parse(raw map[string]any) Error {
	if raw == nil {
		return Error{}
	}

	return Error{
		category:     fromFlag(raw[KeyErrorCategory]),
		message:      stringField(raw, KeyErrorMessage),
		url:          stringField(raw, KeyURL),
		sourceName:   stringField(raw, KeySourceName),
		lineNumber:   intField(raw, KeyLineNumber),
		columnNumber: intField(raw, KeyColumnNumber),
		console:      stringField(raw, KeyConsole),
		stack:        stringField(raw, KeyStack),
	}
}

// fromFlag maps the low byte of a numeric category flag to its name.
// Values that cannot be read as a number fall back to their text form,
// nil stays nil.
func fromFlag(v any) *string {
	flag, err := byteValue(v)
	if err != nil {
		if v != nil {
			s := fmt.Sprint(v)
			return &s
		}
		return nil
	}

	var name string
	switch flag {
	case FlagError:
		name = CategoryError
	case FlagWarning:
		name = CategoryWarning
	case FlagException:
		name = CategoryException
	case FlagStrict:
		name = CategoryStrict
	case FlagInfo:
		name = CategoryInfo
	default:
		name = CategoryError
	}
	return &name
}

func byteValue(v any) (int8, error) {
	n, err := int64Value(v)
	if err != nil {
		return 0, err
	}
	return int8(n), nil
}

func int64Value(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func stringField(raw map[string]any, key string) *string {
	s, ok := raw[key].(string)
	if !ok {
		return nil
	}
	return &s
}

// intField reads key only when present. A present value that is not a
// number collapses to absent. Integers wrap to 32 bits, floats saturate.
func intField(raw map[string]any, key string) *int {
	v, ok := raw[key]
	if !ok {
		return nil
	}

	var i int
	switch f := v.(type) {
	case float64:
		i = saturate(f)
	case float32:
		i = saturate(float64(f))
	case json.Number:
		if n, err := f.Int64(); err == nil {
			i = int(int32(n))
			break
		}
		fl, err := f.Float64()
		if err != nil {
			return nil
		}
		i = saturate(fl)
	default:
		n, err := int64Value(v)
		if err != nil {
			return nil
		}
		i = int(int32(n))
	}
	return &i
}

func saturate(f float64) int {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int(int32(f))
}

func (e Error) Category() string   { return deref(e.category) }
func (e Error) Message() string    { return deref(e.message) }
func (e Error) URL() string        { return deref(e.url) }
func (e Error) SourceName() string { return deref(e.sourceName) }
func (e Error) Console() string    { return deref(e.console) }
func (e Error) Stack() string      { return deref(e.stack) }

func (e Error) LineNumber() (int, bool) {
	if e.lineNumber == nil {
		return 0, false
	}
	return *e.lineNumber, true
}

func (e Error) ColumnNumber() (int, bool) {
	if e.columnNumber == nil {
		return 0, false
	}
	return *e.columnNumber, true
}

// Has reports whether the field stored under the raw record key is present.
func (e Error) Has(key string) bool {
	switch key {
	case KeyErrorCategory:
		return e.category != nil
	case KeyErrorMessage:
		return e.message != nil
	case KeyURL:
		return e.url != nil
	case KeySourceName:
		return e.sourceName != nil
	case KeyLineNumber:
		return e.lineNumber != nil
	case KeyColumnNumber:
		return e.columnNumber != nil
	case KeyConsole:
		return e.console != nil
	case KeyStack:
		return e.stack != nil
	}
	return false
}

func (e Error) Equal(o Error) bool {
	return eqString(e.category, o.category) &&
		eqString(e.message, o.message) &&
		eqString(e.url, o.url) &&
		eqString(e.sourceName, o.sourceName) &&
		eqInt(e.lineNumber, o.lineNumber) &&
		eqInt(e.columnNumber, o.columnNumber) &&
		eqString(e.console, o.console) &&
		eqString(e.stack, o.stack)
}

// Hash combines all fields. Absent and present-but-empty values hash
// differently.
func (e Error) Hash() uint64 {
	d := xxhash.New()
	for _, s := range []*string{e.category, e.console, e.message} {
		hashString(d, s)
	}
	hashInt(d, e.lineNumber)
	hashInt(d, e.columnNumber)
	for _, s := range []*string{e.url, e.stack, e.sourceName} {
		hashString(d, s)
	}
	return d.Sum64()
}

func hashString(d *xxhash.Digest, s *string) {
	if s == nil {
		d.Write([]byte{0})
		return
	}
	d.Write([]byte{1})
	d.WriteString(strconv.Itoa(len(*s)))
	d.Write([]byte{':'})
	d.WriteString(*s)
}

func hashInt(d *xxhash.Digest, i *int) {
	if i == nil {
		d.Write([]byte{0})
		return
	}
	d.Write([]byte{1})
	d.WriteString(strconv.Itoa(*i))
	d.Write([]byte{';'})
}

// String renders the error as
//
//	[category]: "message" @sourceName:line:column (URL: url)
//	Stack: stack
//	Console: console
//
// leaving out the parts that are absent.
func (e Error) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]: \"%s\"", orNull(e.category), orNull(e.message))
	if e.sourceName != nil && *e.sourceName != "" {
		b.WriteString(" @")
		b.WriteString(*e.sourceName)
		if e.lineNumber != nil {
			b.WriteString(":")
			b.WriteString(strconv.Itoa(*e.lineNumber))
		}
		if e.columnNumber != nil {
			b.WriteString(":")
			b.WriteString(strconv.Itoa(*e.columnNumber))
		}
	}
	if e.url != nil {
		fmt.Fprintf(&b, " (URL: %s)", *e.url)
	}
	if e.stack != nil {
		b.WriteString("\nStack: ")
		b.WriteString(strings.TrimSpace(*e.stack))
	}
	if e.console != nil {
		b.WriteString("\nConsole: ")
		b.WriteString(*e.console)
	}
	return b.String()
}

// MarshalJSON writes the error back using the raw record keys, omitting
// absent fields. The category is written as text.
func (e Error) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 8)
	putString(m, KeyErrorCategory, e.category)
	putString(m, KeyErrorMessage, e.message)
	putString(m, KeyURL, e.url)
	putString(m, KeySourceName, e.sourceName)
	putString(m, KeyConsole, e.console)
	putString(m, KeyStack, e.stack)
	if e.lineNumber != nil {
		m[KeyLineNumber] = *e.lineNumber
	}
	if e.columnNumber != nil {
		m[KeyColumnNumber] = *e.columnNumber
	}
	return json.Marshal(m)
}

func (e *Error) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode error record: %w", err)
	}
	*e = Parse(raw)
	return nil
}

// String renders the list the same way for expected and actual values so
// whole drains can be compared as text.
func (errs Errors) String() string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (errs Errors) Equal(o Errors) bool {
	if len(errs) != len(o) {
		return false
	}
	for i := range errs {
		if !errs[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

func putString(m map[string]any, key string, s *string) {
	if s != nil {
		m[key] = *s
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orNull(s *string) string {
	if s == nil {
		return null
	}
	return *s
}

func eqString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
