package bidi

import (
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// decodeRemoteValue converts a serialized script.RemoteValue to plain Go
// values, shaped like a JSON decode: objects and maps become
// map[string]any, arrays and sets become []any. Integral numbers are
// returned as int64. Values without a serialization, such as functions or
// nodes, decode to nil.
func decodeRemoteValue(v gjson.Result) any {
	value := v.Get("value")

	switch v.Get("type").String() {
	case "undefined", "null":
		return nil

	case "string":
		return value.String()

	case "boolean":
		return value.Bool()

	case "bigint":
		return value.String()

	case "number":
		return decodeNumber(value)

	case "array", "set":
		if !value.IsArray() {
			return nil
		}
		items := value.Array()
		list := make([]any, len(items))
		for i, item := range items {
			list[i] = decodeRemoteValue(item)
		}
		return list

	case "object", "map":
		if !value.IsArray() {
			return nil
		}
		m := map[string]any{}
		for _, pair := range value.Array() {
			entry := pair.Array()
			if len(entry) != 2 {
				continue
			}
			m[decodeKey(entry[0])] = decodeRemoteValue(entry[1])
		}
		return m
	}

	return nil
}

func decodeKey(k gjson.Result) string {
	if k.Type == gjson.String {
		return k.String()
	}
	return fmt.Sprint(decodeRemoteValue(k))
}

func decodeNumber(value gjson.Result) any {
	if value.Type == gjson.String {
		switch value.String() {
		case "NaN":
			return math.NaN()
		case "-0":
			return math.Copysign(0, -1)
		case "Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		return nil
	}

	if !strings.ContainsAny(value.Raw, ".eE") {
		return value.Int()
	}
	return value.Float()
}
