package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alcounit/jserrorcollector/pkg/jserror"
	"github.com/fatih/color"
)

const (
	outputText = "text"
	outputJSON = "json"
)

var categoryColors = map[string]*color.Color{
	jserror.CategoryError:     color.New(color.FgRed),
	jserror.CategoryException: color.New(color.FgRed, color.Bold),
	jserror.CategoryWarning:   color.New(color.FgYellow),
	jserror.CategoryStrict:    color.New(color.FgMagenta),
	jserror.CategoryInfo:      color.New(color.FgCyan),
}

var faint = color.New(color.Faint)

func validateOutput(format string) error {
	switch format {
	case outputText, outputJSON:
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}

func printErrors(w io.Writer, format string, errs jserror.Errors) error {
	if format == outputJSON {
		if errs == nil {
			errs = jserror.Errors{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(errs)
	}

	if len(errs) == 0 {
		_, err := faint.Fprintln(w, "no javascript errors")
		return err
	}

	for _, e := range errs {
		if _, err := fmt.Fprintln(w, colorize(e)); err != nil {
			return err
		}
	}
	return nil
}

// colorize renders e with its category label colored.
func colorize(e jserror.Error) string {
	name := "null"
	if e.Has(jserror.KeyErrorCategory) {
		name = e.Category()
	}

	label := "[" + name + "]"
	text := e.String()

	c, ok := categoryColors[name]
	if !ok || !strings.HasPrefix(text, label) {
		return text
	}
	return c.Sprint(label) + strings.TrimPrefix(text, label)
}
