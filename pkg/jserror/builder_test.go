package jserror

import "fmt"

type errorBuilder struct {
	data map[string]any
}

func newErrorBuilder() *errorBuilder {
	return &errorBuilder{data: map[string]any{}}
}

func (b *errorBuilder) errorCategory(category any) *errorBuilder {
	b.data[KeyErrorCategory] = category
	return b
}

func (b *errorBuilder) errorMessage(message string) *errorBuilder {
	b.data[KeyErrorMessage] = message
	return b
}

func (b *errorBuilder) source(sourceName string) *errorBuilder {
	b.data[KeySourceName] = sourceName
	return b
}

func (b *errorBuilder) url(url string) *errorBuilder {
	b.data[KeyURL] = url
	return b
}

func (b *errorBuilder) sourceAndURL(url string) *errorBuilder {
	return b.source(url).url(url)
}

func (b *errorBuilder) lineNumber(line int) *errorBuilder {
	b.data[KeyLineNumber] = line
	return b
}

func (b *errorBuilder) columnNumber(column int) *errorBuilder {
	b.data[KeyColumnNumber] = column
	return b
}

func (b *errorBuilder) console(console string) *errorBuilder {
	b.data[KeyConsole] = console
	return b
}

// build sets a stack pointing at the error position, the way a browser
// reports a single-frame stack.
func (b *errorBuilder) build() Error {
	b.data[KeyStack] = fmt.Sprintf("@%v:%v:%v", nullable(b.data[KeySourceName]), nullable(b.data[KeyLineNumber]), nullable(b.data[KeyColumnNumber]))
	return Parse(b.data)
}

// nullable renders an unset fixture field as null.
func nullable(v any) any {
	if v == nil {
		return null
	}
	return v
}

func (b *errorBuilder) buildWithStack(stack string) Error {
	b.data[KeyStack] = stack
	return Parse(b.data)
}

func (b *errorBuilder) raw() map[string]any {
	cp := make(map[string]any, len(b.data))
	for k, v := range b.data {
		cp[k] = v
	}
	return cp
}
