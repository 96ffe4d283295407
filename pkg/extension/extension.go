// Package extension ships the browser extension that fills the in-page
// error buffer. The bundle is opaque to the rest of the module: the only
// contract is the JSErrorCollector_errors global and its pump function,
// configured by the console level global that config.js sets.
package extension

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"

	"github.com/klauspost/compress/zip"
)

const (
	Name = "JSErrorCollector"
	ID   = "jserrorcollector@jsourcerer.net"

	ManifestFile = "manifest.json"
	ConfigFile   = "config.js"
	ScriptFile   = "collector.js"

	// ConsoleLevelGlobal is read by the collector when it wraps the console.
	ConsoleLevelGlobal = Name + "_consoleLevel"

	DefaultConsoleLevel = "all"
)

// ConsoleLevels lists the accepted console capture levels. A level captures
// the console methods of the same or a higher severity.
var ConsoleLevels = []string{"all", "debug", "log", "info", "warn", "error", "none"}

var (
	ErrResourceNotFound    = errors.New("extension resource not found")
	ErrInvalidConsoleLevel = errors.New("invalid console level")
)

type config struct {
	consoleLevel string
}

type Option func(*config)

// WithConsoleLevel sets the lowest console level whose lines are attached
// to the next recorded error.
func WithConsoleLevel(level string) Option {
	return func(c *config) {
		c.consoleLevel = level
	}
}

func newConfig(opts []Option) (*config, error) {
	c := &config{consoleLevel: DefaultConsoleLevel}
	for _, opt := range opts {
		opt(c)
	}
	if c.consoleLevel == "" {
		c.consoleLevel = DefaultConsoleLevel
	}
	if err := ValidateConsoleLevel(c.consoleLevel); err != nil {
		return nil, err
	}
	return c, nil
}

func ValidateConsoleLevel(level string) error {
	for _, l := range ConsoleLevels {
		if l == level {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidConsoleLevel, level)
}

func (c *config) script() []byte {
	return []byte("window." + ConsoleLevelGlobal + " = " + strconv.Quote(c.consoleLevel) + ";\n")
}

//go:embed bundle
var files embed.FS

var bundle = mustSub(files, "bundle")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Bundle returns the extension files rooted at the manifest.
func Bundle() fs.FS {
	return bundle
}

// Script returns the configuration and content scripts as one source, for
// bridges that inject it into new documents instead of installing the
// extension.
func Script(opts ...Option) (string, error) {
	return script(bundle, opts...)
}

func script(fsys fs.FS, opts ...Option) (string, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return "", err
	}

	data, err := fs.ReadFile(fsys, ScriptFile)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrResourceNotFound, ScriptFile, err)
	}
	return string(cfg.script()) + string(data), nil
}

// WriteXPI writes the bundle as an installable zip archive. Firefox installs
// it as an XPI and ChromeDriver accepts it as a packed extension.
func WriteXPI(w io.Writer, opts ...Option) error {
	return writeXPI(w, bundle, opts...)
}

func writeXPI(w io.Writer, fsys fs.FS, opts ...Option) error {
	cfg, err := newConfig(opts)
	if err != nil {
		return err
	}
	if _, err := fs.Stat(fsys, ManifestFile); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrResourceNotFound, ManifestFile, err)
	}

	zw := zip.NewWriter(w)
	err = walkFiles(fsys, cfg, func(name string, data []byte) error {
		f, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = f.Write(data)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("pack extension: %w", err)
	}

	return zw.Close()
}

// walkFiles calls fn for every bundle file, with the configuration script
// generated from cfg.
func walkFiles(fsys fs.FS, cfg *config, fn func(name string, data []byte) error) error {
	return fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		if name == ConfigFile {
			return fn(name, cfg.script())
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		return fn(name, data)
	})
}
