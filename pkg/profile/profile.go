// Package profile registers the collector extension with the browser
// profile of a WebDriver session. Registration must happen before the
// session is created; sessions started without it read no errors.
package profile

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/alcounit/jserrorcollector/pkg/extension"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/firefox"
)

const (
	Firefox = "firefox"
	Chrome  = "chrome"
)

var ErrUnsupportedBrowser = errors.New("unsupported browser")

// extensionPath is the location of the collector in a Firefox profile.
var extensionPath = "extensions/" + extension.ID + ".xpi"

type config struct {
	fs         afero.Fs
	profileDir string
	extension  []extension.Option
}

type Option func(*config)

// WithFs sets the filesystem the base Firefox profile is read from.
func WithFs(fs afero.Fs) Option {
	return func(c *config) {
		c.fs = fs
	}
}

// WithProfileDir adds the collector to a copy of an existing Firefox
// profile instead of an empty one.
func WithProfileDir(dir string) Option {
	return func(c *config) {
		c.profileDir = dir
	}
}

// WithConsoleLogLevel sets the lowest console level the extension attaches
// to errors.
func WithConsoleLogLevel(level string) Option {
	return func(c *config) {
		c.extension = append(c.extension, extension.WithConsoleLevel(level))
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		fs: afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func normalize(browserName string) string {
	switch strings.ToLower(browserName) {
	case Firefox:
		return Firefox
	case Chrome, "chromium", "googlechrome":
		return Chrome
	}
	return ""
}

// OptionsKey returns the capability holding the vendor options of the named
// browser.
func OptionsKey(browserName string) (string, error) {
	switch normalize(browserName) {
	case Firefox:
		return firefox.CapabilitiesKey, nil
	case Chrome:
		return chrome.CapabilitiesKey, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedBrowser, browserName)
}

// Add registers the extension for the named browser.
func Add(caps selenium.Capabilities, browserName string, opts ...Option) error {
	switch normalize(browserName) {
	case Firefox:
		return AddFirefox(caps, opts...)
	case Chrome:
		return AddChrome(caps, opts...)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedBrowser, browserName)
}

// AddFirefox builds a profile holding the extension as a sideloaded XPI
// and sets it on the Firefox options of caps, keeping the options already
// present.
func AddFirefox(caps selenium.Capabilities, opts ...Option) error {
	cfg := newConfig(opts)

	var buf bytes.Buffer
	if err := writeFirefoxProfile(&buf, cfg); err != nil {
		return err
	}

	ff := firefox.Capabilities{
		Profile: base64.StdEncoding.EncodeToString(buf.Bytes()),
		Prefs: map[string]interface{}{
			"xpinstall.signatures.required": false,
			"extensions.autoDisableScopes":  0,
			"extensions.enabledScopes":      15,
		},
	}

	switch existing := caps[firefox.CapabilitiesKey].(type) {
	case map[string]any:
		caps[firefox.CapabilitiesKey] = mergeFirefoxOptions(existing, ff)
		return nil
	case firefox.Capabilities:
		if err := mergo.Merge(&ff, existing); err != nil {
			return fmt.Errorf("merge firefox options: %w", err)
		}
	}

	caps.AddFirefox(ff)
	return nil
}

// mergeFirefoxOptions sets the profile and prefs of ff on decoded
// moz:firefoxOptions, keeping every other option.
func mergeFirefoxOptions(existing map[string]any, ff firefox.Capabilities) map[string]any {
	opts := make(map[string]any, len(existing)+2)
	for k, v := range existing {
		opts[k] = v
	}
	opts["profile"] = ff.Profile

	prefs := map[string]any{}
	if p, ok := existing["prefs"].(map[string]any); ok {
		for k, v := range p {
			prefs[k] = v
		}
	}
	for k, v := range ff.Prefs {
		prefs[k] = v
	}
	opts["prefs"] = prefs

	return opts
}

// writeFirefoxProfile writes the zipped profile: the base profile files,
// if any, and the collector XPI.
func writeFirefoxProfile(w io.Writer, cfg *config) error {
	zw := zip.NewWriter(w)

	if cfg.profileDir != "" {
		if err := copyProfile(zw, cfg.fs, cfg.profileDir); err != nil {
			zw.Close()
			return fmt.Errorf("copy firefox profile: %w", err)
		}
	}

	f, err := zw.Create(extensionPath)
	if err != nil {
		zw.Close()
		return fmt.Errorf("create extension file: %w", err)
	}
	if err := extension.WriteXPI(f, cfg.extension...); err != nil {
		zw.Close()
		return fmt.Errorf("write extension: %w", err)
	}

	return zw.Close()
}

func copyProfile(zw *zip.Writer, fs afero.Fs, dir string) error {
	return afero.Walk(fs, dir, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, name)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == extensionPath {
			return nil
		}

		src, err := fs.Open(name)
		if err != nil {
			return err
		}
		defer src.Close()

		dst, err := zw.Create(rel)
		if err != nil {
			return err
		}
		_, err = io.Copy(dst, src)
		return err
	})
}

// AddChrome packs the extension into the Chrome options of caps, keeping
// the options and extensions already present.
func AddChrome(caps selenium.Capabilities, opts ...Option) error {
	cfg := newConfig(opts)

	var buf bytes.Buffer
	if err := extension.WriteXPI(&buf, cfg.extension...); err != nil {
		return fmt.Errorf("pack chrome extension: %w", err)
	}

	ch := chrome.Capabilities{
		W3C:        true,
		Extensions: []string{base64.StdEncoding.EncodeToString(buf.Bytes())},
	}

	switch existing := caps[chrome.CapabilitiesKey].(type) {
	case map[string]any:
		caps[chrome.CapabilitiesKey] = mergeChromeOptions(existing, ch)
		return nil
	case chrome.Capabilities:
		if err := mergo.Merge(&ch, existing, mergo.WithAppendSlice); err != nil {
			return fmt.Errorf("merge chrome options: %w", err)
		}
	}

	caps[chrome.CapabilitiesKey] = ch
	return nil
}

// mergeChromeOptions puts the packed extensions of ch in front of the ones
// listed in decoded goog:chromeOptions.
func mergeChromeOptions(existing map[string]any, ch chrome.Capabilities) map[string]any {
	opts := make(map[string]any, len(existing)+1)
	for k, v := range existing {
		opts[k] = v
	}

	extensions := make([]any, 0, len(ch.Extensions))
	for _, e := range ch.Extensions {
		extensions = append(extensions, e)
	}
	if list, ok := existing["extensions"].([]any); ok {
		extensions = append(extensions, list...)
	}
	opts["extensions"] = extensions

	return opts
}
