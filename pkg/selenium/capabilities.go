package selenium

import (
	"fmt"

	"dario.cat/mergo"
)

var (
	browserName         = "browserName"
	browserVersion      = "browserVersion"
	version             = "version"
	capabilities        = "capabilities"
	desiredCapabilities = "desiredCapabilities"
	alwaysMatch         = "alwaysMatch"
	firstMatch          = "firstMatch"
	deviceName          = "deviceName"
	webSocketUrl        = "webSocketUrl"
)

type Capabilities map[string]any

// Flatten reduces a new session request body, W3C or legacy, to a single
// flat set of capabilities: alwaysMatch merged with the first firstMatch
// entry, or desiredCapabilities. Flat capabilities are returned as a copy.
func (c Capabilities) Flatten() (Capabilities, error) {
	var (
		baseCaps   Capabilities
		alwaysCaps Capabilities
		firstCaps  []Capabilities
	)

	if dc, ok := c[desiredCapabilities].(map[string]any); ok {
		baseCaps = Capabilities(dc).DeepCopy()
	}

	rawCaps, ok := c[capabilities].(map[string]any)
	if !ok && baseCaps == nil {
		return c.DeepCopy(), nil
	}

	if ok {
		if ac, ok := rawCaps[alwaysMatch].(map[string]any); ok {
			alwaysCaps = Capabilities(ac).DeepCopy()
		}
		if fm, ok := rawCaps[firstMatch].([]any); ok {
			for _, f := range fm {
				if fmMap, ok := f.(map[string]any); ok {
					firstCaps = append(firstCaps, Capabilities(fmMap).DeepCopy())
				}
			}
		}
	}

	if alwaysCaps != nil && (baseCaps == nil || baseCaps[browserName] == nil) {
		baseCaps = alwaysCaps
	}

	if baseCaps == nil {
		baseCaps = Capabilities{}
	}

	if len(firstCaps) == 0 {
		return baseCaps, nil
	}

	if err := mergo.Merge(&baseCaps, firstCaps[0], mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge capabilities: %w", err)
	}

	return baseCaps, nil
}

// Merge copies other into c, values of other taking precedence.
func (c Capabilities) Merge(other Capabilities) error {
	if err := mergo.Merge(&c, other.DeepCopy(), mergo.WithOverride); err != nil {
		return fmt.Errorf("merge capabilities: %w", err)
	}
	return nil
}

// Targets returns the capability sets of a new session request that take
// vendor options under key: legacy desiredCapabilities, and the W3C sets
// already holding key, or alwaysMatch when none does. A missing alwaysMatch
// is created. Flat capabilities are their own target.
func (c Capabilities) Targets(key string) []map[string]any {
	var targets []map[string]any

	if dc, ok := c[desiredCapabilities].(map[string]any); ok {
		targets = append(targets, dc)
	}

	rawCaps, ok := c[capabilities].(map[string]any)
	if !ok {
		if len(targets) == 0 {
			return []map[string]any{c}
		}
		return targets
	}

	found := false
	if fm, ok := rawCaps[firstMatch].([]any); ok {
		for _, f := range fm {
			if m, ok := f.(map[string]any); ok && m[key] != nil {
				targets = append(targets, m)
				found = true
			}
		}
	}

	am, ok := rawCaps[alwaysMatch].(map[string]any)
	if !ok {
		if found {
			return targets
		}
		am = map[string]any{}
		rawCaps[alwaysMatch] = am
	}
	if !found || am[key] != nil {
		targets = append(targets, am)
	}

	return targets
}

// EnableBiDi asks the remote end to expose a BiDi endpoint for the session.
func (c Capabilities) EnableBiDi() {
	c[webSocketUrl] = true
}

func (c Capabilities) GetBrowserName() string {
	if bn, ok := c[browserName].(string); ok {
		return bn
	}

	if dn, ok := c[deviceName].(string); ok {
		return dn
	}
	return ""
}

func (c Capabilities) GetBrowserVersion() string {
	if bv, ok := c[browserVersion].(string); ok {
		return bv
	}
	if v, ok := c[version].(string); ok {
		return v
	}
	return ""
}

// W3C wraps flat capabilities into a new session request body.
func (c Capabilities) W3C() map[string]any {
	return map[string]any{
		capabilities: map[string]any{
			alwaysMatch: map[string]any(c.DeepCopy()),
		},
	}
}

func (c Capabilities) DeepCopy() Capabilities {
	result := make(Capabilities, len(c))
	for k, v := range c {
		result[k] = deepCopyValue(v)
	}
	return result
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case Capabilities:
		return val.DeepCopy()
	case map[string]any:
		cp := make(map[string]any, len(val))
		for kk, vv := range val {
			cp[kk] = deepCopyValue(vv)
		}
		return cp
	case []any:
		cp := make([]any, len(val))
		for i, vv := range val {
			cp[i] = deepCopyValue(vv)
		}
		return cp
	default:
		return val
	}
}
