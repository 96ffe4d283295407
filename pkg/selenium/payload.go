package selenium

import "net/url"

type Payload map[string]any

type Value map[string]any

const empty string = ""

func (s Payload) GetSessionId() (string, bool) {
	if sessionId, ok := s["sessionId"].(string); ok {
		return sessionId, true
	}

	if value, ok := s["value"]; ok {
		if vm, ok := value.(map[string]any); ok {
			if sessionId, ok := vm["sessionId"].(string); ok {
				return sessionId, true
			}
		}
	}

	return empty, false
}

// GetValue returns the value member of a command response.
func (s Payload) GetValue() (any, bool) {
	value, ok := s["value"]
	return value, ok
}

// GetError returns the W3C error carried by a failed command response.
func (s Payload) GetError() (*SeleniumError, bool) {
	value, ok := s["value"].(map[string]any)
	if !ok {
		return nil, false
	}

	name, ok := value["error"].(string)
	if !ok || name == empty {
		return nil, false
	}

	se := &SeleniumError{}
	se.Value.Name = name
	se.Value.Message, _ = value["message"].(string)
	if se.Value.Message == empty {
		se.Value.Message = name
	}
	return se, true
}

// GetWebSocketURL returns the BiDi endpoint of a new session response.
func (s Payload) GetWebSocketURL() (string, bool) {
	return getCapsPropString("webSocketUrl", s)
}

// UpdateBiDiURL points the BiDi endpoint of a new session response at
// scheme://host, keeping its path. It reports whether the payload changed.
func UpdateBiDiURL(scheme, host string, payload Payload) bool {
	wsURL, ok := payload.GetWebSocketURL()
	if !ok {
		return false
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		return false
	}
	u.Scheme = scheme
	u.Host = host
	u.User = nil

	caps := payload["value"].(map[string]any)["capabilities"].(map[string]any)
	caps[webSocketUrl] = u.String()
	return true
}

func getCapsPropString(propName string, payload Payload) (string, bool) {
	rawValue, ok := payload["value"]
	if !ok {
		return empty, false
	}

	value, ok := rawValue.(map[string]any)
	if !ok {
		return empty, false
	}

	rawCaps, ok := value["capabilities"]
	if !ok {
		return empty, false
	}

	caps, ok := rawCaps.(map[string]any)
	if !ok {
		return empty, false
	}

	prop, ok := caps[propName].(string)
	if !ok || prop == empty {
		return empty, false
	}

	return prop, true
}
