package selenium

type Status struct {
	Value Value `json:"value"`
}

func (s *Status) Set(msg string, ready bool) {
	s.Value = map[string]any{
		"message": msg,
		"ready":   ready,
	}
}

// SetCollector reports whether new sessions get the named collector
// extension registered and for which browsers.
func (s *Status) SetCollector(name string, inject bool, browsers []string) {
	if s.Value == nil {
		s.Value = map[string]any{}
	}
	if browsers == nil {
		browsers = []string{}
	}
	s.Value["collector"] = map[string]any{
		"name":     name,
		"inject":   inject,
		"browsers": browsers,
	}
}
