package selenium

import (
	"encoding/json"
	"testing"
)

func TestStatusSet(t *testing.T) {
	s := Status{}
	s.Set("jserrors ready", true)

	if s.Value["message"] != "jserrors ready" {
		t.Errorf("expected message 'jserrors ready', got %v", s.Value["message"])
	}
	if s.Value["ready"] != true {
		t.Errorf("expected ready=true, got %v", s.Value["ready"])
	}

	s.Set("hub unreachable", false)
	if s.Value["ready"] != false {
		t.Errorf("expected ready=false, got %v", s.Value["ready"])
	}
}

func TestStatusSetCollector(t *testing.T) {
	s := Status{}
	s.SetCollector("JSErrorCollector", false, nil)
	s.Set("jserrors ready", true)
	s.SetCollector("JSErrorCollector", true, []string{"firefox", "chrome"})

	raw, err := json.Marshal(&s)
	if err != nil {
		t.Fatalf("marshal status: %v", err)
	}

	var decoded struct {
		Value struct {
			Ready     bool `json:"ready"`
			Collector struct {
				Name     string   `json:"name"`
				Inject   bool     `json:"inject"`
				Browsers []string `json:"browsers"`
			} `json:"collector"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}

	if !decoded.Value.Ready {
		t.Error("expected ready status")
	}
	c := decoded.Value.Collector
	if c.Name != "JSErrorCollector" || !c.Inject {
		t.Errorf("unexpected collector %+v", c)
	}
	if len(c.Browsers) != 2 || c.Browsers[0] != "firefox" {
		t.Errorf("unexpected browsers %v", c.Browsers)
	}
}

func TestStatusSetCollectorEmptyBrowsers(t *testing.T) {
	s := Status{}
	s.SetCollector("JSErrorCollector", false, nil)

	raw, _ := json.Marshal(&s)
	if string(raw) != `{"value":{"collector":{"browsers":[],"inject":false,"name":"JSErrorCollector"}}}` {
		t.Errorf("unexpected encoding %s", raw)
	}
}
