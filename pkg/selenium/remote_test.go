package selenium

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newHub(t *testing.T, handler http.HandlerFunc) *url.URL {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL + "/wd/hub")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}

func TestRemoteExecuteScript(t *testing.T) {
	var (
		gotPath string
		gotBody map[string]any
	)
	hub := newHub(t, func(rw http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		json.NewDecoder(req.Body).Decode(&gotBody)
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(`{"value":[{"errorMessage":"boom","errorCategory":2}]}`))
	})

	r := NewRemote(context.Background(), hub, "abc", nil)
	v, err := r.ExecuteScript("return 1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/wd/hub/session/abc/execute/sync" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotBody["script"] != "return 1" {
		t.Errorf("unexpected script %v", gotBody["script"])
	}
	if args, ok := gotBody["args"].([]any); !ok || len(args) != 0 {
		t.Errorf("expected empty args, got %v", gotBody["args"])
	}

	list, ok := v.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("unexpected value %v", v)
	}
	if list[0].(map[string]any)["errorMessage"] != "boom" {
		t.Errorf("unexpected entry %v", list[0])
	}
}

func TestRemoteExecuteScriptSeleniumError(t *testing.T) {
	hub := newHub(t, func(rw http.ResponseWriter, req *http.Request) {
		rw.WriteHeader(http.StatusNotFound)
		rw.Write([]byte(`{"value":{"error":"invalid session id","message":"session deleted"}}`))
	})

	r := NewRemote(context.Background(), hub, "gone", nil)
	_, err := r.ExecuteScript("return 1", nil)

	var se *SeleniumError
	if !errors.As(err, &se) {
		t.Fatalf("expected SeleniumError, got %v", err)
	}
	if se.Value.Name != "invalid session id" || se.Value.Message != "session deleted" {
		t.Errorf("unexpected error %+v", se.Value)
	}
}

func TestRemoteExecuteScriptBadResponse(t *testing.T) {
	hub := newHub(t, func(rw http.ResponseWriter, req *http.Request) {
		rw.WriteHeader(http.StatusBadGateway)
		rw.Write([]byte(`<html>bad gateway</html>`))
	})

	r := NewRemote(context.Background(), hub, "abc", nil)
	_, err := r.ExecuteScript("return 1", nil)
	if !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("expected ErrUnexpectedResponse, got %v", err)
	}
}

func TestRemoteExecuteScriptStatusWithoutError(t *testing.T) {
	hub := newHub(t, func(rw http.ResponseWriter, req *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
		rw.Write([]byte(`{"value":null}`))
	})

	r := NewRemote(context.Background(), hub, "abc", nil)
	_, err := r.ExecuteScript("return 1", nil)
	if !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("expected ErrUnexpectedResponse, got %v", err)
	}
}

func TestRemoteExecuteScriptCanceled(t *testing.T) {
	hub := newHub(t, func(rw http.ResponseWriter, req *http.Request) {
		rw.Write([]byte(`{"value":null}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRemote(ctx, hub, "abc", nil)
	if _, err := r.ExecuteScript("return 1", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if r.SessionId() != "abc" {
		t.Errorf("unexpected session id %s", r.SessionId())
	}
}
