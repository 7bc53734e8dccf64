package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/securelock/securelock/pkg/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Enabled {
		t.Error("default config should be enabled")
	}
	if cfg.AsyncQueueSize != 100 {
		t.Errorf("expected AsyncQueueSize 100, got %d", cfg.AsyncQueueSize)
	}
}

func TestClientSendSync(t *testing.T) {
	var received Payload
	var eventHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eventHeader = r.Header.Get("X-SecureLock-Event")
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(&Config{
		Enabled: true,
		Hooks: []HookConfig{
			{URL: server.URL, Events: []string{string(model.EventUnlockFail)}, Enabled: true},
		},
	}, nil)
	defer client.Close()

	err := client.Send(context.Background(), Payload{
		Event:    string(model.EventUnlockFail),
		Kind:     model.JournalEvent,
		DeviceID: "dev-1",
	}, false)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if received.Event != string(model.EventUnlockFail) {
		t.Errorf("expected event %s, got %s", model.EventUnlockFail, received.Event)
	}
	if received.DeviceID != "dev-1" {
		t.Errorf("expected device dev-1, got %s", received.DeviceID)
	}
	if received.Timestamp == "" {
		t.Error("expected timestamp to be filled in")
	}
	if eventHeader != string(model.EventUnlockFail) {
		t.Errorf("expected event header, got %q", eventHeader)
	}
}

func TestClientSendWithSignature(t *testing.T) {
	secret := "test-secret-key"
	var signature string
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-SecureLock-Signature")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(&Config{
		Enabled: true,
		Hooks:   []HookConfig{{URL: server.URL, Secret: secret, Events: []string{Wildcard}, Enabled: true}},
	}, nil)
	defer client.Close()

	if err := client.Send(context.Background(), Payload{Event: AttemptEvent}, false); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if signature == "" {
		t.Fatal("expected X-SecureLock-Signature header")
	}
	if signature != Sign(body, secret) {
		t.Errorf("signature %s does not match body", signature)
	}
}

func TestClientAppendAttemptAsync(t *testing.T) {
	var mu sync.Mutex
	var received []Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		received = append(received, p)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(&Config{
		Enabled:        true,
		AsyncQueueSize: 10,
		Hooks:          []HookConfig{{URL: server.URL, Events: []string{AttemptEvent}, Enabled: true}},
	}, nil)

	attempt := &model.IntruderAttempt{
		ID:           "a1",
		DeviceID:     "dev-1",
		AttemptCount: 4,
		Timestamp:    time.Now(),
	}
	if err := client.AppendAttempt(context.Background(), attempt); err != nil {
		t.Fatalf("AppendAttempt failed: %v", err)
	}
	// Not subscribed, must not be delivered.
	if err := client.AppendEvent(context.Background(), &model.SecurityEvent{Type: model.EventUnlockFail}); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	// Close drains the queue.
	client.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(received))
	}
	if received[0].Attempt == nil || received[0].Attempt.AttemptCount != 4 {
		t.Errorf("unexpected attempt payload: %+v", received[0].Attempt)
	}
	if received[0].Kind != model.JournalAttempt {
		t.Errorf("expected kind %s, got %s", model.JournalAttempt, received[0].Kind)
	}
}

func TestClientDeliversOnce(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Hooks = []HookConfig{{URL: server.URL, Events: []string{Wildcard}, Enabled: true}}
	client := NewClient(cfg, nil)
	defer client.Close()

	if err := client.Send(context.Background(), Payload{Event: "x"}, false); err == nil {
		t.Fatal("expected error from 500 response")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected exactly 1 call, got %d", got)
	}
}

func TestClientDisabled(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(&Config{
		Enabled: false,
		Hooks:   []HookConfig{{URL: server.URL, Events: []string{Wildcard}, Enabled: true}},
	}, nil)
	defer client.Close()

	if err := client.Send(context.Background(), Payload{Event: "x"}, false); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if called {
		t.Error("disabled client must not deliver")
	}
}

func TestSendAfterCloseIsNoop(t *testing.T) {
	client := NewClient(&Config{
		Enabled: true,
		Hooks:   []HookConfig{{URL: "http://127.0.0.1:1", Events: []string{Wildcard}, Enabled: true}},
	}, nil)
	client.Close()
	client.Close()

	if err := client.Send(context.Background(), Payload{Event: "x"}, true); err != nil {
		t.Fatalf("Send after Close: %v", err)
	}
}

func TestMatchesEvent(t *testing.T) {
	hook := HookConfig{Events: []string{"unlock_fail", AttemptEvent}}
	if !matchesEvent(hook, "unlock_fail") {
		t.Error("expected unlock_fail to match")
	}
	if matchesEvent(hook, "unlock_success") {
		t.Error("unlock_success should not match")
	}
	if !matchesEvent(HookConfig{Events: []string{Wildcard}}, "anything") {
		t.Error("wildcard should match")
	}
}
