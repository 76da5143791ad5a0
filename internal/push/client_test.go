package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNotify_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/push" {
			t.Fatalf("path = %s, want /api/push", r.URL.Path)
		}

		var n Nudge
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n.UserID != 42 {
			t.Fatalf("user_id = %d, want 42", n.UserID)
		}
		if n.Type != "order_cancelled" {
			t.Fatalf("type = %s, want order_cancelled", n.Type)
		}

		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Notify(ctx, 42, "order_cancelled"); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
}

func TestNotify_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Notify(ctx, 1, "order_refunded"); err != nil {
		t.Fatalf("Notify error after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestNotify_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Notify(ctx, 1, "order_refunded"); err == nil {
		t.Fatalf("expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestNotify_NotConfigured(t *testing.T) {
	client := NewClient("")

	if err := client.Notify(context.Background(), 1, "order_refunded"); err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
