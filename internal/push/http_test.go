package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"call-platform/internal/config"
)

func TestHTTPDispatcher_SendInvite(t *testing.T) {
	var got Invite
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("missing bearer key, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(providerResponse{Delivered: 2})
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(config.PushConfig{ProviderURL: srv.URL, APIKey: "key-1"})
	delivered, err := d.SendInvite(context.Background(), Invite{
		CalleeID:   "bob",
		CallerID:   "alice",
		CallerName: "Alice",
		RoomID:     "room-1",
		IsVideo:    true,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !delivered {
		t.Fatalf("expected delivered")
	}
	if got.CalleeID != "bob" || got.RoomID != "room-1" || !got.IsVideo {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestHTTPDispatcher_ProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(config.PushConfig{ProviderURL: srv.URL, APIKey: "key-1"})
	if _, err := d.SendInvite(context.Background(), Invite{CalleeID: "bob", RoomID: "r"}); err == nil {
		t.Fatalf("expected error on provider 502")
	}
}
