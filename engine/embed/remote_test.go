package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clausemind/clausemind/engine/domain"
)

func TestRemote_Success(t *testing.T) {
	var gotAuth string
	var gotBody remoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode([][]float32{{1, 0, 0}, {0, 1, 0}})
	}))
	defer srv.Close()

	rem, err := NewRemote(RemoteConfig{URL: srv.URL, APIKey: "secret", Dimension: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vecs, err := rem.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("unexpected vectors: %v", vecs)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	if len(gotBody.Inputs) != 2 || gotBody.Inputs[0] != "a" {
		t.Errorf("unexpected request body: %+v", gotBody)
	}
}

func TestRemote_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rem, err := NewRemote(RemoteConfig{URL: srv.URL, Dimension: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = rem.Embed(context.Background(), []string{"a"})
	var ue *domain.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Status != http.StatusServiceUnavailable {
		t.Errorf("unexpected status: %d", ue.Status)
	}
}

func TestRemote_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([][]float32{{1, 0, 0}})
	}))
	defer srv.Close()

	rem, err := NewRemote(RemoteConfig{URL: srv.URL, Dimension: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := rem.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for vector count mismatch")
	}
}

func TestRemote_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([][]float32{{1, 0}})
	}))
	defer srv.Close()

	rem, err := NewRemote(RemoteConfig{URL: srv.URL, Dimension: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = rem.Embed(context.Background(), []string{"a"})
	if !domain.IsDimensionMismatch(err) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
}

func TestRemote_ConfigValidation(t *testing.T) {
	if _, err := NewRemote(RemoteConfig{Dimension: 3}); err == nil {
		t.Error("expected error for missing URL")
	}
	if _, err := NewRemote(RemoteConfig{URL: "http://x", Dimension: 0}); err == nil {
		t.Error("expected error for non-positive dimension")
	}
}

func TestRemote_EmptyBatch(t *testing.T) {
	rem, err := NewRemote(RemoteConfig{URL: "http://unused", Dimension: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := rem.Embed(context.Background(), nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
