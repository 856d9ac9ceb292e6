package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pharcryption.gg/internal/store"
)

func TestConnectTriesEndpointsInOrder(t *testing.T) {
	var tried []string
	want := newFakeStore(testSlotData)
	dial := func(_ context.Context, url string) (store.Store, error) {
		tried = append(tried, url)
		if url == "wss://example.net:38281" {
			return nil, errors.New("tls: handshake failure")
		}
		return want, nil
	}
	got, err := Connect(context.Background(), []string{"wss://example.net:38281", "ws://example.net:38281"}, dial)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got != want {
		t.Fatalf("unexpected store")
	}
	if len(tried) != 2 {
		t.Fatalf("tried %v", tried)
	}
}

func TestConnectError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	dial := func(context.Context, string) (store.Store, error) { return nil, cause }
	_, err := Connect(context.Background(), []string{"wss://host:1", "ws://host:1"}, dial)

	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectError, got %v", err)
	}
	if ce.Endpoint != "ws://host:1" {
		t.Fatalf("endpoint = %q", ce.Endpoint)
	}
	if err.Error() != "Unable to connect to ws://host:1" {
		t.Fatalf("message = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestConnectRefusalStopsSearch(t *testing.T) {
	calls := 0
	dial := func(context.Context, string) (store.Store, error) {
		calls++
		return nil, fmt.Errorf("connection refused: no slot with that name: %w", store.ErrRefused)
	}
	_, err := Connect(context.Background(), []string{"wss://host:1", "ws://host:1"}, dial)
	if calls != 1 {
		t.Fatalf("dial calls = %d, want 1", calls)
	}
	if !errors.Is(err, store.ErrRefused) {
		t.Fatalf("expected refusal, got %v", err)
	}
	if err.Error() != "connection refused: no slot with that name: connection refused" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestConnectNoEndpoints(t *testing.T) {
	_, err := Connect(context.Background(), nil, nil)
	var ce *ConnectError
	if !errors.As(err, &ce) || ce.Endpoint != "" {
		t.Fatalf("unexpected error: %v", err)
	}
}
