package session

import (
	"context"
	"errors"

	"pharcryption.gg/internal/store"
)

// ConnectError reports a failed connection attempt.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	// A refusal carries the server's reasons; show those instead.
	if errors.Is(e.Err, store.ErrRefused) {
		return e.Err.Error()
	}
	if e.Endpoint == "" {
		return "Unable to connect: " + e.Err.Error()
	}
	return "Unable to connect to " + e.Endpoint
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Dialer opens one endpoint and completes the handshake. It closes anything
// it opened when it fails.
type Dialer func(ctx context.Context, url string) (store.Store, error)

// Connect tries each endpoint in order and returns the first that completes
// the handshake. A refusal stops the search.
func Connect(ctx context.Context, urls []string, dial Dialer) (store.Store, error) {
	if len(urls) == 0 {
		return nil, &ConnectError{Err: errors.New("no endpoint")}
	}
	var last error
	for _, u := range urls {
		st, err := dial(ctx, u)
		if err == nil {
			return st, nil
		}
		last = &ConnectError{Endpoint: u, Err: err}
		if errors.Is(err, store.ErrRefused) || ctx.Err() != nil {
			break
		}
	}
	return nil, last
}
