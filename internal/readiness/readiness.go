// Package readiness decides when player and item metadata can be trusted
// enough to build the item table.
package readiness

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDelay is the settle time used when the transport gives no signal.
const DefaultDelay = 3 * time.Second

// Source is the part of a connected store a barrier may watch.
type Source interface {
	MetadataLoaded() <-chan struct{}
}

// Barrier returns a channel that is closed once the table may be built.
type Barrier interface {
	Arm(src Source) <-chan struct{}
}

// Delay waits a fixed time after arming regardless of the source.
type Delay time.Duration

func (d Delay) Arm(Source) <-chan struct{} {
	ch := make(chan struct{})
	time.AfterFunc(time.Duration(d), func() { close(ch) })
	return ch
}

// Signal waits for the source's metadata signal.
type Signal struct{}

func (Signal) Arm(src Source) <-chan struct{} {
	return src.MetadataLoaded()
}

// Parse maps a config value to a barrier: "signal", "delay" (DefaultDelay)
// or "delay:<duration>".
func Parse(mode string) (Barrier, error) {
	mode = strings.TrimSpace(strings.ToLower(mode))
	switch {
	case mode == "" || mode == "delay":
		return Delay(DefaultDelay), nil
	case mode == "signal":
		return Signal{}, nil
	case strings.HasPrefix(mode, "delay:"):
		d, err := time.ParseDuration(strings.TrimPrefix(mode, "delay:"))
		if err != nil {
			return nil, fmt.Errorf("barrier %q: %w", mode, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("barrier %q: negative delay", mode)
		}
		return Delay(d), nil
	default:
		return nil, fmt.Errorf("barrier %q: unknown mode", mode)
	}
}
