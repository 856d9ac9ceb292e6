package session

import (
	"encoding/json"
	"fmt"
	"time"

	"pharcryption.gg/internal/phase"
	"pharcryption.gg/internal/protocol"
	"pharcryption.gg/internal/store"
)

func (s *Session) handleEvent(ev store.Event) error {
	if s.cfg.Journal != nil {
		if err := s.cfg.Journal.WriteEvent(s.cfg.Now(), ev); err != nil {
			s.log.Printf("journal write failed kind=%s: %v", ev.Kind, err)
		}
	}
	switch ev.Kind {
	case store.EventItemsReceived:
		return s.onItemsReceived(ev.Index, ev.Items)
	case store.EventRetrieved:
		if raw, ok := ev.Keys[KeyTimeLimit]; ok {
			s.applyTimeLimit(raw)
		}
		return nil
	case store.EventKeyUpdated:
		return s.onKeyUpdated(ev.Key, ev.Value)
	case store.EventRoomUpdated:
		s.st.MarkUnlocked(ev.CheckedLocations...)
		return nil
	case store.EventDisconnected:
		if err := s.setPhase(phase.Disconnected); err != nil {
			return err
		}
		if ev.Err != nil {
			return fmt.Errorf("%w: %w", ErrDisconnected, ev.Err)
		}
		return ErrDisconnected
	default:
		s.log.Printf("unhandled event kind=%d", int(ev.Kind))
		return nil
	}
}

// onItemsReceived credits reward items. The server replays the full item
// list with index 0 more than once on connect; only the first is applied.
func (s *Session) onItemsReceived(index int, received []protocol.NetworkItem) error {
	if index == 0 {
		if s.receivedInitial {
			s.log.Printf("dropping repeated initial item batch items=%d", len(received))
			return nil
		}
		s.receivedInitial = true
	}
	for _, it := range received {
		switch {
		case it.Item >= ItemPharcoins && it.Item < ItemDecryptionKey:
			if err := s.st.Earn(int(it.Item-ItemPharcoins) + 1); err != nil {
				return err
			}
		case it.Item == ItemDecryptionKey:
			if err := s.store.Set(KeyDecrypted, false, []store.Operation{store.Replace(true)}, false); err != nil {
				s.log.Printf("set %s failed: %v", KeyDecrypted, err)
			}
			s.st.Decrypt()
		}
	}
	return nil
}

func (s *Session) onKeyUpdated(key string, value json.RawMessage) error {
	switch key {
	case s.hintsKey:
		var hints []protocol.Hint
		if err := json.Unmarshal(value, &hints); err != nil {
			s.log.Printf("bad hints value: %v", err)
			return nil
		}
		s.st.MarkHinted(s.ownHints(hints)...)
	case KeySpent:
		var spent float64
		if err := json.Unmarshal(value, &spent); err != nil {
			s.log.Printf("bad %s value %s: %v", KeySpent, value, err)
			return nil
		}
		return s.st.SetSpent(int(spent))
	case KeyTimeLimit:
		s.applyTimeLimit(value)
	case KeyStarted:
		var started bool
		if err := json.Unmarshal(value, &started); err != nil {
			s.log.Printf("bad %s value %s: %v", KeyStarted, value, err)
			return nil
		}
		s.st.SetStarted(started)
		// PostGame is terminal for this connection.
		if s.st.Phase() == phase.PostGame {
			return nil
		}
		return s.setPhase(phase.FromStarted(started))
	case KeyDecrypted:
		var decrypted bool
		if err := json.Unmarshal(value, &decrypted); err == nil && decrypted {
			s.st.Decrypt()
		}
	}
	return nil
}

func (s *Session) applyTimeLimit(raw json.RawMessage) {
	ms, err := parseDeadline(raw)
	if err != nil {
		s.log.Printf("bad %s value %s: %v", KeyTimeLimit, raw, err)
		return
	}
	s.st.SetTimeLimit(ms)
}

// deadlineLayout is the ISO-8601 form written by Start.
const deadlineLayout = "2006-01-02T15:04:05.000Z07:00"

// parseDeadline turns an ISO-8601 timestamp into epoch ms. A missing value
// means no deadline.
func parseDeadline(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func formatDeadline(t time.Time) string {
	return t.UTC().Format(deadlineLayout)
}
