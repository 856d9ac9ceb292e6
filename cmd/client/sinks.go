package main

import (
	"errors"
	"fmt"

	"pharcryption.gg/internal/config"
	"pharcryption.gg/internal/persistence/indexdb"
	eventlog "pharcryption.gg/internal/persistence/log"
)

// sinks holds the optional journal and audit index.
type sinks struct {
	journal *eventlog.EventLogger
	audit   *indexdb.SQLiteIndex
}

// openSinks opens whatever the config enables. On error nothing is left open.
func openSinks(cfg config.Config) (*sinks, error) {
	s := &sinks{}
	if cfg.JournalDir != "" {
		s.journal = eventlog.NewEventLogger(cfg.JournalDir)
	}
	if cfg.IndexDB != "" {
		idx, err := indexdb.OpenSQLite(cfg.IndexDB)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("index db: %w", err)
		}
		s.audit = idx
	}
	return s, nil
}

func (s *sinks) Close() error {
	var errs []error
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	return errors.Join(errs...)
}
