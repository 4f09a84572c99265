package statestore

import (
	"context"
	"errors"
	"strings"

	"lwaobs/pkg/logx"
)

// Store persists session records.
//
// RegisterSession reports false without error when the id is already
// known; the existing record is left untouched.
type Store interface {
	RegisterSession(ctx context.Context, rec SessionRecord) (bool, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, st Status) error
	Session(ctx context.Context, sessionID string) (SessionRecord, error)
	List(ctx context.Context) ([]SessionRecord, error)
	Close() error
}

// Open initializes the configured store. An empty driver selects memory.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "statestore"))

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("statestore: unknown driver: " + driver)
	}
}
