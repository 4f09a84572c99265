// Package coord is the key/value coordination store shared by the executor
// and its operator tools. Keys are slash separated paths such as
// "/mon/observing/schedule"; values are opaque bytes, usually JSON.
package coord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lwaobs/pkg/logx"
)

var (
	ErrNotFound      = errors.New("coord: key not found")
	ErrClosed        = errors.New("coord: store closed")
	ErrUnknownDriver = errors.New("coord: unknown driver")
)

// Event is one change to a watched key.
type Event struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Store is a minimal watched key/value store.
//
// Watch delivers changes that happen after it returns. The channel is closed
// when ctx is done or the store is closed.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Watch(ctx context.Context, key string) (<-chan Event, error)
	Close() error
}

type Config struct {
	// Driver is one of "memory", "dir", "etcd". Empty means memory.
	Driver string `json:"driver"`

	// Dir is the root directory of the dir driver.
	Dir string `json:"dir"`

	// etcd
	Endpoints   []string      `json:"endpoints"`
	DialTimeout time.Duration `json:"dial_timeout"`
	Username    string        `json:"username"`
	Password    string        `json:"password"`
}

// Open returns the store selected by cfg.Driver.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "coord"))
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory", "mem":
		return NewMemory(), nil
	case "dir", "file":
		return OpenDir(cfg.Dir, log)
	case "etcd":
		return OpenEtcd(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// PutJSON stores v encoded as JSON.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("coord: encode %s: %w", key, err)
	}
	return s.Put(ctx, key, b)
}

// GetJSON decodes the value at key into v. A missing key returns ErrNotFound.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	b, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("coord: decode %s: %w", key, err)
	}
	return nil
}

func normKey(key string) string {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	return key
}
