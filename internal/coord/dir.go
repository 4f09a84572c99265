package coord

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"lwaobs/pkg/logx"
)

// Dir stores each key as a JSON file under a root directory:
// "/mon/observing/schedule" lives at <root>/mon/observing/schedule.json.
// Writes go through a temp file and a rename so watchers never read a
// partial value.
type Dir struct {
	root string
	log  logx.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func OpenDir(root string, log logx.Logger) (*Dir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("coord: coord.dir is required for dir driver")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dir{root: root, log: log, closed: make(chan struct{})}, nil
}

func (d *Dir) path(key string) string {
	rel := strings.TrimPrefix(normKey(key), "/")
	return filepath.Join(d.root, filepath.FromSlash(rel)) + ".json"
}

func (d *Dir) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

func (d *Dir) Put(_ context.Context, key string, value []byte) error {
	if d.isClosed() {
		return ErrClosed
	}
	p := d.path(key)
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(p)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(value); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (d *Dir) Get(_ context.Context, key string) ([]byte, error) {
	if d.isClosed() {
		return nil, ErrClosed
	}
	b, err := os.ReadFile(d.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (d *Dir) Delete(_ context.Context, key string) error {
	if d.isClosed() {
		return ErrClosed
	}
	err := os.Remove(d.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (d *Dir) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	return nil
}

// Watch watches the directory holding key. The fsnotify watcher is
// recreated with exponential backoff whenever it breaks.
func (d *Dir) Watch(ctx context.Context, key string) (<-chan Event, error) {
	if d.isClosed() {
		return nil, ErrClosed
	}
	key = normKey(key)
	p := d.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	w, err := d.newWatcher(filepath.Dir(p))
	if err != nil {
		return nil, fmt.Errorf("coord: watch %s: %w", key, err)
	}
	out := make(chan Event, 16)
	go d.watchLoop(ctx, key, p, w, out)
	return out, nil
}

func (d *Dir) newWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (d *Dir) watchLoop(ctx context.Context, key, path string, w *fsnotify.Watcher, out chan<- Event) {
	defer close(out)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0

	dir := filepath.Dir(path)
	for {
		broken := d.pump(ctx, key, path, w, out)
		_ = w.Close()
		if !broken || ctx.Err() != nil || d.isClosed() {
			return
		}
		d.log.Warn("coord.watch_restart", logx.String("key", key), logx.String("dir", dir))

		bo.Reset()
		err := backoff.RetryNotify(func() error {
			if d.isClosed() {
				return backoff.Permanent(ErrClosed)
			}
			nw, err := d.newWatcher(dir)
			if err != nil {
				return err
			}
			w = nw
			return nil
		}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
			d.log.Warn("coord.watch_init_failed", logx.String("key", key), logx.Err(err), logx.Duration("retry_in", wait))
		})
		if err != nil {
			return
		}
	}
}

// pump forwards events for path until the watcher breaks (true) or the
// watch ends (false).
func (d *Dir) pump(ctx context.Context, key, path string, w *fsnotify.Watcher, out chan<- Event) bool {
	file := filepath.Base(path)
	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		case <-d.closed:
			return false
		}
	}
	for {
		select {
		case <-ctx.Done():
			return false
		case <-d.closed:
			return false
		case ev, ok := <-w.Events:
			if !ok {
				return true
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				b, err := os.ReadFile(path)
				if err != nil {
					if !errors.Is(err, os.ErrNotExist) {
						d.log.Warn("coord.watch_read_failed", logx.String("key", key), logx.Err(err))
					}
					continue
				}
				if !emit(Event{Key: key, Value: b}) {
					return false
				}
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
					if !emit(Event{Key: key, Deleted: true}) {
						return false
					}
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return true
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// missed events; resend the current value
				d.log.Warn("coord.watch_overflow", logx.String("key", key))
				if b, rerr := os.ReadFile(path); rerr == nil && !emit(Event{Key: key, Value: b}) {
					return false
				}
				continue
			}
			if err != nil {
				d.log.Warn("coord.watch_error", logx.String("key", key), logx.Err(err))
			}
		}
	}
}
