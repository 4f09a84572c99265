package coord

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	clientv3 "go.etcd.io/etcd/client/v3"

	"lwaobs/pkg/logx"
)

// Etcd is the Store used on the station, where the executor and the
// monitoring tools share one etcd cluster.
type Etcd struct {
	cli *clientv3.Client
	log logx.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func OpenEtcd(cfg Config, log logx.Logger) (*Etcd, error) {
	eps := cfg.Endpoints
	if len(eps) == 0 {
		eps = []string{"localhost:2379"}
	}
	dt := cfg.DialTimeout
	if dt <= 0 {
		dt = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   eps,
		DialTimeout: dt,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Debug("coord.opened", logx.String("driver", "etcd"), logx.Strings("endpoints", eps))
	return &Etcd{cli: cli, log: log, closed: make(chan struct{})}, nil
}

func (e *Etcd) Put(ctx context.Context, key string, value []byte) error {
	_, err := e.cli.Put(ctx, normKey(key), string(value))
	return err
}

func (e *Etcd) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := e.cli.Get(ctx, normKey(key))
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

func (e *Etcd) Delete(ctx context.Context, key string) error {
	_, err := e.cli.Delete(ctx, normKey(key))
	return err
}

// Watch follows key across leader loss and compaction: a closed etcd watch
// is reopened with backoff from the revision after the last event seen.
func (e *Etcd) Watch(ctx context.Context, key string) (<-chan Event, error) {
	select {
	case <-e.closed:
		return nil, ErrClosed
	default:
	}
	key = normKey(key)
	out := make(chan Event, 16)
	go e.watchLoop(ctx, key, out)
	return out, nil
}

func (e *Etcd) watchLoop(ctx context.Context, key string, out chan<- Event) {
	defer close(out)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0

	var rev int64
	for {
		var opts []clientv3.OpOption
		if rev > 0 {
			opts = append(opts, clientv3.WithRev(rev+1))
		}
		wch := e.cli.Watch(clientv3.WithRequireLeader(ctx), key, opts...)
		seen := rev
		if !e.pump(ctx, key, wch, out, &rev) {
			return
		}
		if rev != seen {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		e.log.Warn("coord.watch_restart", logx.String("key", key), logx.Int64("rev", rev), logx.Duration("retry_in", wait))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-e.closed:
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// pump forwards one etcd watch stream, advancing rev. It reports whether
// the watch should be reopened.
func (e *Etcd) pump(ctx context.Context, key string, wch clientv3.WatchChan, out chan<- Event, rev *int64) bool {
	for resp := range wch {
		if resp.CompactRevision > *rev {
			e.log.Warn("coord.watch_compacted", logx.String("key", key), logx.Int64("rev", *rev), logx.Int64("compact_rev", resp.CompactRevision))
			*rev = resp.CompactRevision - 1
		}
		if err := resp.Err(); err != nil {
			e.log.Warn("coord.watch_error", logx.String("key", key), logx.Err(err))
			continue
		}
		for _, ev := range resp.Events {
			select {
			case out <- Event{
				Key:     string(ev.Kv.Key),
				Value:   ev.Kv.Value,
				Deleted: ev.Type == clientv3.EventTypeDelete,
			}:
			case <-ctx.Done():
				return false
			}
			*rev = ev.Kv.ModRevision
		}
	}
	select {
	case <-e.closed:
		return false
	default:
	}
	return ctx.Err() == nil
}

func (e *Etcd) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	return e.cli.Close()
}
