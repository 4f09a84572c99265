package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"lwaobs/internal/config"
	"lwaobs/internal/coord"
	"lwaobs/internal/executor"
	"lwaobs/internal/schedule"
	"lwaobs/internal/statestore"
	"lwaobs/pkg/logx"
)

// Client is the operator side of the coordination store: it writes
// requests to the submission key and reads what the executor publishes.
type Client struct {
	log     logx.Logger
	cfg     *config.Config
	coord   coord.Store
	pub     *schedule.Publisher
	builder *schedule.Builder
}

// OpenClient loads cfgPath and connects to its coordination store. The
// state store is opened on demand by Sessions.
func OpenClient(cfgPath string, log logx.Logger) (*Client, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	return NewClient(cfg, log)
}

func NewClient(cfg *config.Config, log logx.Logger) (*Client, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	st, err := coord.Open(mapCoord(cfg), log)
	if err != nil {
		return nil, fmt.Errorf("coord: %w", err)
	}
	return &Client{
		log:     log.With(logx.String("comp", "client")),
		cfg:     cfg,
		coord:   st,
		pub:     schedule.NewPublisher(st, log),
		builder: schedule.NewBuilder(mapBuilder(cfg), log),
	}, nil
}

func (c *Client) Close() error { return c.coord.Close() }

// Build parses and schedules path without submitting it.
func (c *Client) Build(path string, mode schedule.Mode) (schedule.Plan, error) {
	return c.builder.BuildFile(path, mode)
}

// Submit asks the executor to schedule path. With check set the file is
// built locally first and rejected early on a published conflict.
func (c *Client) Submit(ctx context.Context, path string, mode schedule.Mode, check bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if check {
		plan, err := c.builder.BuildFile(abs, mode)
		if err != nil {
			return err
		}
		if err := c.pub.Check(ctx, plan.Rows); err != nil {
			return err
		}
	}
	return c.put(ctx, executor.Request{Filename: abs, Mode: mode.String()})
}

func (c *Client) Cancel(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return c.put(ctx, executor.Request{Filename: abs, Mode: "cancel"})
}

func (c *Client) Reset(ctx context.Context) error {
	return c.put(ctx, executor.Request{Mode: "reset"})
}

// Command submits a single settings update at mjd; zero means now.
func (c *Client) Command(ctx context.Context, at float64, text string, mode schedule.Mode) error {
	if _, err := schedule.MakeCommand(at, text, "check"); err != nil {
		return err
	}
	return c.put(ctx, executor.Request{MJD: at, Command: strings.TrimSpace(text), Mode: mode.String()})
}

func (c *Client) put(ctx context.Context, req executor.Request) error {
	if _, err := req.Kind(); err != nil {
		return err
	}
	if err := coord.PutJSON(ctx, c.coord, schedule.SubmitKey, req); err != nil {
		return err
	}
	c.log.Debug("client.submitted", logx.String("mode", req.Mode), logx.String("file", req.Filename))
	return nil
}

// Schedules returns the published pending and submitted summaries.
func (c *Client) Schedules(ctx context.Context) (pending, submitted schedule.Summary, err error) {
	return c.pub.Schedules(ctx)
}

// Sessions lists the session records of the configured state store.
func (c *Client) Sessions(ctx context.Context) ([]statestore.SessionRecord, error) {
	if d := strings.ToLower(strings.TrimSpace(c.cfg.State.Driver)); d == "" || d == "memory" {
		return nil, errors.New("state.driver memory keeps no records outside the executor")
	}
	st, err := statestore.Open(mapState(c.cfg), c.log)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.List(ctx)
}
