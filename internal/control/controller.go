package control

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lwaobs/pkg/logx"
)

// Controller is the telescope control surface the executor drives. The
// executor never retries a call; one failed call is one skipped row.
type Controller interface {
	Init(ctx context.Context, configFile string) error
	SetCalDirectory(ctx context.Context, dir string) error
	ConfigureResource(ctx context.Context, ids []string, calibrate bool) error
	StartRecorder(ctx context.Context, req StartRecorder) error
	StopRecorder(ctx context.Context, ids []string) error
	PointBeam(ctx context.Context, req PointBeam) error
	RunScript(ctx context.Context, script string) error
}

var ErrUnknownDriver = errors.New("control: unknown driver")

// DispatchError reports a controller call that failed for one command.
type DispatchError struct {
	Kind Kind
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("control: dispatch %s: %v", e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatch sends cmd to ctl and wraps any failure in a DispatchError.
func Dispatch(ctx context.Context, ctl Controller, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return &DispatchError{Kind: cmd.Kind(), Err: err}
	}
	if err := cmd.Dispatch(ctx, ctl); err != nil {
		return &DispatchError{Kind: cmd.Kind(), Err: err}
	}
	return nil
}

type Config struct {
	Driver string // log | http
	HTTP   HTTPConfig
}

// New builds the controller selected by cfg.Driver.
func New(cfg Config, log logx.Logger) (Controller, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "log":
		return NewLogController(log), nil
	case "http":
		return NewHTTPController(cfg.HTTP, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// LogController performs no hardware action; it records every call in the
// log. It is the dry-run controller.
type LogController struct {
	log logx.Logger
}

func NewLogController(log logx.Logger) *LogController {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogController{log: log.With(logx.String("comp", "controller"), logx.String("driver", "log"))}
}

func (c *LogController) Init(_ context.Context, configFile string) error {
	c.log.Info("controller.init", logx.String("config_file", configFile))
	return nil
}

func (c *LogController) SetCalDirectory(_ context.Context, dir string) error {
	c.log.Info("controller.cal_directory", logx.String("dir", dir))
	return nil
}

func (c *LogController) ConfigureResource(_ context.Context, ids []string, calibrate bool) error {
	c.log.Info("controller.configure", logx.Strings("ids", ids), logx.Bool("calibrate", calibrate))
	return nil
}

func (c *LogController) StartRecorder(_ context.Context, req StartRecorder) error {
	c.log.Info("controller.start_recorder", logx.String("cmd", req.String()))
	return nil
}

func (c *LogController) StopRecorder(_ context.Context, ids []string) error {
	c.log.Info("controller.stop_recorder", logx.Strings("ids", ids))
	return nil
}

func (c *LogController) PointBeam(_ context.Context, req PointBeam) error {
	c.log.Info("controller.point_beam", logx.String("cmd", req.String()))
	return nil
}

func (c *LogController) RunScript(_ context.Context, script string) error {
	c.log.Info("controller.run_script", logx.String("script", script))
	return nil
}
