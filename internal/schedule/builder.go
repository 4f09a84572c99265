package schedule

import (
	"errors"
	"strings"

	"lwaobs/internal/control"
	"lwaobs/internal/sdf"
	"lwaobs/pkg/logx"
)

// ErrUnsupportedCommand is returned by MakeCommand for instructions other
// than settings updates.
var ErrUnsupportedCommand = errors.New("schedule: only settings.update commands can be scheduled")

// CommandMode is the observing-type tag of single-command rows.
const CommandMode = "CMD"

type BuilderConfig struct {
	Buffer              Profile
	ASAP                Profile
	DefaultConfigFile   string
	DefaultCalDirectory string
}

// Builder applies configured profiles and defaults to the per-type build
// functions.
type Builder struct {
	cfg BuilderConfig
	log logx.Logger
}

func NewBuilder(cfg BuilderConfig, log logx.Logger) *Builder {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg.Buffer = cfg.Buffer.orDefault(BufferProfile())
	cfg.ASAP = cfg.ASAP.orDefault(ASAPProfile())
	return &Builder{cfg: cfg, log: log.With(logx.String("comp", "builder"))}
}

// Plan is a built session ready for submission.
type Plan struct {
	Description  *sdf.Description
	Session      sdf.Session
	Observations []sdf.Observation
	Rows         []Row
}

func (b *Builder) Profile(m Mode) Profile {
	if m == ModeASAP {
		return b.cfg.ASAP
	}
	return b.cfg.Buffer
}

// Build schedules one parsed session.
func (b *Builder) Build(s sdf.Session, obs []sdf.Observation, mode Mode) ([]Row, error) {
	fn, err := For(s.Type)
	if err != nil {
		return nil, err
	}
	if s.ConfigFile == "" {
		s.ConfigFile = b.cfg.DefaultConfigFile
	}
	rows, err := fn(s, obs, Params{
		Mode:                mode,
		Profile:             b.Profile(mode),
		DefaultCalDirectory: b.cfg.DefaultCalDirectory,
		Log:                 b.log,
	})
	if err != nil {
		return nil, err
	}
	b.log.Debug("schedule.built",
		logx.String("session", s.ID),
		logx.String("mode_name", s.ModeName()),
		logx.String("mode", mode.String()),
		logx.Int("rows", len(rows)))
	return rows, nil
}

// BuildFile reads, decodes and schedules a description file.
func (b *Builder) BuildFile(path string, mode Mode) (Plan, error) {
	d, s, obs, err := sdf.Load(path, b.log)
	if err != nil {
		return Plan{}, err
	}
	rows, err := b.Build(s, obs, mode)
	if err != nil {
		return Plan{}, err
	}
	b.log.Info("schedule.parsed", logx.String("file", path), logx.String("session", s.ID), logx.Int("rows", len(rows)))
	return Plan{Description: d, Session: s, Observations: obs, Rows: rows}, nil
}

// MakeCommand wraps a free-text settings update in a single-row schedule
// for sessionID at the given MJD.
func MakeCommand(at float64, text, sessionID string) ([]Row, error) {
	text = strings.TrimSpace(text)
	if !strings.Contains(text, "settings.update") {
		return nil, ErrUnsupportedCommand
	}
	return []Row{{
		At:        at,
		SessionID: sessionID,
		ModeName:  sessionID + "_" + CommandMode,
		Command:   control.RunRawScript{Script: text},
	}}, nil
}
