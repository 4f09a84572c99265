package control

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"lwaobs/internal/sdf"
)

// Kind enumerates the command variants a schedule row can carry.
type Kind int

const (
	KindInitController Kind = iota + 1
	KindSetCalDirectory
	KindConfigureResource
	KindStartRecorder
	KindStopRecorder
	KindPointBeam
	KindRunScript
	KindNote
)

var kindNames = [...]string{
	KindInitController:    "init_controller",
	KindSetCalDirectory:   "set_cal_directory",
	KindConfigureResource: "configure_resource",
	KindStartRecorder:     "start_recorder",
	KindStopRecorder:      "stop_recorder",
	KindPointBeam:         "point_beam",
	KindRunScript:         "run_script",
	KindNote:              "note",
}

func (k Kind) String() string {
	if k < KindInitController || k > KindNote {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Command is one structured controller action. The set of implementations
// is closed; Dispatch maps each variant onto exactly one Controller call.
type Command interface {
	Kind() Kind
	Dispatch(ctx context.Context, c Controller) error
	String() string
}

// InitController opens a controller session using a config file.
type InitController struct {
	ConfigFile string
}

func (InitController) Kind() Kind { return KindInitController }
func (c InitController) Dispatch(ctx context.Context, ctl Controller) error {
	return ctl.Init(ctx, c.ConfigFile)
}
func (c InitController) String() string { return fmt.Sprintf("init_controller(%s)", c.ConfigFile) }

// SetCalDirectory overrides the x-engine calibration table directory.
type SetCalDirectory struct {
	Dir string
}

func (SetCalDirectory) Kind() Kind { return KindSetCalDirectory }
func (c SetCalDirectory) Dispatch(ctx context.Context, ctl Controller) error {
	return ctl.SetCalDirectory(ctx, c.Dir)
}
func (c SetCalDirectory) String() string { return fmt.Sprintf("set_cal_directory(%s)", c.Dir) }

// ConfigureResource configures the x-engine for the given recorders.
type ConfigureResource struct {
	IDs       []string
	Calibrate bool
}

func (ConfigureResource) Kind() Kind { return KindConfigureResource }
func (c ConfigureResource) Dispatch(ctx context.Context, ctl Controller) error {
	return ctl.ConfigureResource(ctx, c.IDs, c.Calibrate)
}
func (c ConfigureResource) String() string {
	return fmt.Sprintf("configure_resource([%s], calibrate=%t)", strings.Join(c.IDs, ","), c.Calibrate)
}

// VoltageSetup is the receiver setup of a voltage recording.
type VoltageSetup struct {
	Freq1Hz   float64
	Freq2Hz   float64
	Bandwidth int
	Gain1     int
	Gain2     int
}

// StartRecorder starts data recorders. Start is an MJD unless Now is set.
type StartRecorder struct {
	IDs      []string
	Duration time.Duration
	TimeAvg  time.Duration
	Start    float64
	Now      bool
	Voltage  *VoltageSetup
}

func (StartRecorder) Kind() Kind { return KindStartRecorder }
func (c StartRecorder) Dispatch(ctx context.Context, ctl Controller) error {
	return ctl.StartRecorder(ctx, c)
}
func (c StartRecorder) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "start_recorder([%s]", strings.Join(c.IDs, ","))
	if c.Duration > 0 {
		fmt.Fprintf(&b, ", duration=%s", c.Duration)
	}
	if c.Voltage == nil && c.TimeAvg > 0 {
		fmt.Fprintf(&b, ", time_avg=%s", c.TimeAvg)
	}
	if c.Voltage != nil {
		fmt.Fprintf(&b, ", f1=%s, f2=%s, bw=%d, gain=%d/%d",
			humanize.SIWithDigits(c.Voltage.Freq1Hz, 6, "Hz"),
			humanize.SIWithDigits(c.Voltage.Freq2Hz, 6, "Hz"),
			c.Voltage.Bandwidth, c.Voltage.Gain1, c.Voltage.Gain2)
	}
	if c.Now {
		b.WriteString(", t0=now)")
	} else {
		fmt.Fprintf(&b, ", t0=%.8f)", c.Start)
	}
	return b.String()
}

// StopRecorder stops data recorders.
type StopRecorder struct {
	IDs []string
}

func (StopRecorder) Kind() Kind { return KindStopRecorder }
func (c StopRecorder) Dispatch(ctx context.Context, ctl Controller) error {
	return ctl.StopRecorder(ctx, c.IDs)
}
func (c StopRecorder) String() string {
	return fmt.Sprintf("stop_recorder([%s])", strings.Join(c.IDs, ","))
}

// PointBeam points (and optionally tracks) a beam for Duration.
type PointBeam struct {
	Beam     int
	Target   sdf.Target
	Track    bool
	Duration time.Duration
}

func (PointBeam) Kind() Kind { return KindPointBeam }
func (c PointBeam) Dispatch(ctx context.Context, ctl Controller) error {
	return ctl.PointBeam(ctx, c)
}
func (c PointBeam) String() string {
	var tgt string
	switch c.Target.Kind {
	case sdf.TargetRADec:
		tgt = fmt.Sprintf("coord=(%.6fh,%+.6f)", c.Target.RA/15, c.Target.Dec)
	case sdf.TargetAzAlt:
		tgt = fmt.Sprintf("azel=(%.6f,%.6f)", c.Target.Az, c.Target.Alt)
	default:
		tgt = fmt.Sprintf("target=%q", c.Target.Name)
	}
	return fmt.Sprintf("point_beam(%d, %s, track=%t, duration=%s)", c.Beam, tgt, c.Track, c.Duration)
}

// RunRawScript carries a legacy free-text controller instruction. It is
// handed to the controller verbatim and never evaluated locally.
type RunRawScript struct {
	Script string
}

func (RunRawScript) Kind() Kind { return KindRunScript }
func (c RunRawScript) Dispatch(ctx context.Context, ctl Controller) error {
	return ctl.RunScript(ctx, c.Script)
}
func (c RunRawScript) String() string { return fmt.Sprintf("run_script(%q)", c.Script) }

// Note marks a point in time without contacting the controller. Builders
// use it to close a session's time range at the end of its last recording.
type Note struct {
	Text string
}

func (Note) Kind() Kind                                 { return KindNote }
func (Note) Dispatch(context.Context, Controller) error { return nil }
func (c Note) String() string                           { return fmt.Sprintf("note(%q)", c.Text) }
