package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lwaobs/internal/sdf"
	"lwaobs/pkg/logx"
	"lwaobs/pkg/mjd"
)

type makeSDFOpts struct {
	id         string
	typ        string
	beam       int
	start      string
	duration   time.Duration
	gap        time.Duration
	count      int
	target     string
	ra, dec    float64
	azalt      bool
	intTime    int
	configFile string
	calDir     string
	noCal      bool
	piName     string
	out        string
}

func newMakeSDFCmd() *cobra.Command {
	o := &makeSDFOpts{}
	cmd := &cobra.Command{
		Use:   "make-sdf",
		Short: "Write a simple session description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := o.render(time.Now())
			if err != nil {
				return err
			}
			if o.out == "" || o.out == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), text)
				return err
			}
			return os.WriteFile(o.out, []byte(text), 0o644)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.id, "id", "", "session id")
	f.StringVar(&o.typ, "type", "POWER", "session mode: POWER, VOLT, VOLTRAW, FAST, SLOW")
	f.IntVar(&o.beam, "beam", 1, "beam number for beam sessions")
	f.StringVar(&o.start, "start", "+2m", "first start: RFC3339 time, MJD, or +duration from now")
	f.DurationVar(&o.duration, "duration", 10*time.Second, "observation length")
	f.DurationVar(&o.gap, "gap", 0, "pause between observations")
	f.IntVar(&o.count, "count", 1, "number of observations")
	f.StringVar(&o.target, "target", "", "target name (sun, jupiter and moon track by ephemeris)")
	f.Float64Var(&o.ra, "ra", 0, "right ascension in degrees")
	f.Float64Var(&o.dec, "dec", 0, "declination in degrees")
	f.BoolVar(&o.azalt, "azalt", false, "read --ra/--dec as azimuth/altitude")
	f.IntVar(&o.intTime, "int-time", 768, "integration time in ms")
	f.StringVar(&o.configFile, "config-file", "", "controller configuration file")
	f.StringVar(&o.calDir, "cal-dir", "", "calibration directory")
	f.BoolVar(&o.noCal, "no-cal", false, "skip calibration")
	f.StringVar(&o.piName, "pi", "", "PI name")
	f.StringVarP(&o.out, "output", "o", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (o *makeSDFOpts) render(now time.Time) (string, error) {
	typ, err := sdf.ParseObsType(o.typ)
	if err != nil {
		return "", err
	}
	if o.count < 1 {
		return "", fmt.Errorf("--count must be >= 1")
	}
	start, err := parseStart(o.start, now)
	if err != nil {
		return "", err
	}

	s := sdf.Session{
		ID:           strings.TrimSpace(o.id),
		Type:         typ,
		ConfigFile:   o.configFile,
		CalDirectory: o.calDir,
		DoCal:        !o.noCal,
		PIName:       o.piName,
	}
	if typ.UsesBeam() {
		s.Beam = o.beam
	}

	target := sdf.Target{Kind: sdf.TargetRADec, Name: o.target, RA: o.ra, Dec: o.dec}
	mode := sdf.ModeTrackRADec
	switch name := strings.ToLower(o.target); {
	case o.azalt:
		target = sdf.Target{Kind: sdf.TargetAzAlt, Name: o.target, Az: o.ra, Alt: o.dec}
		mode = sdf.ModeAzAlt
	case name == "sun":
		target, mode = sdf.Target{Kind: sdf.TargetName, Name: o.target}, sdf.ModeTrackSun
	case name == "jupiter":
		target, mode = sdf.Target{Kind: sdf.TargetName, Name: o.target}, sdf.ModeTrackJupiter
	case name == "moon":
		target, mode = sdf.Target{Kind: sdf.TargetName, Name: o.target}, sdf.ModeTrackMoon
	}

	obs := make([]sdf.Observation, 0, o.count)
	at := start
	for i := 0; i < o.count; i++ {
		ob := sdf.Observation{
			ID:       i + 1,
			Start:    at,
			Duration: o.duration.Milliseconds(),
		}
		if typ.UsesBeam() {
			ob.Mode, ob.Target, ob.IntTime = mode, target, o.intTime
		}
		obs = append(obs, ob)
		at = ob.End() + mjd.Days(o.gap)
	}

	text := sdf.WriteString(s, obs)
	// refuse to write something the executor would reject
	d, err := sdf.HeuristicReader{}.Read(strings.NewReader(text))
	if err == nil {
		_, _, err = sdf.Decode(d, logx.Nop())
	}
	if err != nil {
		return "", fmt.Errorf("generated description is invalid: %w", err)
	}
	return text, nil
}

// parseStart accepts "+5m", an RFC3339 time or a bare MJD.
func parseStart(raw string, now time.Time) (float64, error) {
	raw = strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(raw, "+"); ok {
		d, err := time.ParseDuration(rest)
		if err != nil {
			return 0, fmt.Errorf("--start: %w", err)
		}
		return mjd.FromTime(now.Add(d)), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return mjd.FromTime(t), nil
	}
	var m float64
	if _, err := fmt.Sscanf(raw, "%g", &m); err != nil || m <= 0 {
		return 0, fmt.Errorf("--start: want +duration, RFC3339 or MJD, got %q", raw)
	}
	return m, nil
}
