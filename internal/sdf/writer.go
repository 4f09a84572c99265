package sdf

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"lwaobs/pkg/mjd"
)

// Default receiver tuning written for voltage observations without one:
// 53 MHz and 73 MHz, filter code 7, gain 6.
var DefaultTuning = Tuning{
	Bandwidth: 7,
	Freq1:     1161394218,
	Freq2:     1599656187,
	Gain:      6,
}

// TuningHz converts a tuning word to a frequency in Hz.
func TuningHz(word int64) float64 {
	return float64(word) * 196e6 / (1 << 32)
}

// Write renders a session and its observations in the description format.
// Read + Decode of the output reproduces s and obs up to millisecond start
// rounding and nanodegree coordinate rounding.
func Write(w io.Writer, s Session, obs []Observation) error {
	bw := bufio.NewWriter(w)
	kv := func(key string, format string, args ...any) {
		fmt.Fprintf(bw, "%-16s %s\n", key, fmt.Sprintf(format, args...))
	}

	piID := s.PIID
	if piID == "" {
		piID = "0"
	}
	piName := s.PIName
	if piName == "" {
		piName = "Observer"
	}
	projectID := s.ProjectID
	if projectID == "" {
		projectID = "0"
	}

	kv("PI_ID", "%s", piID)
	kv("PI_NAME", "%s", piName)
	bw.WriteString("\n")
	kv("PROJECT_ID", "%s", projectID)
	kv("SESSION_ID", "%s", s.ID)
	kv("SESSION_MODE", "%s", s.Type)
	if s.Type.UsesBeam() && s.Beam > 0 {
		kv("SESSION_DRX_BEAM", "%d", s.Beam)
	}
	if s.ConfigFile != "" {
		kv("CONFIG_FILE", "%s", s.ConfigFile)
	}
	if s.Type.UsesBeam() {
		if s.CalDirectory != "" {
			kv("CAL_DIR", "%s", s.CalDirectory)
		}
		kv("DO_CAL", "%s", pyBool(s.DoCal))
	}

	for _, o := range obs {
		bw.WriteString("\n")
		writeObservation(kv, s, o)
	}
	return bw.Flush()
}

func writeObservation(kv func(string, string, ...any), s Session, o Observation) {
	day, mpm := mjd.Split(o.Start)
	start := mjd.ToTime(mjd.Join(day, mpm))

	kv("OBS_ID", "%d", o.ID)
	if o.Target.Name != "" {
		kv("OBS_TARGET", "%s", o.Target.Name)
	}
	kv("OBS_START_MJD", "%d", day)
	kv("OBS_START_MPM", "%d", mpm)
	kv("OBS_START", "UTC %s", start.Format("2006 01 02 15:04:05.000"))
	kv("OBS_DUR", "%d", o.Duration)
	if s.Type.UsesBeam() {
		kv("OBS_INT_TIME", "%d", o.IntTime)
	}
	kv("OBS_DUR+", "%s", clock(time.Duration(o.Duration)*time.Millisecond))
	if o.Mode != ModeUntracked {
		kv("OBS_MODE", "%s", o.Mode)
	}

	switch o.Target.Kind {
	case TargetRADec:
		kv("OBS_RA", "%.9f", o.Target.RA/15)
		kv("OBS_DEC", "%+.9f", o.Target.Dec)
	case TargetAzAlt:
		kv("OBS_AZ", "%.9f", o.Target.Az)
		kv("OBS_ALT", "%.9f", o.Target.Alt)
	}

	if s.Type.Voltage() {
		t := DefaultTuning
		if o.Tuning != nil {
			t = *o.Tuning
		}
		kv("OBS_FREQ1", "%d", t.Freq1)
		kv("OBS_FREQ1+", "%.9f MHz", TuningHz(t.Freq1)/1e6)
		kv("OBS_FREQ2", "%d", t.Freq2)
		kv("OBS_FREQ2+", "%.9f MHz", TuningHz(t.Freq2)/1e6)
		kv("OBS_BW", "%d", t.Bandwidth)
		if t.Gain != GainUnset {
			kv("OBS_DRX_GAIN", "%d", t.Gain)
		}
	}
}

// clock formats d as HH:MM:SS.mmm.
func clock(d time.Duration) string {
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	sec := ms / 1000
	ms -= sec * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, sec, ms)
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// WriteString is Write into a string.
func WriteString(s Session, obs []Observation) string {
	var b strings.Builder
	_ = Write(&b, s, obs)
	return b.String()
}
