package sdf

import (
	"fmt"
	"strings"
)

// ObsType is the observing mode of a session.
type ObsType int

const (
	ObsPower ObsType = iota + 1
	ObsVolt
	ObsVoltRaw
	ObsFast
	ObsSlow
)

var obsTypeNames = [...]string{
	ObsPower:   "POWER",
	ObsVolt:    "VOLT",
	ObsVoltRaw: "VOLTRAW",
	ObsFast:    "FAST",
	ObsSlow:    "SLOW",
}

func (t ObsType) String() string {
	if t < ObsPower || t > ObsSlow {
		return fmt.Sprintf("ObsType(%d)", int(t))
	}
	return obsTypeNames[t]
}

// ParseObsType maps a SESSION_MODE value to an ObsType.
func ParseObsType(s string) (ObsType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for t := ObsPower; t <= ObsSlow; t++ {
		if obsTypeNames[t] == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown session mode %q", s)
}

// UsesBeam reports whether sessions of this type book a beam.
func (t ObsType) UsesBeam() bool {
	return t == ObsPower || t == ObsVolt || t == ObsVoltRaw
}

// Voltage reports whether the type records raw voltages.
func (t ObsType) Voltage() bool { return t == ObsVolt || t == ObsVoltRaw }

// ObsMode is the beam tracking mode of an observation.
type ObsMode int

const (
	ModeUntracked ObsMode = iota
	ModeTrackRADec
	ModeTrackSun
	ModeTrackJupiter
	ModeTrackMoon
	ModeAzAlt
)

var obsModeNames = [...]string{
	ModeUntracked:    "UNTRACKED",
	ModeTrackRADec:   "TRK_RADEC",
	ModeTrackSun:     "TRK_SOL",
	ModeTrackJupiter: "TRK_JOV",
	ModeTrackMoon:    "TRK_LUN",
	ModeAzAlt:        "AZALT",
}

func (m ObsMode) String() string {
	if m < ModeUntracked || m > ModeAzAlt {
		return fmt.Sprintf("ObsMode(%d)", int(m))
	}
	return obsModeNames[m]
}

// ParseObsMode maps an OBS_MODE value to an ObsMode. The boolean is false
// for values outside the known set; callers treat those as untracked.
func ParseObsMode(s string) (ObsMode, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ModeUntracked, true
	}
	for m := ModeUntracked; m <= ModeAzAlt; m++ {
		if obsModeNames[m] == s {
			return m, true
		}
	}
	return ModeUntracked, false
}

// Tracking reports whether a beam pointed in this mode follows its target.
func (m ObsMode) Tracking() bool {
	switch m {
	case ModeTrackRADec, ModeTrackSun, ModeTrackJupiter, ModeTrackMoon:
		return true
	default:
		return false
	}
}

// Ephemeris reports whether the target position comes from an ephemeris.
func (m ObsMode) Ephemeris() bool {
	return m == ModeTrackSun || m == ModeTrackJupiter || m == ModeTrackMoon
}

// ephemerisTargets override OBS_MODE when named as the target.
var ephemerisTargets = map[string]ObsMode{
	"sun":     ModeTrackSun,
	"jupiter": ModeTrackJupiter,
	"moon":    ModeTrackMoon,
}

type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetName
	TargetRADec
	TargetAzAlt
)

// Target selects what a beam points at. RA and Dec are in degrees; Az and
// Alt in degrees.
type Target struct {
	Kind TargetKind
	Name string
	RA   float64
	Dec  float64
	Az   float64
	Alt  float64
}

// GainUnset marks an observation without OBS_DRX_GAIN.
const GainUnset = -1

// Tuning carries the voltage-beam receiver settings. Freq1 and Freq2 are
// tuning words; Bandwidth is the filter code.
type Tuning struct {
	Bandwidth int
	Freq1     int64
	Freq2     int64
	Gain      int
}

// Session is one observing campaign parsed from a description file.
type Session struct {
	ID           string
	Type         ObsType
	ConfigFile   string
	CalDirectory string
	DoCal        bool
	Beam         int // 0 when unset

	PIID      string
	PIName    string
	ProjectID string
}

// ModeName is the resource identity booked by the session: the session id,
// an underscore, the observing type and, for beam sessions, the beam number.
func (s Session) ModeName() string {
	n := s.ID + "_" + s.Type.String()
	if s.Beam > 0 {
		n += fmt.Sprint(s.Beam)
	}
	return n
}

// Observation is one pointing/recording interval of a session.
type Observation struct {
	ID       int
	Start    float64 // MJD
	Duration int64   // ms
	Mode     ObsMode
	Target   Target
	IntTime  int // ms
	Tuning   *Tuning
}

// End returns the MJD at which the observation stops recording.
func (o Observation) End() float64 {
	return o.Start + float64(o.Duration)/86_400_000
}
