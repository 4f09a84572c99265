package schedule

import (
	"fmt"
	"strconv"
	"time"

	"lwaobs/internal/control"
	"lwaobs/internal/sdf"
	"lwaobs/pkg/logx"
	"lwaobs/pkg/mjd"
)

const (
	DefaultConfigFile = "/home/pipeline/proj/lwa-shell/mnc_python/config/lwa_config_calim.yaml"
	DefaultGain       = 6

	fastRecorder = "drvf"
	slowRecorder = "drvs"
)

// Params carries what a builder needs besides the session itself.
type Params struct {
	Mode    Mode
	Profile Profile
	// DefaultCalDirectory is the directory the controller config already
	// points at; a session naming it gets no override command.
	DefaultCalDirectory string
	Log                 logx.Logger
}

// BuildFunc turns one session into its ordered rows.
type BuildFunc func(s sdf.Session, obs []sdf.Observation, p Params) ([]Row, error)

// For returns the builder of an observing type.
func For(t sdf.ObsType) (BuildFunc, error) {
	switch t {
	case sdf.ObsPower:
		return PowerBeam, nil
	case sdf.ObsVolt, sdf.ObsVoltRaw:
		return VoltBeam, nil
	case sdf.ObsFast:
		return FastVis, nil
	case sdf.ObsSlow:
		return SlowVis, nil
	default:
		return nil, fmt.Errorf("schedule: no builder for %s", t)
	}
}

type rowSet struct {
	s    sdf.Session
	name string
	rows []Row
}

func newRowSet(s sdf.Session) *rowSet { return &rowSet{s: s, name: s.ModeName()} }

func (r *rowSet) add(at float64, cmd control.Command) {
	r.rows = append(r.rows, Row{At: at, SessionID: r.s.ID, ModeName: r.name, Command: cmd})
}

func (r *rowSet) done() []Row {
	Sort(r.rows)
	return r.rows
}

func requireObservations(obs []sdf.Observation) error {
	if len(obs) == 0 {
		return &sdf.ValidationError{Field: "OBSERVATIONS", Msg: "session has no observations"}
	}
	return nil
}

func configFile(s sdf.Session) string {
	if s.ConfigFile != "" {
		return s.ConfigFile
	}
	return DefaultConfigFile
}

// PowerBeam schedules a power-beam session on recorder "dr<beam>".
func PowerBeam(s sdf.Session, obs []sdf.Observation, p Params) ([]Row, error) {
	if s.Beam < 1 || s.Beam > sdf.MaxBeam {
		return nil, &sdf.ValidationError{Field: "SESSION_DRX_BEAM", Msg: fmt.Sprintf("power beam %d outside 1..%d", s.Beam, sdf.MaxBeam)}
	}
	rec := "dr" + strconv.Itoa(s.Beam)
	return beamSchedule(s, obs, p, rec, func(o sdf.Observation) control.StartRecorder {
		return control.StartRecorder{
			IDs:      []string{rec},
			Duration: time.Duration(o.Duration) * time.Millisecond,
			TimeAvg:  time.Duration(o.IntTime) * time.Millisecond,
		}
	})
}

// VoltBeam schedules a voltage-beam session on recorder "drt<beam>". Only
// beam 1 can form voltage beams.
func VoltBeam(s sdf.Session, obs []sdf.Observation, p Params) ([]Row, error) {
	if s.Beam != 1 {
		return nil, &sdf.ValidationError{Field: "SESSION_DRX_BEAM", Msg: fmt.Sprintf("voltage beamforming is only supported on beam 1, got %d", s.Beam)}
	}
	log := p.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	for _, o := range obs {
		if o.Tuning == nil {
			return nil, &sdf.ParseError{Field: "OBS_FREQ1", Msg: fmt.Sprintf("observation %d has no tuning", o.ID)}
		}
	}

	rec := "drt" + strconv.Itoa(s.Beam)
	return beamSchedule(s, obs, p, rec, func(o sdf.Observation) control.StartRecorder {
		gain := o.Tuning.Gain
		if gain == sdf.GainUnset {
			gain = DefaultGain
			log.Warn("schedule.gain_default", logx.String("session", s.ID), logx.Int("obs_id", o.ID), logx.Int("gain", gain))
		}
		hi, lo := SplitGain(gain)
		return control.StartRecorder{
			IDs:      []string{rec},
			Duration: time.Duration(o.Duration) * time.Millisecond,
			Voltage: &control.VoltageSetup{
				Freq1Hz:   sdf.TuningHz(o.Tuning.Freq1),
				Freq2Hz:   sdf.TuningHz(o.Tuning.Freq2),
				Bandwidth: o.Tuning.Bandwidth,
				Gain1:     hi,
				Gain2:     lo,
			},
		}
	})
}

// SplitGain encodes a beam gain into its two halves. Gains above 15 carry
// the halves as the high and low bytes; smaller gains apply to both.
func SplitGain(gain int) (hi, lo int) {
	if gain > 15 {
		return (gain >> 8) & 0xFF, gain & 0xFF
	}
	return gain, gain
}

// beamSchedule lays out the sequence shared by beam sessions: controller
// init, optional calibration directory override, recorder configuration,
// then a start-recorder and point-beam pair per observation.
func beamSchedule(s sdf.Session, obs []sdf.Observation, p Params, rec string, start func(sdf.Observation) control.StartRecorder) ([]Row, error) {
	if err := requireObservations(obs); err != nil {
		return nil, err
	}
	pf := p.Profile
	rs := newRowSet(s)

	initAt := obs[0].Start - mjd.Days(pf.prefix(s.DoCal))
	rs.add(initAt, control.InitController{ConfigFile: configFile(s)})
	if s.CalDirectory != "" && s.CalDirectory != p.DefaultCalDirectory {
		rs.add(initAt+mjd.Days(pf.Step), control.SetCalDirectory{Dir: s.CalDirectory})
	}
	rs.add(initAt+mjd.Days(pf.Controller), control.ConfigureResource{IDs: []string{rec}, Calibrate: s.DoCal})

	end := obs[0].End()
	for _, o := range obs {
		sr := start(o)
		if p.Mode == ModeASAP {
			sr.Now = true
		} else {
			sr.Start = o.Start
		}
		at := o.Start - mjd.Days(pf.Pointing+pf.Recording)
		rs.add(at, sr)

		rs.add(at+mjd.Days(pf.Recording), control.PointBeam{
			Beam:     s.Beam,
			Target:   o.Target,
			Track:    o.Mode.Tracking() && o.Target.Kind != sdf.TargetAzAlt,
			Duration: time.Duration(o.Duration)*time.Millisecond + pf.Pointing,
		})
		end = max(end, o.End())
	}
	rs.add(end, control.Note{Text: "observation complete"})
	return rs.done(), nil
}

// FastVis schedules a fast-visibility session.
func FastVis(s sdf.Session, obs []sdf.Observation, p Params) ([]Row, error) {
	return visSchedule(s, obs, p, fastRecorder)
}

// SlowVis schedules a slow-visibility session.
func SlowVis(s sdf.Session, obs []sdf.Observation, p Params) ([]Row, error) {
	return visSchedule(s, obs, p, slowRecorder)
}

func visSchedule(s sdf.Session, obs []sdf.Observation, p Params, rec string) ([]Row, error) {
	if err := requireObservations(obs); err != nil {
		return nil, err
	}
	pf := p.Profile
	rs := newRowSet(s)

	at := obs[0].Start - mjd.Days(pf.Preroll)
	rs.add(at, control.InitController{ConfigFile: configFile(s)})
	rs.add(at+mjd.Days(pf.Step), control.ConfigureResource{IDs: []string{rec}})

	for _, o := range obs {
		sr := control.StartRecorder{IDs: []string{rec}}
		if p.Mode == ModeASAP {
			sr.Now = true
		} else {
			sr.Start = o.Start
		}
		rs.add(o.Start, sr)
		rs.add(o.End(), control.StopRecorder{IDs: []string{rec}})
	}
	return rs.done(), nil
}
