package sdf

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"lwaobs/pkg/logx"
	"lwaobs/pkg/mjd"
)

const (
	MaxBeam    = 16
	MaxIntTime = 1024 // ms
)

// Load reads and decodes a description file.
func Load(path string, log logx.Logger) (*Description, Session, []Observation, error) {
	d, err := ReadFile(path)
	if err != nil {
		return nil, Session{}, nil, err
	}
	s, obs, err := Decode(d, log)
	return d, s, obs, err
}

// Decode converts a Description into a Session and its observations in file
// order. Observations out of start order are reported as a warning only.
func Decode(d *Description, log logx.Logger) (Session, []Observation, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if d == nil || d.Session == nil {
		return Session{}, nil, parseErr("", "empty description")
	}

	s, err := decodeSession(d.Session, log)
	if err != nil {
		return Session{}, nil, err
	}
	log = log.With(logx.String("session", s.ID))

	out := make([]Observation, 0, len(d.Observations))
	for i, b := range d.Observations {
		o, err := decodeObservation(s, b, log)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) && pe.Field != "" {
				pe.Field = "OBSERVATION_" + strconv.Itoa(i+1) + "." + pe.Field
			}
			return Session{}, nil, err
		}
		if n := len(out); n > 0 && out[n-1].Start > o.Start {
			log.Warn("sdf.observation_out_of_order",
				logx.Int("obs_id", o.ID),
				logx.Float64("start", o.Start),
				logx.Float64("previous_start", out[n-1].Start))
		}
		out = append(out, o)
	}
	return s, out, nil
}

func decodeSession(b *Block, log logx.Logger) (Session, error) {
	var s Session

	id, ok := b.Get("SESSION_ID")
	if !ok || id == "" {
		return s, parseErr("SESSION_ID", "required")
	}
	s.ID = id

	mode, ok := b.Get("SESSION_MODE")
	if !ok {
		log.Warn("sdf.session_mode_missing", logx.String("session", id), logx.String("assumed", ObsVolt.String()))
		s.Type = ObsVolt
	} else {
		t, err := ParseObsType(mode)
		if err != nil {
			return s, &ParseError{Field: "SESSION_MODE", Msg: "unsupported", Err: err}
		}
		s.Type = t
	}

	s.ConfigFile, _ = b.Get("CONFIG_FILE")
	s.PIID, _ = b.Get("PI_ID")
	s.PIName, _ = b.Get("PI_NAME")
	s.ProjectID, _ = b.Get("PROJECT_ID")

	if !s.Type.UsesBeam() {
		return s, nil
	}

	raw, ok := b.Get("SESSION_DRX_BEAM")
	if !ok {
		return s, parseErr("SESSION_DRX_BEAM", "required for %s sessions", s.Type)
	}
	beam, err := strconv.Atoi(raw)
	if err != nil {
		return s, &ParseError{Field: "SESSION_DRX_BEAM", Msg: "not an integer", Err: err}
	}
	if beam < 1 || beam > MaxBeam {
		return s, invalid("SESSION_DRX_BEAM", "beam %d outside 1..%d", beam, MaxBeam)
	}
	s.Beam = beam

	s.CalDirectory, _ = b.Get("CAL_DIR")
	s.DoCal = true
	if raw, ok := b.Get("DO_CAL"); ok {
		v, err := parseBool(raw)
		if err != nil {
			return s, &ParseError{Field: "DO_CAL", Msg: "not a boolean", Err: err}
		}
		s.DoCal = v
	}
	return s, nil
}

func decodeObservation(s Session, b *Block, log logx.Logger) (Observation, error) {
	var o Observation

	id, err := intField(b, "OBS_ID")
	if err != nil {
		return o, err
	}
	o.ID = int(id)

	if o.Duration, err = intField(b, "OBS_DUR"); err != nil {
		return o, err
	}
	if o.Duration <= 0 {
		return o, invalid("OBS_DUR", "duration %d ms must be positive", o.Duration)
	}

	if o.Start, err = startTime(b); err != nil {
		return o, err
	}

	rawMode, _ := b.Get("OBS_MODE")
	mode, known := ParseObsMode(rawMode)
	if !known {
		log.Warn("sdf.obs_mode_unknown", logx.Int("obs_id", o.ID), logx.String("obs_mode", rawMode))
	}
	o.Mode = mode

	if !s.Type.UsesBeam() {
		return o, nil
	}

	o.IntTime = 1
	if b.Has("OBS_INT_TIME") {
		v, err := intField(b, "OBS_INT_TIME")
		if err != nil {
			return o, err
		}
		if v < 0 || v > MaxIntTime {
			return o, invalid("OBS_INT_TIME", "%d ms outside 0..%d", v, MaxIntTime)
		}
		o.IntTime = int(v)
	}

	if o.Target, err = target(b, &o); err != nil {
		return o, err
	}
	if o.Target.Kind == TargetNone {
		log.Warn("sdf.target_missing", logx.Int("obs_id", o.ID))
	}

	if s.Type.Voltage() {
		t, err := tuning(b)
		if err != nil {
			return o, err
		}
		o.Tuning = t
	}
	return o, nil
}

// target resolves the pointing of an observation. A target named after an
// ephemeris body forces the matching tracking mode.
func target(b *Block, o *Observation) (Target, error) {
	name, hasName := b.Get("OBS_TARGET")
	if hasName {
		if m, ok := ephemerisTargets[strings.ToLower(name)]; ok {
			o.Mode = m
		}
	}
	if o.Mode.Ephemeris() {
		return Target{Kind: TargetName, Name: name}, nil
	}

	ra, hasRA, err := floatField(b, "OBS_RA")
	if err != nil {
		return Target{}, err
	}
	dec, hasDec, err := floatField(b, "OBS_DEC")
	if err != nil {
		return Target{}, err
	}
	if hasRA != hasDec {
		return Target{}, parseErr("OBS_RA", "OBS_RA and OBS_DEC must be given together")
	}
	if hasRA {
		return Target{Kind: TargetRADec, Name: name, RA: ra * 15, Dec: dec}, nil
	}

	az, hasAz, err := floatField(b, "OBS_AZ", "OBS_STP_C1[1]")
	if err != nil {
		return Target{}, err
	}
	alt, hasAlt, err := floatField(b, "OBS_ALT", "OBS_STP_C2[1]")
	if err != nil {
		return Target{}, err
	}
	if hasAz && hasAlt {
		return Target{Kind: TargetAzAlt, Name: name, Az: az, Alt: alt}, nil
	}

	if hasName && name != "" {
		return Target{Kind: TargetName, Name: name}, nil
	}
	return Target{}, nil
}

func tuning(b *Block) (*Tuning, error) {
	missing := func(field string) error {
		return parseErr(field, "voltage observation requires OBS_BW, OBS_FREQ1 and OBS_FREQ2 (stepped tuning is not supported)")
	}
	var t Tuning

	bw, ok, err := intOptional(b, "OBS_BW")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, missing("OBS_BW")
	}
	t.Bandwidth = int(bw)

	if t.Freq1, ok, err = intOptional(b, "OBS_FREQ1", "OBS_STP_FREQ1[1]"); err != nil {
		return nil, err
	} else if !ok {
		return nil, missing("OBS_FREQ1")
	}
	if t.Freq2, ok, err = intOptional(b, "OBS_FREQ2", "OBS_STP_FREQ2[1]"); err != nil {
		return nil, err
	} else if !ok {
		return nil, missing("OBS_FREQ2")
	}

	t.Gain = GainUnset
	g, ok, err := intOptional(b, "OBS_DRX_GAIN")
	if err != nil {
		return nil, err
	}
	if ok {
		t.Gain = int(g)
	}
	return &t, nil
}

// startTime prefers OBS_START_MJD + OBS_START_MPM and falls back to the UTC
// calendar form "OBS_START UTC YYYY MM DD HH:MM:SS[.fff]".
func startTime(b *Block) (float64, error) {
	if b.Has("OBS_START_MJD") && b.Has("OBS_START_MPM") {
		day, err := intField(b, "OBS_START_MJD")
		if err != nil {
			return 0, err
		}
		mpm, err := intField(b, "OBS_START_MPM")
		if err != nil {
			return 0, err
		}
		return mjd.Join(day, mpm), nil
	}

	f := b.Fields("OBS_START")
	if len(f) == 0 {
		return 0, parseErr("OBS_START", "required when OBS_START_MJD/OBS_START_MPM are absent")
	}
	t, err := parseUTC(f)
	if err != nil {
		return 0, &ParseError{Field: "OBS_START", Msg: "bad timestamp " + strings.Join(f, " "), Err: err}
	}
	return mjd.FromTime(t), nil
}

func parseUTC(f []string) (time.Time, error) {
	if strings.EqualFold(f[0], "UTC") {
		f = f[1:]
	}
	switch len(f) {
	case 4:
		year, err := strconv.Atoi(f[0])
		if err != nil {
			return time.Time{}, err
		}
		month, err := parseMonth(f[1])
		if err != nil {
			return time.Time{}, err
		}
		day, err := strconv.Atoi(f[2])
		if err != nil {
			return time.Time{}, err
		}
		clock, err := time.Parse("15:04:05", f[3])
		if err != nil {
			return time.Time{}, err
		}
		return time.Date(year, month, day, clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), time.UTC), nil
	case 1, 2:
		s := strings.Join(f, "T")
		for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339Nano} {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, strconv.ErrSyntax
	default:
		return time.Time{}, strconv.ErrSyntax
	}
}

func parseMonth(s string) (time.Month, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return 0, strconv.ErrRange
		}
		return time.Month(n), nil
	}
	if len(s) >= 3 {
		t, err := time.Parse("Jan", strings.ToUpper(s[:1])+strings.ToLower(s[1:3]))
		if err == nil {
			return t.Month(), nil
		}
	}
	return 0, strconv.ErrSyntax
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	}
	return false, strconv.ErrSyntax
}

func intField(b *Block, key string) (int64, error) {
	v, ok, err := intOptional(b, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, parseErr(key, "required")
	}
	return v, nil
}

// intOptional returns the first present key among keys. Values written with
// a trailing ".0" are accepted.
func intOptional(b *Block, keys ...string) (int64, bool, error) {
	for _, k := range keys {
		raw, ok := b.Get(k)
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(raw, 64)
			if ferr != nil || f != float64(int64(f)) {
				return 0, false, &ParseError{Field: k, Msg: "not an integer", Err: err}
			}
			v = int64(f)
		}
		return v, true, nil
	}
	return 0, false, nil
}

func floatField(b *Block, keys ...string) (float64, bool, error) {
	for _, k := range keys {
		raw, ok := b.Get(k)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, false, &ParseError{Field: k, Msg: "not a number", Err: err}
		}
		return v, true, nil
	}
	return 0, false, nil
}
