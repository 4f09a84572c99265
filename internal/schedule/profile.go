package schedule

import "time"

// Profile holds the lead times a builder leaves between setup steps.
// Calibration only applies to sessions that calibrate their beam.
type Profile struct {
	Controller  time.Duration
	Configure   time.Duration
	Calibration time.Duration
	Pointing    time.Duration
	Recording   time.Duration
	// Preroll is how long before the first recording the visibility
	// builders initialise the controller.
	Preroll time.Duration
	// Step separates back-to-back setup commands.
	Step time.Duration
}

func BufferProfile() Profile {
	return Profile{
		Controller:  20 * time.Second,
		Configure:   20 * time.Second,
		Calibration: 480 * time.Second,
		Pointing:    10 * time.Second,
		Recording:   5 * time.Second,
		Preroll:     20 * time.Second,
		Step:        100 * time.Millisecond,
	}
}

func ASAPProfile() Profile {
	const d = 100 * time.Millisecond
	return Profile{
		Controller:  d,
		Configure:   d,
		Calibration: d,
		Pointing:    d,
		Recording:   d,
		Preroll:     3 * d,
		Step:        d,
	}
}

// orDefault fills zero fields from def.
func (p Profile) orDefault(def Profile) Profile {
	fill := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	fill(&p.Controller, def.Controller)
	fill(&p.Configure, def.Configure)
	fill(&p.Calibration, def.Calibration)
	fill(&p.Pointing, def.Pointing)
	fill(&p.Recording, def.Recording)
	fill(&p.Preroll, def.Preroll)
	fill(&p.Step, def.Step)
	return p
}

// prefix is the lead time from controller init to the first observation.
func (p Profile) prefix(doCal bool) time.Duration {
	d := p.Controller + p.Configure + p.Pointing
	if doCal {
		d += p.Calibration
	}
	return d
}
