package scheduler

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"lwaobs/pkg/solar"
)

// ErrManualOverride means an operator set the analog settings by hand and
// the switch must leave them alone.
var ErrManualOverride = errors.New("scheduler: manual override in place")

// SolarSwitch picks the day or night command from the Sun's altitude at
// Site when the job fires.
type SolarSwitch struct {
	Site         solar.Site `json:"site"`
	Threshold    float64    `json:"threshold_deg"`
	DayCommand   string     `json:"day_command"`
	NightCommand string     `json:"night_command"`
	// OverrideFile suppresses the switch while it exists.
	OverrideFile string `json:"override_file,omitempty"`
}

// CommandAt returns the instruction the job submits when it fires at t.
func (j Job) CommandAt(t time.Time) (string, error) {
	sw := j.Solar
	if sw == nil {
		return j.Command, nil
	}
	if p := strings.TrimSpace(sw.OverrideFile); p != "" {
		if _, err := os.Stat(p); err == nil {
			return "", ErrManualOverride
		}
	}
	if solar.Daytime(t, sw.Site, sw.Threshold) {
		return sw.DayCommand, nil
	}
	return sw.NightCommand, nil
}

func (sw *SolarSwitch) validate() error {
	var errs []error
	if strings.TrimSpace(sw.DayCommand) == "" || strings.TrimSpace(sw.NightCommand) == "" {
		errs = append(errs, errors.New("solar: day_command and night_command required"))
	}
	if math.Abs(sw.Site.Lat) > 90 {
		errs = append(errs, fmt.Errorf("solar: lat %.4f out of range", sw.Site.Lat))
	}
	if math.Abs(sw.Site.Lon) > 180 {
		errs = append(errs, fmt.Errorf("solar: lon %.4f out of range", sw.Site.Lon))
	}
	if math.Abs(sw.Threshold) > 90 {
		errs = append(errs, fmt.Errorf("solar: threshold %.2f out of range", sw.Threshold))
	}
	return errors.Join(errs...)
}
