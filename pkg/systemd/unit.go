package systemd

import (
	"strings"
	"time"
)

// UnitStatus is the state of one service unit.
type UnitStatus struct {
	Name        string
	Active      string // active, inactive, failed, ...
	SubState    string // running, dead, ...
	LoadState   string // loaded, not-found, ...
	Description string
	ActiveSince time.Time
	StateChange time.Time
}

func (s UnitStatus) Running() bool { return s.Active == "active" && s.SubState == "running" }

// unitName appends ".service" when name has no unit suffix.
func unitName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}

// statusFromProps maps a D-Bus unit property map.
func statusFromProps(name string, props map[string]any) UnitStatus {
	str := func(k string) string {
		v, _ := props[k].(string)
		return v
	}
	ts := func(k string) time.Time {
		// systemd timestamps are microseconds since the Unix epoch
		if v, ok := props[k].(uint64); ok && v > 0 {
			return time.UnixMicro(int64(v))
		}
		return time.Time{}
	}
	st := UnitStatus{
		Name:        name,
		Active:      str("ActiveState"),
		SubState:    str("SubState"),
		LoadState:   str("LoadState"),
		Description: str("Description"),
		ActiveSince: ts("ActiveEnterTimestamp"),
		StateChange: ts("StateChangeTimestamp"),
	}
	if st.LoadState == "not-found" || st.LoadState == "" {
		st.Active, st.SubState, st.LoadState = "unknown", "not-found", "not-found"
	}
	return st
}

func isNoSuchUnitErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NoSuchUnit")
}
