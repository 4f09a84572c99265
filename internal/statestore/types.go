package statestore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lwaobs/internal/sdf"
)

var (
	ErrNotFound = errors.New("statestore: session not found")
	ErrClosed   = errors.New("statestore: closed")
)

// Config selects and configures a driver.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Status is the lifecycle state of a session.
type Status int

const (
	StatusScheduled Status = iota + 1
	StatusObserving
	StatusCompleted
	StatusSkipped
	StatusCancelled
)

var statusNames = [...]string{
	StatusScheduled: "scheduled",
	StatusObserving: "observing",
	StatusCompleted: "completed",
	StatusSkipped:   "skipped",
	StatusCancelled: "cancelled",
}

func (s Status) String() string {
	if s < StatusScheduled || s > StatusCancelled {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

func ParseStatus(s string) (Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for st := StatusScheduled; st <= StatusCancelled; st++ {
		if statusNames[st] == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("statestore: unknown status %q", s)
}

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped || s == StatusCancelled
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SessionRecord is the persisted view of a session.
type SessionRecord struct {
	SessionID  string    `json:"session_id"`
	Mode       string    `json:"session_mode"`
	Beam       int       `json:"session_drx_beam,omitempty"`
	PIID       string    `json:"pi_id,omitempty"`
	PIName     string    `json:"pi_name,omitempty"`
	ProjectID  string    `json:"project_id,omitempty"`
	ConfigFile string    `json:"config_file,omitempty"`
	CalDir     string    `json:"cal_dir,omitempty"`
	Status     Status    `json:"status"`
	LoadedAt   time.Time `json:"time_loaded"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RecordFrom builds a scheduled record for a parsed session.
func RecordFrom(s sdf.Session, now time.Time) SessionRecord {
	return SessionRecord{
		SessionID:  s.ID,
		Mode:       s.Type.String(),
		Beam:       s.Beam,
		PIID:       s.PIID,
		PIName:     s.PIName,
		ProjectID:  s.ProjectID,
		ConfigFile: s.ConfigFile,
		CalDir:     s.CalDirectory,
		Status:     StatusScheduled,
		LoadedAt:   now.UTC(),
		UpdatedAt:  now.UTC(),
	}
}

// StateUpdateError wraps a failed write to the state store.
type StateUpdateError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *StateUpdateError) Error() string {
	return fmt.Sprintf("statestore: %s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *StateUpdateError) Unwrap() error { return e.Err }
