package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Range is a closed MJD interval. It encodes as [start, end].
type Range struct {
	Start float64
	End   float64
}

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{r.Start, r.End})
}

func (r *Range) UnmarshalJSON(b []byte) error {
	var v [2]float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	r.Start, r.End = v[0], v[1]
	return nil
}

// Overlaps reports whether two closed intervals share at least one instant.
func (r Range) Overlaps(o Range) bool {
	return r.Start <= o.End && o.Start <= r.End
}

// Summary maps observing mode -> session mode name -> booked time range.
type Summary map[string]map[string]Range

// ModeOf returns the observing mode part of a session mode name, the text
// after its last underscore ("1042_POWER4" -> "POWER4").
func ModeOf(modeName string) string {
	if i := strings.LastIndexByte(modeName, '_'); i >= 0 {
		return modeName[i+1:]
	}
	return modeName
}

// Summarize reduces rows to the time range booked by each session mode name.
func Summarize(rows []Row) Summary {
	s := Summary{}
	for _, r := range rows {
		s.extend(r.ModeName, Range{Start: r.At, End: r.At})
	}
	return s
}

func (s Summary) extend(name string, r Range) {
	mode := ModeOf(name)
	m, ok := s[mode]
	if !ok {
		m = map[string]Range{}
		s[mode] = m
	}
	cur, ok := m[name]
	if !ok {
		m[name] = r
		return
	}
	cur.Start = min(cur.Start, r.Start)
	cur.End = max(cur.End, r.End)
	m[name] = cur
}

// Merge folds o into s, widening ranges of names present in both.
func (s Summary) Merge(o Summary) {
	for _, names := range o {
		for name, r := range names {
			s.extend(name, r)
		}
	}
}

// Remove drops a session mode name and reports whether it was present.
func (s Summary) Remove(name string) bool {
	mode := ModeOf(name)
	m, ok := s[mode]
	if !ok {
		return false
	}
	if _, ok := m[name]; !ok {
		return false
	}
	delete(m, name)
	if len(m) == 0 {
		delete(s, mode)
	}
	return true
}

// Get returns the range booked by name.
func (s Summary) Get(name string) (Range, bool) {
	r, ok := s[ModeOf(name)][name]
	return r, ok
}

// Len counts session mode names.
func (s Summary) Len() int {
	n := 0
	for _, m := range s {
		n += len(m)
	}
	return n
}

func (s Summary) Clone() Summary {
	out := make(Summary, len(s))
	for mode, names := range s {
		cp := make(map[string]Range, len(names))
		for k, v := range names {
			cp[k] = v
		}
		out[mode] = cp
	}
	return out
}

// Entry is one flattened summary item.
type Entry struct {
	Mode     string
	ModeName string
	Range    Range
}

// Entries flattens s ordered by start time.
func (s Summary) Entries() []Entry {
	var out []Entry
	for mode, names := range s {
		for name, r := range names {
			out = append(out, Entry{Mode: mode, ModeName: name, Range: r})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Range.Start != out[j].Range.Start {
			return out[i].Range.Start < out[j].Range.Start
		}
		return out[i].ModeName < out[j].ModeName
	})
	return out
}

// Conflict is one overlap between a new booking and an existing one.
type Conflict struct {
	Mode      string
	New       string
	NewRange  Range
	Existing  string
	Range     Range
	Submitted bool
}

func (c Conflict) String() string {
	where := "scheduled"
	if c.Submitted {
		where = "submitted"
	}
	return fmt.Sprintf("%s [%.6f, %.6f] overlaps %s %s [%.6f, %.6f]",
		c.New, c.NewRange.Start, c.NewRange.End, where, c.Existing, c.Range.Start, c.Range.End)
}

// ConflictError rejects a submission that double-books a resource.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, c.String())
	}
	return "schedule: conflict: " + strings.Join(parts, "; ")
}

// FindConflicts compares every range in next against the ranges of the same
// observing mode in pending and submitted.
func FindConflicts(next, pending, submitted Summary) []Conflict {
	var out []Conflict
	check := func(existing Summary, isSubmitted bool) {
		for mode, names := range next {
			for name, r := range names {
				for other, or := range existing[mode] {
					if r.Overlaps(or) {
						out = append(out, Conflict{
							Mode: mode, New: name, NewRange: r,
							Existing: other, Range: or, Submitted: isSubmitted,
						})
					}
				}
			}
		}
	}
	check(pending, false)
	check(submitted, true)
	sort.Slice(out, func(i, j int) bool {
		if out[i].New != out[j].New {
			return out[i].New < out[j].New
		}
		return out[i].Existing < out[j].Existing
	})
	return out
}

// IsConflicted reports whether next overlaps anything in pending or submitted.
func IsConflicted(next, pending, submitted Summary) bool {
	return len(FindConflicts(next, pending, submitted)) > 0
}
