package schedule

// Snapshot is the live schedule: rows ordered by timestamp. It is not safe
// for concurrent use; the executor loop is its only owner.
type Snapshot struct {
	rows []Row
}

func (s *Snapshot) Len() int { return len(s.rows) }

// Rows returns a copy of the rows in order.
func (s *Snapshot) Rows() []Row { return append([]Row(nil), s.rows...) }

// Head returns the earliest row.
func (s *Snapshot) Head() (Row, bool) {
	if len(s.rows) == 0 {
		return Row{}, false
	}
	return s.rows[0], true
}

// Merge adds rows and restores timestamp order. Existing rows keep their
// position relative to new rows with the same timestamp.
func (s *Snapshot) Merge(rows []Row) {
	if len(rows) == 0 {
		return
	}
	s.rows = append(s.rows, rows...)
	Sort(s.rows)
}

// Take removes and returns every row of sessionID, in order.
func (s *Snapshot) Take(sessionID string) []Row {
	return s.extract(func(r Row) bool { return r.SessionID == sessionID })
}

// Strip removes every row booked under modeName and returns them.
func (s *Snapshot) Strip(modeName string) []Row {
	return s.extract(func(r Row) bool { return r.ModeName == modeName })
}

// Clear drops all rows and returns them.
func (s *Snapshot) Clear() []Row {
	out := s.rows
	s.rows = nil
	return out
}

// Sessions returns the distinct session ids in first-row order.
func (s *Snapshot) Sessions() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range s.rows {
		if !seen[r.SessionID] {
			seen[r.SessionID] = true
			out = append(out, r.SessionID)
		}
	}
	return out
}

func (s *Snapshot) Summary() Summary { return Summarize(s.rows) }

func (s *Snapshot) extract(match func(Row) bool) []Row {
	var taken []Row
	kept := s.rows[:0]
	for _, r := range s.rows {
		if match(r) {
			taken = append(taken, r)
		} else {
			kept = append(kept, r)
		}
	}
	// release references held past the new length
	for i := len(kept); i < len(s.rows); i++ {
		s.rows[i] = Row{}
	}
	s.rows = kept
	return taken
}
