package revision

// Session remembers the record as it was when editing started. The snapshot
// is private and never mutated, so Changes always diffs against the opening
// state however often it is called.
type Session struct {
	snapshot Record
	paths    []string
}

// NewSession snapshots original. paths limits which fields are tracked; with
// none, every leaf is tracked.
func NewSession(original Record, paths ...string) *Session {
	return &Session{snapshot: Snapshot(original), paths: append([]string(nil), paths...)}
}

// Original returns a copy of the snapshot.
func (s *Session) Original() Record {
	return Snapshot(s.snapshot)
}

// Changes lists the tracked paths that differ in current.
func (s *Session) Changes(current Record) []string {
	return Diff(s.snapshot, current, s.paths)
}

// Details is Changes with both values of every differing path.
func (s *Session) Details(current Record) []Change {
	return Compare(s.snapshot, current, s.paths)
}

// Dirty reports whether anything tracked changed.
func (s *Session) Dirty(current Record) bool {
	return len(s.Changes(current)) > 0
}
