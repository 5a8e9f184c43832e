package treatment

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dentallab/labdesk/internal/domain/dentition"
)

// ToggleAction tells the caller what a Toggle did.
type ToggleAction string

const (
	ActionSelected   ToggleAction = "selected"
	ActionDeselected ToggleAction = "deselected"
	// ActionRemovalRequested means the position already belongs to a group.
	// Nothing changed; the caller asks the user to confirm and then calls
	// RemoveGroupContaining.
	ActionRemovalRequested ToggleAction = "removal_requested"
)

// ToggleResult is returned by Toggle. Group is set only for
// ActionRemovalRequested.
type ToggleResult struct {
	Action   ToggleAction         `json:"action"`
	Position dentition.PositionID `json:"position"`
	Group    *Group               `json:"group,omitempty"`
}

// Store holds the committed groups of one session and the transient
// selection. It is owned by a single session and is not safe for concurrent
// use.
//
// Invariants: the teeth of any two groups are disjoint; a group's teeth
// passed the adjacency check when committed; group indices are handed out
// from a counter and never reused, so removing a group leaves every other
// group's color untouched.
type Store struct {
	groups    []Group
	selection map[dentition.PositionID]struct{}
	nextIndex int
	newID     func() uuid.UUID
}

func NewStore() *Store {
	return &Store{
		selection: make(map[dentition.PositionID]struct{}),
		newID:     uuid.New,
	}
}

// Toggle flips id in the selection, or reports a removal request when id is
// already part of a committed group (whole-group removal policy).
func (s *Store) Toggle(id dentition.PositionID) ToggleResult {
	if g, ok := s.GroupContaining(id); ok {
		return ToggleResult{Action: ActionRemovalRequested, Position: id, Group: &g}
	}
	if _, ok := s.selection[id]; ok {
		delete(s.selection, id)
		return ToggleResult{Action: ActionDeselected, Position: id}
	}
	s.selection[id] = struct{}{}
	return ToggleResult{Action: ActionSelected, Position: id}
}

// Selection returns the uncommitted positions in natural order.
func (s *Store) Selection() []dentition.PositionID {
	out := make([]dentition.PositionID, 0, len(s.selection))
	for id := range s.selection {
		out = append(out, id)
	}
	dentition.SortPositions(out)
	return out
}

// CancelSelection drops the uncommitted positions.
func (s *Store) CancelSelection() {
	s.selection = make(map[dentition.PositionID]struct{})
}

// Commit turns the selection into a new group. An empty or non-contiguous
// selection is rejected with a ValidationError and the store is unchanged.
func (s *Store) Commit() (Group, error) {
	if len(s.selection) == 0 {
		return Group{}, ErrEmptySelection
	}
	teeth := s.Selection()
	if !dentition.IsContiguous(teeth) {
		return Group{}, ErrNotAdjacent
	}

	g := Group{
		ID:         s.newID(),
		GroupIndex: s.nextIndex,
		Teeth:      teeth,
		IsBridge:   len(teeth) > 1,
	}
	s.nextIndex++
	s.groups = append(s.groups, g)
	s.CancelSelection()
	return g.clone(), nil
}

// Remove deletes the group with the given id. Remaining groups keep their
// GroupIndex.
func (s *Store) Remove(groupID uuid.UUID) error {
	for i, g := range s.groups {
		if g.ID == groupID {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			return nil
		}
	}
	return ErrGroupNotFound
}

// RemoveGroupContaining deletes the whole group that covers id. It is called
// once the user confirms a removal request raised by Toggle.
func (s *Store) RemoveGroupContaining(id dentition.PositionID) (Group, error) {
	g, ok := s.GroupContaining(id)
	if !ok {
		return Group{}, ErrGroupNotFound
	}
	return g, s.Remove(g.ID)
}

// GroupContaining returns a copy of the group covering id, if any.
func (s *Store) GroupContaining(id dentition.PositionID) (Group, bool) {
	for _, g := range s.groups {
		if g.Contains(id) {
			return g.clone(), true
		}
	}
	return Group{}, false
}

// Groups returns copies of the committed groups in commit order.
func (s *Store) Groups() []Group {
	out := make([]Group, len(s.groups))
	for i, g := range s.groups {
		out[i] = g.clone()
	}
	return out
}

// Restore loads previously committed groups, e.g. when a saved request is
// reopened. Adjacency is not re-checked; disjointness is. The index counter
// resumes after the highest restored index.
func (s *Store) Restore(groups []Group) error {
	owner := make(map[dentition.PositionID]uuid.UUID)
	restored := make([]Group, 0, len(groups))
	next := 0
	for _, g := range groups {
		if len(g.Teeth) == 0 {
			return fmt.Errorf("group %s has no teeth", g.ID)
		}
		for _, t := range g.Teeth {
			if other, taken := owner[t]; taken {
				return fmt.Errorf("position %s is in groups %s and %s", t, other, g.ID)
			}
			owner[t] = g.ID
		}
		c := g.clone()
		dentition.SortPositions(c.Teeth)
		c.IsBridge = len(c.Teeth) > 1
		if c.ID == uuid.Nil {
			c.ID = s.newID()
		}
		if c.GroupIndex >= next {
			next = c.GroupIndex + 1
		}
		restored = append(restored, c)
	}
	s.groups = restored
	s.nextIndex = next
	s.CancelSelection()
	return nil
}
