package main

import (
	"fmt"
	"sort"
	"strconv"
)

// ProgressSnapshot counts items of one kind by status
type ProgressSnapshot struct {
	Kind   Kind
	Total  int
	Counts map[Status]int
}

// Ratio returns the share of items with the given status
func (s ProgressSnapshot) Ratio(status Status) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Counts[status]) / float64(s.Total)
}

// Complete reports whether every item is validated
func (s ProgressSnapshot) Complete() bool {
	return s.Total > 0 && s.Counts[StatusValidated] == s.Total
}

type itemState struct {
	ID     ItemID
	Name   string
	Status Status
}

// ProgressTracker derives item status from the store on every call
type ProgressTracker struct {
	store   *Store
	content ContentSettings
}

// NewProgressTracker creates a tracker over store
func NewProgressTracker(store *Store, content ContentSettings) *ProgressTracker {
	return &ProgressTracker{store: store, content: content}
}

// Snapshot counts every item of kind by status
func (t *ProgressTracker) Snapshot(kind Kind) (ProgressSnapshot, error) {
	states, err := t.scan(kind)
	if err != nil {
		return ProgressSnapshot{}, err
	}
	snap := ProgressSnapshot{Kind: kind, Total: len(states), Counts: make(map[Status]int)}
	for _, s := range states {
		snap.Counts[s.Status]++
	}
	return snap, nil
}

// NextMissing returns the lowest identifier of kind that is not validated
// and not skipped. Area identifiers are allocated by generation, so a
// skipped area blocks every later one.
func (t *ProgressTracker) NextMissing(kind Kind, skip func(ItemID) bool) (ItemID, bool, error) {
	states, err := t.scan(kind)
	if err != nil {
		return ItemID{}, false, err
	}
	for _, s := range states {
		if s.Status == StatusValidated {
			continue
		}
		if skip != nil && skip(s.ID) {
			if kind.Base() == KindArea {
				return ItemID{}, false, nil
			}
			continue
		}
		return s.ID, true, nil
	}
	return ItemID{}, false, nil
}

// Pending returns the generated but unchecked items of kind in ascending order
func (t *ProgressTracker) Pending(kind Kind) ([]ItemID, error) {
	states, err := t.scan(kind)
	if err != nil {
		return nil, err
	}
	var ids []ItemID
	for _, s := range states {
		if s.Status == StatusGenerated {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

// Status returns the status of one item
func (t *ProgressTracker) Status(kind Kind, id ItemID) (Status, error) {
	states, err := t.scan(kind)
	if err != nil {
		return StatusMissing, err
	}
	for _, s := range states {
		if s.ID == id {
			return s.Status, nil
		}
	}
	return StatusMissing, nil
}

func statusFrom(present bool, verdict VerdictRecord, checked bool) Status {
	switch {
	case !present:
		return StatusMissing
	case !checked:
		return StatusGenerated
	case verdict.Pass:
		return StatusValidated
	}
	return StatusRejected
}

// scan lists every item of kind in ascending identifier order
func (t *ProgressTracker) scan(kind Kind) ([]itemState, error) {
	switch kind.Base() {
	case KindArea:
		return t.scanAreas(kind)
	case KindAdventure, KindLog, KindLocation:
		return t.scanChildren(kind)
	}
	return nil, fmt.Errorf("unknown kind %q", kind)
}

func (t *ProgressTracker) scanAreas(kind Kind) ([]itemState, error) {
	areas, err := t.store.Areas(kind)
	if err != nil {
		return nil, err
	}
	verdicts, err := t.store.Verdicts(kind, 0)
	if err != nil {
		return nil, err
	}

	total := t.content.AreaTarget
	for no := range areas {
		if no+1 > total {
			total = no + 1
		}
	}

	states := make([]itemState, 0, total)
	for n := 0; n < total; n++ {
		area, present := areas[n]
		v, checked := verdicts[strconv.Itoa(n)]
		s := itemState{ID: AreaID(n), Status: statusFrom(present, v, checked)}
		if present {
			s.Name = area.Name
		}
		states = append(states, s)
	}
	return states, nil
}

func (t *ProgressTracker) scanChildren(kind Kind) ([]itemState, error) {
	parentKind, _ := kind.Parent()
	parents, err := t.scan(parentKind)
	if err != nil {
		return nil, err
	}

	var states []itemState
	verdictsByArea := make(map[int]map[string]VerdictRecord)

	for _, parent := range parents {
		if parent.Status != StatusValidated {
			continue
		}
		area := parent.ID.Area

		verdicts, ok := verdictsByArea[area]
		if !ok {
			verdicts, err = t.store.Verdicts(kind, area)
			if err != nil {
				return nil, err
			}
			verdictsByArea[area] = verdicts
		}

		var slots []Slot
		if parentKind.Base() == KindArea {
			slots = t.store.Slots()
		} else if slot, ok := t.store.SlotByIndex(parent.ID.Slot); ok {
			slots = []Slot{slot}
		}

		present, err := t.presence(kind, area, slots)
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			v, checked := verdicts[slot.Name]
			states = append(states, itemState{
				ID:     ItemID{Area: area, Slot: slot.Index},
				Name:   slot.Name,
				Status: statusFrom(present[slot.Name], v, checked),
			})
		}
	}

	sort.Slice(states, func(i, j int) bool { return states[i].ID.Less(states[j].ID) })
	return states, nil
}

// presence reports which slots of an area have a complete representation
func (t *ProgressTracker) presence(kind Kind, area int, slots []Slot) (map[string]bool, error) {
	present := make(map[string]bool, len(slots))
	switch kind.Base() {
	case KindAdventure:
		advs, err := t.store.Adventures(kind, area)
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			_, present[slot.Name] = advs[slot.Name]
		}
	case KindLog:
		for _, slot := range slots {
			lines, err := t.store.Log(kind, area, slot.Name)
			if err != nil {
				return nil, err
			}
			present[slot.Name] = len(lines) >= t.content.MinLogLines
		}
	case KindLocation:
		for _, slot := range slots {
			labels, err := t.store.Location(kind, area, slot.Name)
			if err != nil {
				return nil, err
			}
			lines, err := t.store.Log(kind.withLock(KindLog), area, slot.Name)
			if err != nil {
				return nil, err
			}
			present[slot.Name] = len(labels) > 0 && len(labels) == len(lines)
		}
	}
	return present, nil
}
