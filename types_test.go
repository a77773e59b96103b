package main

import (
	"testing"
)

func TestParseKindAndParents(t *testing.T) {
	tests := []struct {
		input      string
		wantParent Kind
		hasParent  bool
		locked     bool
	}{
		{"area", "", false, false},
		{"adventure", KindArea, true, false},
		{"log", KindAdventure, true, false},
		{"location", KindLog, true, false},
		{"locked_area", "", false, true},
		{"locked_adventure", KindLockedArea, true, true},
		{"locked_log", KindLockedAdventure, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			kind, err := ParseKind(tt.input)
			if err != nil {
				t.Fatalf("ParseKind() error = %v", err)
			}
			parent, ok := kind.Parent()
			if ok != tt.hasParent || parent != tt.wantParent {
				t.Errorf("Parent() = %q, %v; want %q, %v", parent, ok, tt.wantParent, tt.hasParent)
			}
			if kind.Locked() != tt.locked {
				t.Errorf("Locked() = %v", kind.Locked())
			}
		})
	}

	if _, err := ParseKind("locked_location"); err == nil {
		t.Error("ParseKind accepted locked_location")
	}
}

func TestItemIDOrderAndFormat(t *testing.T) {
	tests := []struct {
		a, b ItemID
		less bool
	}{
		{AreaID(0), AreaID(1), true},
		{ItemID{Area: 1, Slot: 0}, ItemID{Area: 0, Slot: 5}, false},
		{ItemID{Area: 2, Slot: 1}, ItemID{Area: 2, Slot: 3}, true},
		{AreaID(2), ItemID{Area: 2, Slot: 0}, true},
	}
	for _, tt := range tests {
		if got := tt.a.Less(tt.b); got != tt.less {
			t.Errorf("%v.Less(%v) = %v, want %v", tt.a, tt.b, got, tt.less)
		}
	}

	if got := AreaID(7).String(); got != "007" {
		t.Errorf("AreaID(7).String() = %q", got)
	}
	if got := (ItemID{Area: 12, Slot: 3}).String(); got != "012/03" {
		t.Errorf("String() = %q", got)
	}
}

func TestRunSummaryRecord(t *testing.T) {
	var s RunSummary
	s.record(AreaID(0), StatusValidated, nil)
	s.record(AreaID(1), StatusFailed, parseError("x", "bad"))
	s.record(AreaID(2), StatusRejected, nil)

	if s.Processed != 3 || s.Validated != 1 || s.Failed != 1 || s.Rejected != 1 {
		t.Errorf("summary = %+v", s)
	}
	if len(s.Results) != 3 || s.Results[1].Status != StatusFailed {
		t.Errorf("results = %+v", s.Results)
	}
}
