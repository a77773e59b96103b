package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderStatus(t *testing.T) {
	snapshots := []ProgressSnapshot{
		{Kind: KindArea, Total: 4, Counts: map[Status]int{StatusValidated: 3, StatusMissing: 1}},
		{Kind: KindAdventure, Total: 2, Counts: map[Status]int{StatusValidated: 2}},
	}

	var plain bytes.Buffer
	renderStatus(&plain, snapshots, false)
	lines := strings.Split(strings.TrimSpace(plain.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("plain output has %d lines, want 2:\n%s", len(lines), plain.String())
	}
	if !strings.HasPrefix(lines[0], "area\t3/4 validated (75.0%)") || !strings.Contains(lines[0], "missing=1") {
		t.Errorf("line 0 = %q", lines[0])
	}

	var styled bytes.Buffer
	renderStatus(&styled, snapshots, true)
	out := styled.String()
	for _, want := range []string{"Kind", "validated", "area", "adventure", "75.0%", "100.0%"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output lacks %q:\n%s", want, out)
		}
	}
}

func TestIsTerminalRejectsBuffers(t *testing.T) {
	if isTerminal(&bytes.Buffer{}) {
		t.Error("isTerminal() = true for a buffer")
	}
}

func TestDescribeTarget(t *testing.T) {
	config := testConfig(t)
	store := NewStore(config.Settings.DataDir, config.Settings.Content)

	tests := []struct {
		name    string
		kind    Kind
		area    int
		adv     string
		want    string
		wantErr bool
	}{
		{name: "area", kind: KindArea, area: 3, want: "area 003"},
		{name: "area with name", kind: KindArea, area: 3, adv: "failure1", wantErr: true},
		{name: "adventure", kind: KindLockedAdventure, area: 1, adv: "success1", want: "locked_adventure 001/success1"},
		{name: "log without name", kind: KindLog, area: 1, wantErr: true},
		{name: "unknown slot", kind: KindLog, area: 1, adv: "victory7", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := describeTarget(store, tt.kind, tt.area, tt.adv)
			if tt.wantErr {
				if err == nil {
					t.Errorf("describeTarget() expected error, got %q", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("describeTarget() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(tt.input), &out, "area 000"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
