package main

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies one kind of generated content
type Kind string

const (
	KindArea            Kind = "area"
	KindAdventure       Kind = "adventure"
	KindLog             Kind = "log"
	KindLocation        Kind = "location"
	KindLockedArea      Kind = "locked_area"
	KindLockedAdventure Kind = "locked_adventure"
	KindLockedLog       Kind = "locked_log"
)

const lockedPrefix = "locked_"

// allKinds lists every kind in the order the CLI registers them
var allKinds = []Kind{
	KindArea,
	KindLockedArea,
	KindAdventure,
	KindLockedAdventure,
	KindLog,
	KindLockedLog,
	KindLocation,
}

// ParseKind converts a CLI argument into a Kind
func ParseKind(s string) (Kind, error) {
	for _, k := range allKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown content kind %q", s)
}

// Locked reports whether the kind is generated under the locked rule set
func (k Kind) Locked() bool {
	return strings.HasPrefix(string(k), lockedPrefix)
}

// Base returns the unlocked kind with the same shape
func (k Kind) Base() Kind {
	return Kind(strings.TrimPrefix(string(k), lockedPrefix))
}

// withLock returns the variant of base matching the lock state of k
func (k Kind) withLock(base Kind) Kind {
	if k.Locked() {
		return Kind(lockedPrefix + string(base))
	}
	return base
}

// Parent returns the kind whose items a kind's items are generated from
func (k Kind) Parent() (Kind, bool) {
	switch k.Base() {
	case KindAdventure:
		return k.withLock(KindArea), true
	case KindLog:
		return k.withLock(KindAdventure), true
	case KindLocation:
		return k.withLock(KindLog), true
	}
	return "", false
}

// Status is the lifecycle state of a content item
type Status int

const (
	StatusMissing Status = iota
	StatusGenerated
	StatusValidated
	StatusRejected
	StatusFailed
)

var statusNames = map[Status]string{
	StatusMissing:   "missing",
	StatusGenerated: "generated",
	StatusValidated: "validated",
	StatusRejected:  "rejected",
	StatusFailed:    "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ItemID locates an item in the area hierarchy. Area items use Slot -1.
type ItemID struct {
	Area int
	Slot int
}

// AreaID returns the identifier of area n
func AreaID(n int) ItemID {
	return ItemID{Area: n, Slot: -1}
}

// Less orders identifiers by area, then slot
func (id ItemID) Less(other ItemID) bool {
	if id.Area != other.Area {
		return id.Area < other.Area
	}
	return id.Slot < other.Slot
}

func (id ItemID) String() string {
	if id.Slot < 0 {
		return fmt.Sprintf("%03d", id.Area)
	}
	return fmt.Sprintf("%03d/%02d", id.Area, id.Slot)
}

// Entry is a named feature such as a creature, item or waypoint
type Entry struct {
	Name    string `json:"name"`
	Feature string `json:"feature"`
}

func (e Entry) String() string {
	if e.Feature == "" {
		return e.Name
	}
	return e.Name + ": " + e.Feature
}

// AreaPayload holds the fields of a generated area
type AreaPayload struct {
	No                 int
	Name               string
	Geography          string
	History            string
	Risks              string
	Treasure           Entry
	TreasureLocation   string
	Items              []Entry
	DangerousCreatures []Entry
	HarmlessCreatures  []Entry
	Waypoints          []Entry
	Cities             []Entry
	Routes             []Entry
	RestPoints         []Entry
}

// LocationNames returns every name a location label may refer to
func (a *AreaPayload) LocationNames() []string {
	names := []string{a.Name}
	for _, group := range [][]Entry{a.Waypoints, a.Cities, a.Routes, a.RestPoints} {
		for _, e := range group {
			names = append(names, e.Name)
		}
	}
	return names
}

// Chapter is one step of an adventure outline
type Chapter struct {
	Number  int
	Title   string
	Content string
}

func (c Chapter) String() string {
	return c.Title + ": " + c.Content
}

// AdventurePayload holds the outline of one adventure
type AdventurePayload struct {
	Name     string
	Result   string
	Chapters []Chapter
}

// LogPayload holds the lines of an adventure log
type LogPayload struct {
	Lines []string
}

// LocationPayload holds one location label per log line
type LocationPayload struct {
	Labels []string
}

// ContentItem is one generated artifact
type ContentItem struct {
	Kind    Kind
	ID      ItemID
	Name    string
	Payload any
	Status  Status
}

func (c *ContentItem) String() string {
	if c.Name != "" {
		return fmt.Sprintf("%s %s (%s)", c.Kind, c.ID, c.Name)
	}
	return fmt.Sprintf("%s %s", c.Kind, c.ID)
}

// Verdict is the outcome of checking an item
type Verdict struct {
	Pass   bool
	Reason string
}

// RunMode selects what a pass over a kind does
type RunMode int

const (
	ModeGenerate RunMode = iota
	ModeCheckOnly
)

func (m RunMode) String() string {
	if m == ModeCheckOnly {
		return "check-only"
	}
	return "generate"
}

// ItemResult tracks the outcome of processing one item
type ItemResult struct {
	ID     ItemID
	Status Status
	Error  error
}

// RunSummary aggregates the outcome of one pass
type RunSummary struct {
	RunID      string
	Kind       Kind
	Mode       RunMode
	Processed  int
	Validated  int
	Rejected   int
	Failed     int
	Results    []ItemResult
	StartedAt  time.Time
	FinishedAt time.Time
}

func (s *RunSummary) record(id ItemID, status Status, err error) {
	s.Processed++
	switch status {
	case StatusValidated:
		s.Validated++
	case StatusRejected:
		s.Rejected++
	case StatusFailed:
		s.Failed++
	}
	s.Results = append(s.Results, ItemResult{ID: id, Status: status, Error: err})
}
