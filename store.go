package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	areasFile      = "areas.csv"
	adventuresFile = "adventures.csv"
	logsDir        = "logs"
	locationsDir   = "locations"
	checksDir      = "checks"
	lockedDir      = "locked"
)

var areaColumns = []string{
	"no", "name", "geography", "history", "risks",
	"treasure", "treasure_location", "items",
	"dangerous_creatures", "harmless_creatures",
	"waypoints", "cities", "routes", "rest_points",
}

var verdictColumns = []string{"id", "verdict", "reason", "model", "checked_at"}

// Slot is one entry of the adventure outcome plan
type Slot struct {
	Index  int
	Name   string
	Result string
}

// buildSlots expands the outcome plan into named slots, e.g. failure1..failure10
func buildSlots(outcomes []Outcome) []Slot {
	var slots []Slot
	for _, o := range outcomes {
		for i := 1; i <= o.Count; i++ {
			slots = append(slots, Slot{
				Index:  len(slots),
				Name:   fmt.Sprintf("%s%d", o.Result, i),
				Result: o.Result,
			})
		}
	}
	return slots
}

// VerdictRecord is a persisted check result
type VerdictRecord struct {
	Verdict
	Model     string
	CheckedAt time.Time
}

// Store reads and writes the content tree under a data directory
type Store struct {
	root     string
	chapters int
	slots    []Slot
}

// NewStore creates a store rooted at dataDir
func NewStore(dataDir string, content ContentSettings) *Store {
	return &Store{
		root:     dataDir,
		chapters: content.Chapters,
		slots:    buildSlots(content.Outcomes),
	}
}

// Root returns the data directory
func (s *Store) Root() string {
	return s.root
}

// Slots returns the adventure outcome plan
func (s *Store) Slots() []Slot {
	return s.slots
}

// SlotByIndex returns the slot at index i
func (s *Store) SlotByIndex(i int) (Slot, bool) {
	if i < 0 || i >= len(s.slots) {
		return Slot{}, false
	}
	return s.slots[i], true
}

// SlotByName returns the slot with the given adventure name
func (s *Store) SlotByName(name string) (Slot, bool) {
	for _, slot := range s.slots {
		if slot.Name == name {
			return slot, true
		}
	}
	return Slot{}, false
}

func (s *Store) base(kind Kind) string {
	if kind.Locked() {
		return filepath.Join(s.root, lockedDir)
	}
	return s.root
}

func areaDirName(area int) string {
	return fmt.Sprintf("%03d", area)
}

func (s *Store) areaDir(kind Kind, area int) string {
	return filepath.Join(s.base(kind), areaDirName(area))
}

func (s *Store) areasPath(kind Kind) string {
	return filepath.Join(s.base(kind), areasFile)
}

func (s *Store) adventuresPath(kind Kind, area int) string {
	return filepath.Join(s.areaDir(kind, area), adventuresFile)
}

func (s *Store) logPath(kind Kind, area int, name string) string {
	return filepath.Join(s.areaDir(kind, area), logsDir, name+".txt")
}

func (s *Store) locationPath(kind Kind, area int, name string) string {
	return filepath.Join(s.areaDir(kind, area), locationsDir, name+".txt")
}

func (s *Store) checksPath(kind Kind, area int) string {
	if kind.Base() == KindArea {
		return filepath.Join(s.base(kind), checksDir, areasFile)
	}
	return filepath.Join(s.base(kind), checksDir, areaDirName(area), string(kind.Base())+".csv")
}

// HistoryPath returns the run history file
func (s *Store) HistoryPath() string {
	return filepath.Join(s.root, "history.jsonl")
}

func (s *Store) adventureColumns() []string {
	cols := []string{"name", "result"}
	for i := 1; i <= s.chapters; i++ {
		cols = append(cols, fmt.Sprintf("chapter_%d_title", i), fmt.Sprintf("chapter_%d_content", i))
	}
	return cols
}

// encodeEntries stores an entry list as a JSON array so names may contain any separator
func encodeEntries(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return ""
	}
	return string(data)
}

// decodeEntries reads a JSON array cell. Cells holding plain
// "name: feature" lines are still accepted.
func decodeEntries(cell string) []Entry {
	cell = strings.TrimSpace(cell)
	if strings.HasPrefix(cell, "[") {
		var entries []Entry
		if err := json.Unmarshal([]byte(cell), &entries); err != nil {
			return nil
		}
		return entries
	}

	var entries []Entry
	for _, line := range strings.Split(cell, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, feature, _ := strings.Cut(line, ": ")
		entries = append(entries, Entry{Name: strings.TrimSpace(name), Feature: strings.TrimSpace(feature)})
	}
	return entries
}

func areaToRow(a *AreaPayload) Row {
	return Row{
		"no":                  strconv.Itoa(a.No),
		"name":                a.Name,
		"geography":           a.Geography,
		"history":             a.History,
		"risks":               a.Risks,
		"treasure":            encodeEntries([]Entry{a.Treasure}),
		"treasure_location":   a.TreasureLocation,
		"items":               encodeEntries(a.Items),
		"dangerous_creatures": encodeEntries(a.DangerousCreatures),
		"harmless_creatures":  encodeEntries(a.HarmlessCreatures),
		"waypoints":           encodeEntries(a.Waypoints),
		"cities":              encodeEntries(a.Cities),
		"routes":              encodeEntries(a.Routes),
		"rest_points":         encodeEntries(a.RestPoints),
	}
}

// rowToArea decodes an area row; rows with an empty required column are incomplete
func rowToArea(row Row) (*AreaPayload, bool) {
	for _, col := range areaColumns {
		if strings.TrimSpace(row[col]) == "" {
			return nil, false
		}
	}
	no, err := strconv.Atoi(strings.TrimSpace(row["no"]))
	if err != nil || no < 0 {
		return nil, false
	}
	treasure := decodeEntries(row["treasure"])
	if len(treasure) == 0 {
		return nil, false
	}
	return &AreaPayload{
		No:                 no,
		Name:               row["name"],
		Geography:          row["geography"],
		History:            row["history"],
		Risks:              row["risks"],
		Treasure:           treasure[0],
		TreasureLocation:   row["treasure_location"],
		Items:              decodeEntries(row["items"]),
		DangerousCreatures: decodeEntries(row["dangerous_creatures"]),
		HarmlessCreatures:  decodeEntries(row["harmless_creatures"]),
		Waypoints:          decodeEntries(row["waypoints"]),
		Cities:             decodeEntries(row["cities"]),
		Routes:             decodeEntries(row["routes"]),
		RestPoints:         decodeEntries(row["rest_points"]),
	}, true
}

// Areas returns every complete area row keyed by area index
func (s *Store) Areas(kind Kind) (map[int]*AreaPayload, error) {
	table, err := readTable(s.areasPath(kind))
	if err != nil {
		return nil, err
	}
	areas := make(map[int]*AreaPayload, len(table.Rows))
	for _, row := range table.Rows {
		if area, ok := rowToArea(row); ok {
			areas[area.No] = area
		}
	}
	return areas, nil
}

// Area returns area n, or false when it is missing or incomplete
func (s *Store) Area(kind Kind, n int) (*AreaPayload, bool, error) {
	areas, err := s.Areas(kind)
	if err != nil {
		return nil, false, err
	}
	area, ok := areas[n]
	return area, ok, nil
}

// SaveArea inserts or replaces the row for area.No
func (s *Store) SaveArea(kind Kind, area *AreaPayload) error {
	path := s.areasPath(kind)
	table, err := readTable(path)
	if err != nil {
		return err
	}
	table.ensureHeader(areaColumns)
	table.upsert("no", areaToRow(area))
	if err := writeTable(path, table); err != nil {
		return fmt.Errorf("saving area %d: %w", area.No, err)
	}
	return nil
}

func (s *Store) adventureToRow(a *AdventurePayload) Row {
	row := Row{"name": a.Name, "result": a.Result}
	for _, ch := range a.Chapters {
		row[fmt.Sprintf("chapter_%d_title", ch.Number)] = ch.Title
		row[fmt.Sprintf("chapter_%d_content", ch.Number)] = ch.Content
	}
	return row
}

func (s *Store) rowToAdventure(row Row) (*AdventurePayload, bool) {
	adv := &AdventurePayload{Name: row["name"], Result: row["result"]}
	if adv.Name == "" || adv.Result == "" {
		return nil, false
	}
	for i := 1; i <= s.chapters; i++ {
		title := row[fmt.Sprintf("chapter_%d_title", i)]
		content := row[fmt.Sprintf("chapter_%d_content", i)]
		if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
			return nil, false
		}
		adv.Chapters = append(adv.Chapters, Chapter{Number: i, Title: title, Content: content})
	}
	return adv, true
}

// Adventures returns every complete adventure of an area keyed by name
func (s *Store) Adventures(kind Kind, area int) (map[string]*AdventurePayload, error) {
	table, err := readTable(s.adventuresPath(kind, area))
	if err != nil {
		return nil, err
	}
	advs := make(map[string]*AdventurePayload, len(table.Rows))
	for _, row := range table.Rows {
		if adv, ok := s.rowToAdventure(row); ok {
			advs[adv.Name] = adv
		}
	}
	return advs, nil
}

// Adventure returns one adventure, or false when it is missing or incomplete
func (s *Store) Adventure(kind Kind, area int, name string) (*AdventurePayload, bool, error) {
	advs, err := s.Adventures(kind, area)
	if err != nil {
		return nil, false, err
	}
	adv, ok := advs[name]
	return adv, ok, nil
}

// SaveAdventure inserts or replaces an adventure row
func (s *Store) SaveAdventure(kind Kind, area int, adv *AdventurePayload) error {
	path := s.adventuresPath(kind, area)
	table, err := readTable(path)
	if err != nil {
		return err
	}
	table.ensureHeader(s.adventureColumns())
	table.upsert("name", s.adventureToRow(adv))
	if err := writeTable(path, table); err != nil {
		return fmt.Errorf("saving adventure %s/%s: %w", areaDirName(area), adv.Name, err)
	}
	return nil
}

// Log returns the lines of an adventure log; nil when it does not exist
func (s *Store) Log(kind Kind, area int, name string) ([]string, error) {
	return readLines(s.logPath(kind, area, name))
}

// SaveLog replaces an adventure log
func (s *Store) SaveLog(kind Kind, area int, name string, lines []string) error {
	if err := writeLines(s.logPath(kind, area, name), lines); err != nil {
		return fmt.Errorf("saving log %s/%s: %w", areaDirName(area), name, err)
	}
	return nil
}

// Location returns the location labels of an adventure log; nil when missing
func (s *Store) Location(kind Kind, area int, name string) ([]string, error) {
	return readLines(s.locationPath(kind, area, name))
}

// SaveLocation replaces the location labels of an adventure log
func (s *Store) SaveLocation(kind Kind, area int, name string, labels []string) error {
	if err := writeLines(s.locationPath(kind, area, name), labels); err != nil {
		return fmt.Errorf("saving locations %s/%s: %w", areaDirName(area), name, err)
	}
	return nil
}

// Verdicts returns the latest verdict per item id for a kind within an area.
// Area verdicts ignore the area argument.
func (s *Store) Verdicts(kind Kind, area int) (map[string]VerdictRecord, error) {
	table, err := readTable(s.checksPath(kind, area))
	if err != nil {
		return nil, err
	}
	verdicts := make(map[string]VerdictRecord, len(table.Rows))
	for _, row := range table.Rows {
		var pass bool
		switch row["verdict"] {
		case "pass":
			pass = true
		case "fail":
			pass = false
		default:
			continue
		}
		checkedAt, _ := time.Parse(time.RFC3339, row["checked_at"])
		verdicts[row["id"]] = VerdictRecord{
			Verdict:   Verdict{Pass: pass, Reason: row["reason"]},
			Model:     row["model"],
			CheckedAt: checkedAt,
		}
	}
	return verdicts, nil
}

// SaveVerdict records the verdict for one item, replacing any earlier one
func (s *Store) SaveVerdict(kind Kind, id ItemID, name string, v Verdict, model string) error {
	path := s.checksPath(kind, id.Area)
	table, err := readTable(path)
	if err != nil {
		return err
	}
	key := verdictKey(kind, id, name)
	verdict := "fail"
	if v.Pass {
		verdict = "pass"
	}
	table.ensureHeader(verdictColumns)
	table.upsert("id", Row{
		"id":         key,
		"verdict":    verdict,
		"reason":     v.Reason,
		"model":      model,
		"checked_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err := writeTable(path, table); err != nil {
		return fmt.Errorf("saving verdict for %s %s: %w", kind, id, err)
	}
	return nil
}

func verdictKey(kind Kind, id ItemID, name string) string {
	if kind.Base() == KindArea {
		return strconv.Itoa(id.Area)
	}
	return name
}

// PruneArea removes an area row and everything generated under it
func (s *Store) PruneArea(kind Kind, area int) error {
	if err := s.removeRows(s.areasPath(kind), "no", strconv.Itoa(area)); err != nil {
		return err
	}
	if err := s.removeRows(s.checksPath(kind, area), "id", strconv.Itoa(area)); err != nil {
		return err
	}
	for _, dir := range []string{
		s.areaDir(kind, area),
		filepath.Join(s.base(kind), checksDir, areaDirName(area)),
	} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
	}
	return nil
}

// PruneAdventure removes an adventure row with its log and locations
func (s *Store) PruneAdventure(kind Kind, area int, name string) error {
	if err := s.removeRows(s.adventuresPath(kind, area), "name", name); err != nil {
		return err
	}
	if err := s.removeRows(s.checksPath(kind, area), "id", name); err != nil {
		return err
	}
	return s.PruneLog(kind.withLock(KindLog), area, name)
}

// PruneLog removes an adventure log and its locations
func (s *Store) PruneLog(kind Kind, area int, name string) error {
	if err := s.removeFile(s.logPath(kind, area, name)); err != nil {
		return err
	}
	if err := s.removeRows(s.checksPath(kind, area), "id", name); err != nil {
		return err
	}
	return s.PruneLocation(kind.withLock(KindLocation), area, name)
}

// PruneLocation removes the location labels of an adventure log
func (s *Store) PruneLocation(kind Kind, area int, name string) error {
	if err := s.removeFile(s.locationPath(kind, area, name)); err != nil {
		return err
	}
	return s.removeRows(s.checksPath(kind, area), "id", name)
}

func (s *Store) removeRows(path, key, value string) error {
	table, err := readTable(path)
	if err != nil {
		return err
	}
	if table.remove(key, func(v string) bool { return v == value }) == 0 {
		return nil
	}
	return writeTable(path, table)
}

func (s *Store) removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}
