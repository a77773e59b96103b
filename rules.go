package main

import (
	"fmt"
	"sort"
	"strings"
)

// ruleContext is the read-only data structural rules consult
type ruleContext struct {
	content ContentSettings
	store   *Store
}

// structuralRules returns the failed rule descriptions for item; an empty
// result means the item passed
func structuralRules(rc ruleContext, item *ContentItem) ([]string, error) {
	switch p := item.Payload.(type) {
	case *AreaPayload:
		return areaRules(rc, item.Kind, p)
	case *AdventurePayload:
		return adventureRules(rc, p), nil
	case *LogPayload:
		return logRules(rc, p), nil
	case *LocationPayload:
		return locationRules(rc, item, p)
	}
	return nil, fmt.Errorf("no rules for payload %T", item.Payload)
}

func ngWordsIn(words []string, texts ...string) []string {
	var found []string
	for _, w := range words {
		if w == "" {
			continue
		}
		for _, t := range texts {
			if strings.Contains(t, w) {
				found = append(found, w)
				break
			}
		}
	}
	return found
}

func areaRules(rc ruleContext, kind Kind, a *AreaPayload) ([]string, error) {
	var failed []string

	required := []struct {
		name  string
		value string
	}{
		{"name", a.Name},
		{"geography", a.Geography},
		{"history", a.History},
		{"risks", a.Risks},
		{"treasure", a.Treasure.Name},
		{"treasure_location", a.TreasureLocation},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			failed = append(failed, fmt.Sprintf("missing %s", f.name))
		}
	}

	lists := []struct {
		name    string
		entries []Entry
	}{
		{"items", a.Items},
		{"dangerous_creatures", a.DangerousCreatures},
		{"harmless_creatures", a.HarmlessCreatures},
		{"waypoints", a.Waypoints},
		{"cities", a.Cities},
		{"routes", a.Routes},
		{"rest_points", a.RestPoints},
	}
	texts := []string{a.Name, a.Geography, a.History, a.Risks, a.Treasure.String(), a.TreasureLocation}
	for _, l := range lists {
		if len(l.entries) == 0 {
			failed = append(failed, fmt.Sprintf("missing %s", l.name))
		}
		for _, e := range l.entries {
			if strings.TrimSpace(e.Name) == "" {
				failed = append(failed, fmt.Sprintf("unnamed entry in %s", l.name))
				break
			}
			texts = append(texts, e.String())
		}
	}

	if words := ngWordsIn(rc.content.NGWords, texts...); len(words) > 0 {
		failed = append(failed, fmt.Sprintf("contains NG words: %s", strings.Join(words, ", ")))
	}
	if rc.content.AreaNameInvalidChars != "" && strings.ContainsAny(a.Name, rc.content.AreaNameInvalidChars) {
		failed = append(failed, fmt.Sprintf("area name %q contains invalid characters", a.Name))
	}

	existing, err := rc.store.Areas(kind)
	if err != nil {
		return nil, err
	}
	nos := make([]int, 0, len(existing))
	for no := range existing {
		nos = append(nos, no)
	}
	sort.Ints(nos)
	for _, no := range nos {
		other := existing[no]
		if no == a.No {
			continue
		}
		if other.Name == a.Name {
			failed = append(failed, fmt.Sprintf("area name %q duplicates area %03d", a.Name, no))
		}
		if a.Treasure.Name != "" && other.Treasure.Name == a.Treasure.Name {
			failed = append(failed, fmt.Sprintf("treasure %q duplicates area %03d", a.Treasure.Name, no))
		}
	}
	return failed, nil
}

func adventureRules(rc ruleContext, adv *AdventurePayload) []string {
	var failed []string
	if len(adv.Chapters) != rc.content.Chapters {
		failed = append(failed, fmt.Sprintf("has %d chapters, want %d", len(adv.Chapters), rc.content.Chapters))
	}

	var texts []string
	for i, ch := range adv.Chapters {
		if ch.Number != i+1 {
			failed = append(failed, fmt.Sprintf("chapter %d is numbered %d", i+1, ch.Number))
		}
		if strings.TrimSpace(ch.Title) == "" || strings.TrimSpace(ch.Content) == "" {
			failed = append(failed, fmt.Sprintf("chapter %d is empty", i+1))
		}
		texts = append(texts, ch.Title, ch.Content)
	}

	if words := ngWordsIn(rc.content.NGWords, texts...); len(words) > 0 {
		failed = append(failed, fmt.Sprintf("contains NG words: %s", strings.Join(words, ", ")))
	}
	return failed
}

func logRules(rc ruleContext, l *LogPayload) []string {
	var failed []string
	if len(l.Lines) < rc.content.MinLogLines {
		failed = append(failed, fmt.Sprintf("has %d lines, want at least %d", len(l.Lines), rc.content.MinLogLines))
	}
	for i, line := range l.Lines {
		if strings.ContainsAny(line, "{}") {
			failed = append(failed, fmt.Sprintf("line %d contains template braces", i+1))
			break
		}
	}
	if words := ngWordsIn(rc.content.NGWords, l.Lines...); len(words) > 0 {
		failed = append(failed, fmt.Sprintf("contains NG words: %s", strings.Join(words, ", ")))
	}
	return failed
}

func locationRules(rc ruleContext, item *ContentItem, loc *LocationPayload) ([]string, error) {
	slot, ok := rc.store.SlotByIndex(item.ID.Slot)
	if !ok {
		return []string{fmt.Sprintf("slot %d outside the outcome plan", item.ID.Slot)}, nil
	}
	lines, err := rc.store.Log(item.Kind.withLock(KindLog), item.ID.Area, slot.Name)
	if err != nil {
		return nil, err
	}
	area, found, err := rc.store.Area(item.Kind.withLock(KindArea), item.ID.Area)
	if err != nil {
		return nil, err
	}

	var failed []string
	if len(loc.Labels) != len(lines) {
		failed = append(failed, fmt.Sprintf("has %d labels for %d log lines", len(loc.Labels), len(lines)))
	}
	if !found {
		return append(failed, "area not found"), nil
	}

	names := area.LocationNames()
	for i, label := range loc.Labels {
		if !resolvesTo(label, names) {
			failed = append(failed, fmt.Sprintf("line %d: %q is not a place in %s", i+1, label, area.Name))
		}
	}
	return failed, nil
}

// resolvesTo reports whether label names one of the candidate places
func resolvesTo(label string, names []string) bool {
	label = strings.TrimSpace(label)
	if label == "" {
		return false
	}
	for _, name := range names {
		if name != "" && strings.Contains(label, name) {
			return true
		}
	}
	return false
}
