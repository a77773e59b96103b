package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AreaGenerator creates new areas
type AreaGenerator struct {
	baseGenerator
}

type areaResponse struct {
	Name               string  `json:"name"`
	Geography          string  `json:"geography"`
	History            string  `json:"history"`
	Risks              string  `json:"risks"`
	Treasure           Entry   `json:"treasure"`
	TreasureLocation   string  `json:"treasure_location"`
	Items              []Entry `json:"items"`
	DangerousCreatures []Entry `json:"dangerous_creatures"`
	HarmlessCreatures  []Entry `json:"harmless_creatures"`
	Waypoints          []Entry `json:"waypoints"`
	Cities             []Entry `json:"cities"`
	Routes             []Entry `json:"routes"`
	RestPoints         []Entry `json:"rest_points"`
}

type areaPromptData struct {
	AreaName       string
	ReferenceAreas []string
	NGWords        []string
	InvalidChars   string
}

func (g *AreaGenerator) Generate(ctx context.Context, id ItemID) (*ContentItem, error) {
	existing, err := g.store.Areas(g.kind)
	if err != nil {
		return nil, fatalError("load", err)
	}

	content := g.config.Settings.Content
	prompt, err := renderPrompt(g.config, g.kind, "new_area", areaPromptData{
		AreaName:       content.AreaNamePrompt,
		ReferenceAreas: referenceAreas(existing, content.ReferenceAreas),
		NGWords:        content.NGWords,
		InvalidChars:   content.AreaNameInvalidChars,
	})
	if err != nil {
		return nil, err
	}

	response, err := g.complete(ctx, prompt, false)
	if err != nil {
		return nil, err
	}

	var r areaResponse
	if err := g.extract.DecodeJSON("area", response, &r); err != nil {
		return nil, err
	}

	area := &AreaPayload{
		No:                 id.Area,
		Name:               strings.TrimSpace(r.Name),
		Geography:          r.Geography,
		History:            r.History,
		Risks:              r.Risks,
		Treasure:           r.Treasure,
		TreasureLocation:   r.TreasureLocation,
		Items:              r.Items,
		DangerousCreatures: r.DangerousCreatures,
		HarmlessCreatures:  r.HarmlessCreatures,
		Waypoints:          r.Waypoints,
		Cities:             r.Cities,
		Routes:             r.Routes,
		RestPoints:         r.RestPoints,
	}
	return &ContentItem{Kind: g.kind, ID: id, Name: area.Name, Payload: area, Status: StatusGenerated}, nil
}

// referenceAreas summarises up to limit existing areas, lowest index first
func referenceAreas(areas map[int]*AreaPayload, limit int) []string {
	nos := make([]int, 0, len(areas))
	for no := range areas {
		nos = append(nos, no)
	}
	sort.Ints(nos)
	if len(nos) > limit {
		nos = nos[:limit]
	}

	refs := make([]string, 0, len(nos))
	for _, no := range nos {
		a := areas[no]
		refs = append(refs, fmt.Sprintf("%s, %s, %s, %s",
			a.Name, a.Treasure.Name, joinNames(a.Waypoints, ";"), joinNames(a.Cities, ";")))
	}
	return refs
}

func joinNames(entries []Entry, sep string) string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return strings.Join(names, sep)
}

// AdventureGenerator outlines the adventure for one slot of an area
type AdventureGenerator struct {
	baseGenerator
}

// flexInt accepts chapter numbers written as numbers or strings
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "Chapter")))
	if err != nil {
		return fmt.Errorf("chapter number %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}

type adventureResponse struct {
	Chapters []struct {
		Number  flexInt `json:"number"`
		Title   string  `json:"title"`
		Content string  `json:"content"`
	} `json:"chapters"`
}

type adventurePromptData struct {
	Area     *AreaPayload
	Name     string
	Result   string
	Chapters int
}

func (g *AdventureGenerator) Generate(ctx context.Context, id ItemID) (*ContentItem, error) {
	area, err := g.parentArea(id)
	if err != nil {
		return nil, err
	}
	slot, err := g.slot(id)
	if err != nil {
		return nil, err
	}

	prompt, err := renderPrompt(g.config, g.kind, "new_adventure", adventurePromptData{
		Area:     area,
		Name:     slot.Name,
		Result:   slot.Result,
		Chapters: g.config.Settings.Content.Chapters,
	})
	if err != nil {
		return nil, err
	}

	response, err := g.complete(ctx, prompt, false)
	if err != nil {
		return nil, err
	}

	var r adventureResponse
	if err := g.extract.DecodeJSON("adventure", response, &r); err != nil {
		return nil, err
	}
	if len(r.Chapters) == 0 {
		return nil, parseError("adventure", "response has no chapters")
	}

	adv := &AdventurePayload{Name: slot.Name, Result: slot.Result}
	for _, ch := range r.Chapters {
		adv.Chapters = append(adv.Chapters, Chapter{
			Number:  int(ch.Number),
			Title:   strings.TrimSpace(ch.Title),
			Content: strings.TrimSpace(ch.Content),
		})
	}
	return &ContentItem{Kind: g.kind, ID: id, Name: slot.Name, Payload: adv, Status: StatusGenerated}, nil
}

// LogGenerator writes an adventure log chapter by chapter, feeding each
// chapter's log into the next prompt
type LogGenerator struct {
	baseGenerator
}

type logPromptData struct {
	Area        *AreaPayload
	Chapter     Chapter
	NextChapter *Chapter
	PreviousLog []string
	AreaNotes   []string
	MinLines    int
}

func (g *LogGenerator) Generate(ctx context.Context, id ItemID) (*ContentItem, error) {
	area, err := g.parentArea(id)
	if err != nil {
		return nil, err
	}
	slot, err := g.slot(id)
	if err != nil {
		return nil, err
	}
	adv, ok, err := g.store.Adventure(g.kind.withLock(KindAdventure), id.Area, slot.Name)
	if err != nil {
		return nil, fatalError("load", err)
	}
	if !ok {
		return nil, fatalError("load", fmt.Errorf("adventure %s not found", id))
	}

	minLines := g.config.Settings.Content.MinChapterLines
	var (
		lines    []string
		previous []string
	)
	for i, chapter := range adv.Chapters {
		data := logPromptData{
			Area:        area,
			Chapter:     chapter,
			PreviousLog: previous,
			AreaNotes:   areaNotes(area, chapter.Title+" "+chapter.Content),
			MinLines:    minLines,
		}
		if i+1 < len(adv.Chapters) {
			next := adv.Chapters[i+1]
			data.NextChapter = &next
		}

		prompt, err := renderPrompt(g.config, g.kind, "new_log", data)
		if err != nil {
			return nil, err
		}
		response, err := g.complete(ctx, prompt, false)
		if err != nil {
			return nil, err
		}

		chapterLines := g.extract.NumberedLines(response)
		if len(chapterLines) < minLines {
			return nil, parseError("log", "chapter %d has %d lines, want at least %d", chapter.Number, len(chapterLines), minLines)
		}
		g.logger.Debug("chapter written", "id", id.String(), "chapter", chapter.Number, "lines", len(chapterLines))

		lines = append(lines, chapterLines...)
		previous = chapterLines
	}

	return &ContentItem{Kind: g.kind, ID: id, Name: slot.Name, Payload: &LogPayload{Lines: lines}, Status: StatusGenerated}, nil
}

// areaNotes returns the area facts whose names appear in text
func areaNotes(area *AreaPayload, text string) []string {
	lower := strings.ToLower(text)
	var notes []string
	groups := [][]Entry{
		{area.Treasure},
		area.Items,
		area.DangerousCreatures,
		area.HarmlessCreatures,
		area.Waypoints,
		area.Cities,
		area.Routes,
		area.RestPoints,
	}
	for _, group := range groups {
		for _, e := range group {
			if e.Name != "" && strings.Contains(lower, strings.ToLower(e.Name)) {
				notes = append(notes, e.String())
			}
		}
	}
	return notes
}

// LocationGenerator labels every log line with the place it happens
type LocationGenerator struct {
	baseGenerator
}

type locationPromptData struct {
	Area       *AreaPayload
	Candidates []string
	Lines      []string
}

func (g *LocationGenerator) Generate(ctx context.Context, id ItemID) (*ContentItem, error) {
	area, err := g.parentArea(id)
	if err != nil {
		return nil, err
	}
	slot, err := g.slot(id)
	if err != nil {
		return nil, err
	}
	lines, err := g.store.Log(g.kind.withLock(KindLog), id.Area, slot.Name)
	if err != nil {
		return nil, fatalError("load", err)
	}
	if len(lines) == 0 {
		return nil, fatalError("load", fmt.Errorf("log %s not found", id))
	}

	candidates := area.LocationNames()[1:]
	prompt, err := renderPrompt(g.config, g.kind, "new_location", locationPromptData{
		Area:       area,
		Candidates: candidates,
		Lines:      lines,
	})
	if err != nil {
		return nil, err
	}

	response, err := g.complete(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	var byLine map[string]string
	if err := g.extract.DecodeJSON("location", response, &byLine); err != nil {
		return nil, err
	}
	if len(byLine) != len(lines) {
		return nil, parseError("location", "got %d labels for %d log lines", len(byLine), len(lines))
	}

	labels := make([]string, len(lines))
	for i := range lines {
		label, ok := byLine[strconv.Itoa(i+1)]
		if !ok {
			return nil, parseError("location", "no label for line %d", i+1)
		}
		labels[i] = strings.TrimSpace(label)
	}

	return &ContentItem{Kind: g.kind, ID: id, Name: slot.Name, Payload: &LocationPayload{Labels: labels}, Status: StatusGenerated}, nil
}
