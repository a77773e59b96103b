package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// fakeLLM replays scripted responses in order and records every request
type fakeLLM struct {
	responses []fakeResponse
	calls     []Request
}

type fakeResponse struct {
	text string
	err  error
}

func (f *fakeLLM) reply(texts ...string) *fakeLLM {
	for _, text := range texts {
		f.responses = append(f.responses, fakeResponse{text: text})
	}
	return f
}

func (f *fakeLLM) fail(err error) *fakeLLM {
	f.responses = append(f.responses, fakeResponse{err: err})
	return f
}

func (f *fakeLLM) Complete(ctx context.Context, req Request) (string, error) {
	f.calls = append(f.calls, req)
	if len(f.responses) == 0 {
		return "", fatalError("fake", errors.New("no scripted response left"))
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r.text, r.err
}

// testConfig returns small settings rooted in a temporary data directory
func testConfig(t *testing.T) *Config {
	t.Helper()
	settings, err := parseDefaultSettings()
	if err != nil {
		t.Fatalf("parseDefaultSettings() error = %v", err)
	}
	settings.DataDir = t.TempDir()
	settings.PromptsDir = ""
	settings.Log.File = ""
	settings.LLM.Model = "openrouter/test-model"
	settings.LLM.CheckModel = "openrouter/check-model"
	settings.LLM.MinInterval = 0
	settings.Retry = RetryPolicy{
		MaxAttempts:         3,
		BaseDelay:           time.Millisecond,
		Multiplier:          2,
		MaxDelay:            4 * time.Millisecond,
		RateLimitDelay:      time.Millisecond,
		MaxRateLimitRetries: 3,
	}
	settings.Content = ContentSettings{
		AreaTarget:      2,
		ReferenceAreas:  5,
		Chapters:        2,
		Outcomes:        []Outcome{{Result: "failure", Count: 1}, {Result: "success", Count: 1}},
		MinChapterLines: 2,
		MinLogLines:     4,
		NGWords:         []string{"ChatGPT"},
		CheckMarks:      []string{"✅"},
	}
	settings.Checks = CheckSettings{}
	if err := validateSettings(settings); err != nil {
		t.Fatalf("test settings invalid: %v", err)
	}
	return &Config{Settings: settings, Overrides: &ConfigOverrides{}}
}

func testDeps(t *testing.T, config *Config, llm LLM) *Deps {
	t.Helper()
	return &Deps{
		Config:    config,
		LLM:       llm,
		Store:     NewStore(config.Settings.DataDir, config.Settings.Content),
		Extractor: NewResponseExtractor(),
		Logger:    discardLogger(),
	}
}

// testHandler wires a handler whose retry sleeps are recorded, not slept
func testHandler(t *testing.T, config *Config, llm LLM) (*CommandHandler, *recordingSleeper) {
	t.Helper()
	deps := testDeps(t, config, llm)
	sleeper := &recordingSleeper{}
	retry := NewRetryController(config.Settings.Retry, deps.Logger).WithSleeper(sleeper.Sleep)
	history := NewHistory(deps.Store.HistoryPath())
	return NewCommandHandler(deps, NewPipelines(deps), retry, history), sleeper
}

func sampleArea(no int, name, treasure string) *AreaPayload {
	return &AreaPayload{
		No:                 no,
		Name:               name,
		Geography:          "Rolling hills cut by a cold river",
		History:            "Once a border march of two kingdoms",
		Risks:              "Flash floods in spring",
		Treasure:           Entry{Name: treasure, Feature: "glows faintly"},
		TreasureLocation:   "Under the old mill",
		Items:              []Entry{{Name: "Rope", Feature: "hemp"}},
		DangerousCreatures: []Entry{{Name: "Marsh wolf", Feature: "hunts in packs"}},
		HarmlessCreatures:  []Entry{{Name: "Reed finch", Feature: "sings at dawn"}},
		Waypoints:          []Entry{{Name: name + " Ford", Feature: "shallow crossing"}},
		Cities:             []Entry{{Name: name + " Town", Feature: "market town"}},
		Routes:             []Entry{{Name: name + " Road", Feature: "paved"}},
		RestPoints:         []Entry{{Name: name + " Inn", Feature: "warm beds"}},
	}
}

// areaResponseText renders an area as a model would answer, inside a fenced block
func areaResponseText(t *testing.T, a *AreaPayload) string {
	t.Helper()
	data, err := json.MarshalIndent(areaResponse{
		Name:               a.Name,
		Geography:          a.Geography,
		History:            a.History,
		Risks:              a.Risks,
		Treasure:           a.Treasure,
		TreasureLocation:   a.TreasureLocation,
		Items:              a.Items,
		DangerousCreatures: a.DangerousCreatures,
		HarmlessCreatures:  a.HarmlessCreatures,
		Waypoints:          a.Waypoints,
		Cities:             a.Cities,
		Routes:             a.Routes,
		RestPoints:         a.RestPoints,
	}, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	return "Here is the new area:\n\n```json\n" + string(data) + "\n```\n"
}

func adventureResponseText(chapters int) string {
	var parts []string
	for i := 1; i <= chapters; i++ {
		parts = append(parts, fmt.Sprintf(`{"number": %d, "title": "Chapter title %d", "content": "Something happens in chapter %d"}`, i, i, i))
	}
	return `{"chapters": [` + strings.Join(parts, ", ") + `]}`
}

func numberedResponse(prefix string, n int) string {
	var b strings.Builder
	b.WriteString("## Log\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d. %s line %d\n", i, prefix, i)
	}
	return b.String()
}

func sampleAdventure(name, result string, chapters int) *AdventurePayload {
	adv := &AdventurePayload{Name: name, Result: result}
	for i := 1; i <= chapters; i++ {
		adv.Chapters = append(adv.Chapters, Chapter{
			Number:  i,
			Title:   fmt.Sprintf("Chapter title %d", i),
			Content: fmt.Sprintf("Something happens in chapter %d", i),
		})
	}
	return adv
}

// seedValidatedArea stores area n with a passing verdict
func seedValidatedArea(t *testing.T, store *Store, kind Kind, n int) *AreaPayload {
	t.Helper()
	area := sampleArea(n, fmt.Sprintf("Area%d", n), fmt.Sprintf("Relic%d", n))
	if err := store.SaveArea(kind, area); err != nil {
		t.Fatalf("SaveArea() error = %v", err)
	}
	if err := store.SaveVerdict(kind, AreaID(n), area.Name, Verdict{Pass: true}, "test"); err != nil {
		t.Fatalf("SaveVerdict() error = %v", err)
	}
	return area
}
