package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

// Checker decides whether an item is acceptable. It never writes to the store.
type Checker struct {
	kind    Kind
	config  *Config
	llm     LLM
	store   *Store
	extract *ResponseExtractor
	logger  *slog.Logger
}

// NewChecker creates the checker for kind
func NewChecker(kind Kind, deps *Deps) *Checker {
	return &Checker{
		kind:    kind,
		config:  deps.Config,
		llm:     deps.LLM,
		store:   deps.Store,
		extract: deps.Extractor,
		logger:  deps.Logger.With("kind", string(kind)),
	}
}

// Check applies the structural rules and, when review criteria are
// configured for the kind, asks the check model to rate the item.
// A failing verdict is returned as a value.
func (c *Checker) Check(ctx context.Context, item *ContentItem) (Verdict, error) {
	failed, err := structuralRules(ruleContext{content: c.config.Settings.Content, store: c.store}, item)
	if err != nil {
		return Verdict{}, fatalError("check", err)
	}
	if len(failed) > 0 {
		return Verdict{Pass: false, Reason: strings.Join(failed, "; ")}, nil
	}

	keys := c.config.Settings.Checks.Keys(c.kind)
	if len(keys) == 0 {
		return Verdict{Pass: true}, nil
	}
	return c.review(ctx, item, keys)
}

type checkPromptData struct {
	Content    string
	Keys       []string
	CheckMarks []string
	Existing   []string
}

func (c *Checker) review(ctx context.Context, item *ContentItem, keys []string) (Verdict, error) {
	data := checkPromptData{
		Content:    describeItem(item),
		Keys:       keys,
		CheckMarks: c.config.Settings.Content.CheckMarks,
	}
	if c.kind.Base() == KindArea {
		existing, err := c.store.Areas(c.kind)
		if err != nil {
			return Verdict{}, fatalError("check", err)
		}
		area := item.Payload.(*AreaPayload)
		for _, ref := range referenceAreas(existing, len(existing)) {
			if !strings.HasPrefix(ref, area.Name+",") {
				data.Existing = append(data.Existing, ref)
			}
		}
	}

	prompt, err := renderPrompt(c.config, c.kind, "check_"+string(c.kind.Base()), data)
	if err != nil {
		return Verdict{}, err
	}

	llm := c.config.Settings.LLM
	response, err := c.llm.Complete(ctx, Request{
		Model:       c.config.CheckModel(),
		Prompt:      prompt,
		Temperature: llm.CheckTemperature,
		MaxTokens:   llm.MaxTokens,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("checking %s: %w", item, err)
	}

	return c.parseReview(response, keys)
}

// parseReview reads {"key": {"rating": ..., "reason": ...}} for every key.
// Missing keys or ratings are parse errors; a rating outside the check
// marks fails the item.
func (c *Checker) parseReview(response string, keys []string) (Verdict, error) {
	doc, err := c.extract.JSON(response)
	if err != nil {
		return Verdict{}, parseError("check", "%v", err)
	}
	if !gjson.Valid(doc) {
		doc = trailingComma.ReplaceAllString(doc, "$1")
		if !gjson.Valid(doc) {
			return Verdict{}, parseError("check", "review is not valid json")
		}
	}

	ratings := make(map[string]gjson.Result)
	gjson.Parse(doc).ForEach(func(key, value gjson.Result) bool {
		ratings[key.String()] = value
		return true
	})

	var failed []string
	for _, key := range keys {
		value, ok := ratings[key]
		if !ok {
			return Verdict{}, parseError("check", "review is missing %q", key)
		}
		rating := strings.TrimSpace(value.Get("rating").String())
		if rating == "" {
			return Verdict{}, parseError("check", "review of %q has no rating", key)
		}
		if !slices.Contains(c.config.Settings.Content.CheckMarks, rating) {
			failed = append(failed, fmt.Sprintf("%s: %s%s", key, rating, value.Get("reason").String()))
		}
	}

	if len(failed) > 0 {
		return Verdict{Pass: false, Reason: strings.Join(failed, "; ")}, nil
	}
	return Verdict{Pass: true}, nil
}

// describeItem renders an item as plain text for review prompts
func describeItem(item *ContentItem) string {
	var b strings.Builder
	switch p := item.Payload.(type) {
	case *AreaPayload:
		fmt.Fprintf(&b, "Area: %s\nGeography: %s\nHistory: %s\nRisks: %s\n", p.Name, p.Geography, p.History, p.Risks)
		fmt.Fprintf(&b, "Treasure: %s\nTreasure location: %s\n", p.Treasure, p.TreasureLocation)
		for _, group := range []struct {
			title   string
			entries []Entry
		}{
			{"Items", p.Items},
			{"Dangerous creatures", p.DangerousCreatures},
			{"Harmless creatures", p.HarmlessCreatures},
			{"Waypoints", p.Waypoints},
			{"Cities", p.Cities},
			{"Routes", p.Routes},
			{"Rest points", p.RestPoints},
		} {
			fmt.Fprintf(&b, "%s:\n", group.title)
			for _, e := range group.entries {
				fmt.Fprintf(&b, "  * %s\n", e)
			}
		}
	case *AdventurePayload:
		fmt.Fprintf(&b, "Adventure: %s (result: %s)\n", p.Name, p.Result)
		for _, ch := range p.Chapters {
			fmt.Fprintf(&b, "Chapter %d: %s\n", ch.Number, ch)
		}
	case *LogPayload:
		for i, line := range p.Lines {
			fmt.Fprintf(&b, "%d. %s\n", i+1, line)
		}
	case *LocationPayload:
		for i, label := range p.Labels {
			fmt.Fprintf(&b, "%d: %s\n", i+1, label)
		}
	}
	return b.String()
}
