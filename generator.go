package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
)

// Generator produces the payload of one item
type Generator interface {
	Generate(ctx context.Context, id ItemID) (*ContentItem, error)
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}

// baseGenerator holds what every generator needs to render a prompt and call the model
type baseGenerator struct {
	kind    Kind
	config  *Config
	llm     LLM
	store   *Store
	extract *ResponseExtractor
	logger  *slog.Logger
}

func newBaseGenerator(kind Kind, deps *Deps) baseGenerator {
	return baseGenerator{
		kind:    kind,
		config:  deps.Config,
		llm:     deps.LLM,
		store:   deps.Store,
		extract: deps.Extractor,
		logger:  deps.Logger.With("kind", string(kind)),
	}
}

// renderPrompt executes the named template for this generator's kind. A
// missing or broken template is a configuration error and therefore fatal.
func renderPrompt(config *Config, kind Kind, name string, data any) (string, error) {
	source, err := config.Prompt(kind, name)
	if err != nil {
		return "", fatalError("prompt", err)
	}
	tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(source)
	if err != nil {
		return "", fatalError("prompt", fmt.Errorf("parsing template %s: %w", name, err))
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fatalError("prompt", fmt.Errorf("executing template %s: %w", name, err))
	}
	return buf.String(), nil
}

func (g *baseGenerator) complete(ctx context.Context, prompt string, json bool) (string, error) {
	llm := g.config.Settings.LLM
	response, err := g.llm.Complete(ctx, Request{
		Model:       llm.Model,
		Prompt:      prompt,
		Temperature: llm.Temperature,
		MaxTokens:   llm.MaxTokens,
		JSON:        json,
	})
	if err != nil {
		return "", fmt.Errorf("generating %s: %w", g.kind, err)
	}
	return response, nil
}

// parentArea loads the area an item belongs to; generators are only asked
// for items whose parent exists, so absence is fatal
func (g *baseGenerator) parentArea(id ItemID) (*AreaPayload, error) {
	area, ok, err := g.store.Area(g.kind.withLock(KindArea), id.Area)
	if err != nil {
		return nil, fatalError("load", err)
	}
	if !ok {
		return nil, fatalError("load", fmt.Errorf("area %s not found", AreaID(id.Area)))
	}
	return area, nil
}

func (g *baseGenerator) slot(id ItemID) (Slot, error) {
	slot, ok := g.store.SlotByIndex(id.Slot)
	if !ok {
		return Slot{}, fatalError("load", fmt.Errorf("slot %d outside the outcome plan", id.Slot))
	}
	return slot, nil
}
