package main

import (
	"context"
	"fmt"
	"log/slog"
)

// ContentChecker validates an item
type ContentChecker interface {
	Check(ctx context.Context, item *ContentItem) (Verdict, error)
}

// Deps are the shared collaborators every pipeline is built from
type Deps struct {
	Config    *Config
	LLM       LLM
	Store     *Store
	Extractor *ResponseExtractor
	Logger    *slog.Logger
}

// Pipeline binds the generator, checker and persistence of one kind
type Pipeline struct {
	Kind      Kind
	Generator Generator
	Checker   ContentChecker
	store     *Store
}

// NewPipelines builds a pipeline for every kind
func NewPipelines(deps *Deps) map[Kind]*Pipeline {
	pipelines := make(map[Kind]*Pipeline, len(allKinds))
	for _, kind := range allKinds {
		pipelines[kind] = &Pipeline{
			Kind:      kind,
			Generator: newGenerator(kind, deps),
			Checker:   NewChecker(kind, deps),
			store:     deps.Store,
		}
	}
	return pipelines
}

func newGenerator(kind Kind, deps *Deps) Generator {
	base := newBaseGenerator(kind, deps)
	switch kind.Base() {
	case KindArea:
		return &AreaGenerator{base}
	case KindAdventure:
		return &AdventureGenerator{base}
	case KindLog:
		return &LogGenerator{base}
	default:
		return &LocationGenerator{base}
	}
}

// Load reads a persisted item; false means it is missing or incomplete
func (p *Pipeline) Load(id ItemID) (*ContentItem, bool, error) {
	item := &ContentItem{Kind: p.Kind, ID: id, Status: StatusGenerated}

	if p.Kind.Base() == KindArea {
		area, ok, err := p.store.Area(p.Kind, id.Area)
		if err != nil || !ok {
			return nil, false, err
		}
		item.Name = area.Name
		item.Payload = area
		return item, true, nil
	}

	slot, ok := p.store.SlotByIndex(id.Slot)
	if !ok {
		return nil, false, nil
	}
	item.Name = slot.Name

	switch p.Kind.Base() {
	case KindAdventure:
		adv, ok, err := p.store.Adventure(p.Kind, id.Area, slot.Name)
		if err != nil || !ok {
			return nil, false, err
		}
		item.Payload = adv
	case KindLog:
		lines, err := p.store.Log(p.Kind, id.Area, slot.Name)
		if err != nil || len(lines) == 0 {
			return nil, false, err
		}
		item.Payload = &LogPayload{Lines: lines}
	case KindLocation:
		labels, err := p.store.Location(p.Kind, id.Area, slot.Name)
		if err != nil || len(labels) == 0 {
			return nil, false, err
		}
		item.Payload = &LocationPayload{Labels: labels}
	}
	return item, true, nil
}

// Save persists an item's payload
func (p *Pipeline) Save(item *ContentItem) error {
	switch payload := item.Payload.(type) {
	case *AreaPayload:
		return p.store.SaveArea(p.Kind, payload)
	case *AdventurePayload:
		return p.store.SaveAdventure(p.Kind, item.ID.Area, payload)
	case *LogPayload:
		return p.store.SaveLog(p.Kind, item.ID.Area, item.Name, payload.Lines)
	case *LocationPayload:
		return p.store.SaveLocation(p.Kind, item.ID.Area, item.Name, payload.Labels)
	}
	return fmt.Errorf("cannot save payload %T", item.Payload)
}

// SaveVerdict records a verdict for an item
func (p *Pipeline) SaveVerdict(item *ContentItem, v Verdict, model string) error {
	return p.store.SaveVerdict(p.Kind, item.ID, item.Name, v, model)
}
