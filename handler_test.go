package main

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"
)

func TestRunGeneratesAreasAndSecondRunIsIdempotent(t *testing.T) {
	config := testConfig(t)
	llm := (&fakeLLM{}).reply(
		areaResponseText(t, sampleArea(0, "Mossvale", "Amber Crown")),
		areaResponseText(t, sampleArea(1, "Stonereach", "Iron Key")),
	)
	h, _ := testHandler(t, config, llm)

	summary, err := h.Run(context.Background(), KindArea, RunOptions{Mode: ModeGenerate})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Processed != 2 || summary.Validated != 2 {
		t.Fatalf("summary = %+v, want 2 processed and validated", summary)
	}

	snap, err := h.Tracker().Snapshot(KindArea)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Complete() {
		t.Errorf("snapshot %+v not complete", snap.Counts)
	}

	second := &fakeLLM{}
	h2, _ := testHandler(t, config, second)
	summary, err = h2.Run(context.Background(), KindArea, RunOptions{Mode: ModeGenerate})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if summary.Processed != 0 {
		t.Errorf("second run processed %d items, want 0", summary.Processed)
	}
	if len(second.calls) != 0 {
		t.Errorf("second run made %d model calls, want 0", len(second.calls))
	}

	records, err := NewHistory(h.store.HistoryPath()).Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("history has %d records, want 1", len(records))
	}
	if rec := records[0]; rec.Kind != KindArea || rec.Validated != 2 || rec.RunID == "" || rec.Model != "openrouter/test-model" {
		t.Errorf("history record = %+v", rec)
	}
}

func TestRunAdventurePassStartsAtAreaZero(t *testing.T) {
	config := testConfig(t)
	llm := (&fakeLLM{}).reply(adventureResponseText(2))
	h, _ := testHandler(t, config, llm)
	seedValidatedArea(t, h.store, KindArea, 0)
	seedValidatedArea(t, h.store, KindArea, 1)

	summary, err := h.Run(context.Background(), KindAdventure, RunOptions{Mode: ModeGenerate, Limit: 1})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(summary.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(summary.Results))
	}
	if got := summary.Results[0]; got.ID != (ItemID{Area: 0, Slot: 0}) || got.Status != StatusValidated {
		t.Errorf("result = %+v, want area 0 slot 0 validated", got)
	}

	adv, ok, err := h.store.Adventure(KindAdventure, 0, "failure1")
	if err != nil || !ok {
		t.Fatalf("Adventure() = %v, %v, %v", adv, ok, err)
	}
	if adv.Result != "failure" || len(adv.Chapters) != 2 {
		t.Errorf("adventure = %+v", adv)
	}
}

func TestRunParseErrorTwiceThenSucceeds(t *testing.T) {
	config := testConfig(t)
	config.Settings.Content.AreaTarget = 1
	llm := (&fakeLLM{}).reply(
		"I cannot produce JSON today.",
		"```json\n{\"name\": \"broken\n```",
		areaResponseText(t, sampleArea(0, "Mossvale", "Amber Crown")),
	)
	h, sleeper := testHandler(t, config, llm)

	summary, err := h.Run(context.Background(), KindArea, RunOptions{Mode: ModeGenerate})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Validated != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want one validated item", summary)
	}
	if len(sleeper.delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(sleeper.delays))
	}
	if sleeper.delays[1] < sleeper.delays[0] {
		t.Errorf("delays decreased: %v", sleeper.delays)
	}

	status, err := h.Tracker().Status(KindArea, AreaID(0))
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusValidated {
		t.Errorf("status = %v, want validated", status)
	}
}

func TestRunContinuesAfterFailedAdventure(t *testing.T) {
	config := testConfig(t)
	llm := (&fakeLLM{}).reply(
		"no json here",
		"still no json",
		"{\"chapters\": ",
		adventureResponseText(2),
	)
	h, _ := testHandler(t, config, llm)
	seedValidatedArea(t, h.store, KindArea, 0)

	summary, err := h.Run(context.Background(), KindAdventure, RunOptions{Mode: ModeGenerate})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Processed != 2 || summary.Failed != 1 || summary.Validated != 1 {
		t.Errorf("summary = %+v, want one failed and one validated", summary)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(summary.Results))
	}

	first, second := summary.Results[0], summary.Results[1]
	if first.ID.String() != "000/00" || first.Status != StatusFailed || KindOf(first.Error) != ErrRetryLimit {
		t.Errorf("results[0] = %+v, want 000/00 failed on the retry limit", first)
	}
	if second.ID.String() != "000/01" || second.Status != StatusValidated {
		t.Errorf("results[1] = %+v, want 000/01 validated", second)
	}

	if _, ok, _ := h.store.Adventure(KindAdventure, 0, "success1"); !ok {
		t.Error("success1 not persisted")
	}
	if _, ok, _ := h.store.Adventure(KindAdventure, 0, "failure1"); ok {
		t.Error("failure1 persisted despite failing")
	}
}

func TestRunRetriesRejectedGeneration(t *testing.T) {
	config := testConfig(t)
	config.Settings.Content.AreaTarget = 1
	bad := sampleArea(0, "Mossvale", "Amber Crown")
	bad.History = "Written by ChatGPT"
	llm := (&fakeLLM{}).reply(
		areaResponseText(t, bad),
		areaResponseText(t, sampleArea(0, "Mossvale", "Amber Crown")),
	)
	h, sleeper := testHandler(t, config, llm)

	summary, err := h.Run(context.Background(), KindArea, RunOptions{Mode: ModeGenerate})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Validated != 1 || len(sleeper.delays) != 1 {
		t.Errorf("summary = %+v sleeps = %d, want validated after one retry", summary, len(sleeper.delays))
	}
	area, ok, err := h.store.Area(KindArea, 0)
	if err != nil || !ok {
		t.Fatalf("Area() = %v, %v", ok, err)
	}
	if strings.Contains(area.History, "ChatGPT") {
		t.Errorf("rejected attempt was persisted: %q", area.History)
	}
}

func TestRunFailedAreaEndsPass(t *testing.T) {
	config := testConfig(t)
	llm := (&fakeLLM{}).reply("nope", "nope", "nope", "nope")
	h, _ := testHandler(t, config, llm)

	summary, err := h.Run(context.Background(), KindArea, RunOptions{Mode: ModeGenerate})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want a single failed item", summary)
	}
	if len(llm.calls) != config.Settings.Retry.MaxAttempts {
		t.Errorf("model called %d times, want %d", len(llm.calls), config.Settings.Retry.MaxAttempts)
	}
	if KindOf(summary.Results[0].Error) != ErrRetryLimit {
		t.Errorf("error kind = %v, want retry_limit", KindOf(summary.Results[0].Error))
	}

	status, err := h.Tracker().Status(KindArea, AreaID(0))
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusMissing {
		t.Errorf("failed area persisted with status %v", status)
	}
}

func TestRunFatalErrorAbortsPass(t *testing.T) {
	config := testConfig(t)
	llm := (&fakeLLM{}).fail(fatalError("llm", errors.New("API key required")))
	h, sleeper := testHandler(t, config, llm)

	summary, err := h.Run(context.Background(), KindArea, RunOptions{Mode: ModeGenerate})
	if err == nil {
		t.Fatal("Run() expected error, got nil")
	}
	if KindOf(err) != ErrFatal {
		t.Errorf("KindOf(err) = %v, want fatal", KindOf(err))
	}
	if summary == nil || summary.Failed != 1 {
		t.Errorf("summary = %+v, want one failed item", summary)
	}
	if len(sleeper.delays) != 0 {
		t.Errorf("fatal error was retried %d times", len(sleeper.delays))
	}
}

func TestRunCheckOnlyLeavesValidatedItemsAlone(t *testing.T) {
	config := testConfig(t)
	config.Settings.Content.AreaTarget = 1
	config.Settings.Checks.Area = []string{"originality"}
	llm := &fakeLLM{}
	h, _ := testHandler(t, config, llm)
	seedValidatedArea(t, h.store, KindArea, 0)

	before, err := os.ReadFile(h.store.areasPath(KindArea))
	if err != nil {
		t.Fatal(err)
	}
	verdictsBefore, err := os.ReadFile(h.store.checksPath(KindArea, 0))
	if err != nil {
		t.Fatal(err)
	}

	summary, err := h.Run(context.Background(), KindArea, RunOptions{Mode: ModeCheckOnly})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Processed != 0 {
		t.Errorf("processed %d items, want 0", summary.Processed)
	}
	if len(llm.calls) != 0 {
		t.Errorf("checker called the model %d times", len(llm.calls))
	}

	after, _ := os.ReadFile(h.store.areasPath(KindArea))
	verdictsAfter, _ := os.ReadFile(h.store.checksPath(KindArea, 0))
	if !bytes.Equal(before, after) || !bytes.Equal(verdictsBefore, verdictsAfter) {
		t.Error("check-only pass rewrote stored files")
	}
	if _, err := os.Stat(h.store.HistoryPath()); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("history written for an empty pass: %v", err)
	}
}

func TestRunCheckOnlyRecordsRejection(t *testing.T) {
	config := testConfig(t)
	config.Settings.Content.AreaTarget = 1
	config.Settings.Checks.Area = []string{"originality"}
	llm := (&fakeLLM{}).reply(`{"originality": {"rating": "❌", "reason": "too close to area 3"}}`)
	h, _ := testHandler(t, config, llm)
	if err := h.store.SaveArea(KindArea, sampleArea(0, "Mossvale", "Amber Crown")); err != nil {
		t.Fatal(err)
	}

	summary, err := h.Run(context.Background(), KindArea, RunOptions{Mode: ModeCheckOnly})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Rejected != 1 {
		t.Fatalf("summary = %+v, want one rejection", summary)
	}
	if llm.calls[0].Model != "openrouter/check-model" {
		t.Errorf("review used model %q", llm.calls[0].Model)
	}

	verdicts, err := h.store.Verdicts(KindArea, 0)
	if err != nil {
		t.Fatal(err)
	}
	v := verdicts["0"]
	if v.Pass || !strings.Contains(v.Reason, "too close") || v.Model != "openrouter/check-model" {
		t.Errorf("verdict = %+v", v)
	}

	status, err := h.Tracker().Status(KindArea, AreaID(0))
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusRejected {
		t.Errorf("status = %v, want rejected", status)
	}
	next, ok, err := h.Tracker().NextMissing(KindArea, nil)
	if err != nil || !ok || next != AreaID(0) {
		t.Errorf("NextMissing() = %v, %v, %v; rejected area should be regenerated", next, ok, err)
	}
}

func TestRunResultFilter(t *testing.T) {
	config := testConfig(t)
	llm := (&fakeLLM{}).reply(adventureResponseText(2))
	h, _ := testHandler(t, config, llm)
	seedValidatedArea(t, h.store, KindArea, 0)

	summary, err := h.Run(context.Background(), KindAdventure, RunOptions{Mode: ModeGenerate, Limit: 1, ResultFilter: "success"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(summary.Results) != 1 || summary.Results[0].ID != (ItemID{Area: 0, Slot: 1}) {
		t.Errorf("results = %+v, want only the success slot", summary.Results)
	}

	if _, err := h.Run(context.Background(), KindArea, RunOptions{ResultFilter: "success"}); err == nil {
		t.Error("result filter accepted for areas")
	}
}

func TestRunLogAndLocationChain(t *testing.T) {
	config := testConfig(t)
	config.Settings.Content.AreaTarget = 1
	llm := (&fakeLLM{}).reply(
		numberedResponse("first", 2),
		numberedResponse("second", 2),
		`{"1": "Area0 Ford", "2": "near Area0 Town", "3": "Area0 Road", "4": "Area0 Inn"}`,
	)
	h, _ := testHandler(t, config, llm)
	seedValidatedArea(t, h.store, KindArea, 0)
	if err := h.store.SaveAdventure(KindAdventure, 0, sampleAdventure("failure1", "failure", 2)); err != nil {
		t.Fatal(err)
	}
	if err := h.store.SaveVerdict(KindAdventure, ItemID{Area: 0, Slot: 0}, "failure1", Verdict{Pass: true}, "test"); err != nil {
		t.Fatal(err)
	}

	summary, err := h.Run(context.Background(), KindLog, RunOptions{Mode: ModeGenerate})
	if err != nil {
		t.Fatalf("log Run() error = %v", err)
	}
	if summary.Validated != 1 {
		t.Fatalf("log summary = %+v", summary)
	}
	if !strings.Contains(llm.calls[1].Prompt, "first line 2") {
		t.Error("second chapter prompt does not carry the previous chapter's log")
	}
	lines, err := h.store.Log(KindLog, 0, "failure1")
	if err != nil || len(lines) != 4 {
		t.Fatalf("Log() = %v, %v", lines, err)
	}

	summary, err = h.Run(context.Background(), KindLocation, RunOptions{Mode: ModeGenerate})
	if err != nil {
		t.Fatalf("location Run() error = %v", err)
	}
	if summary.Validated != 1 {
		t.Fatalf("location summary = %+v", summary)
	}
	if !llm.calls[2].JSON {
		t.Error("location request did not ask for JSON output")
	}
	labels, err := h.store.Location(KindLocation, 0, "failure1")
	if err != nil || len(labels) != 4 || labels[1] != "near Area0 Town" {
		t.Errorf("Location() = %v, %v", labels, err)
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	config := testConfig(t)
	llm := (&fakeLLM{}).reply("nope")
	h, _ := testHandler(t, config, llm)
	h.retry = NewRetryController(config.Settings.Retry, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	h.retry.WithSleeper(func(context.Context, time.Duration) error {
		cancel()
		return ctx.Err()
	})

	_, err := h.Run(ctx, KindArea, RunOptions{Mode: ModeGenerate})
	if KindOf(err) != ErrFatal {
		t.Errorf("Run() error = %v, want fatal after cancellation", err)
	}
}
