package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RunOptions controls one pass
type RunOptions struct {
	Mode         RunMode
	Limit        int
	ResultFilter string
}

// CommandHandler runs passes over one kind at a time
type CommandHandler struct {
	pipelines map[Kind]*Pipeline
	tracker   *ProgressTracker
	retry     *RetryController
	history   *History
	store     *Store
	config    *Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewCommandHandler wires a handler from shared dependencies
func NewCommandHandler(deps *Deps, pipelines map[Kind]*Pipeline, retry *RetryController, history *History) *CommandHandler {
	return &CommandHandler{
		pipelines: pipelines,
		tracker:   NewProgressTracker(deps.Store, deps.Config.Settings.Content),
		retry:     retry,
		history:   history,
		store:     deps.Store,
		config:    deps.Config,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// Tracker returns the progress tracker the handler consults
func (h *CommandHandler) Tracker() *ProgressTracker {
	return h.tracker
}

// Run executes one pass over kind. Per-item failures are recorded in the
// summary; only fatal errors are returned.
func (h *CommandHandler) Run(ctx context.Context, kind Kind, opts RunOptions) (*RunSummary, error) {
	p, ok := h.pipelines[kind]
	if !ok {
		return nil, fmt.Errorf("no pipeline for kind %q", kind)
	}
	if opts.ResultFilter != "" && kind.Base() != KindAdventure {
		return nil, fmt.Errorf("--result only applies to adventure kinds")
	}

	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Kind:      kind,
		Mode:      opts.Mode,
		StartedAt: h.now(),
	}
	logger := h.logger.With("run_id", summary.RunID, "kind", string(kind), "mode", opts.Mode.String())
	logger.Info("→ starting pass")

	var err error
	if opts.Mode == ModeCheckOnly {
		err = h.checkOnly(ctx, p, opts, summary, logger)
	} else {
		err = h.generate(ctx, p, opts, summary, logger)
	}
	summary.FinishedAt = h.now()

	if summary.Processed > 0 {
		if herr := h.history.Append(h.historyRecord(summary)); herr != nil {
			logger.Error("✗ recording history", "error", herr)
			if err == nil {
				err = herr
			}
		}
	}

	logger.Info("✓ pass finished",
		"processed", summary.Processed,
		"validated", summary.Validated,
		"rejected", summary.Rejected,
		"failed", summary.Failed,
		"elapsed", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	return summary, err
}

// skipFunc excludes items failed in this pass and slots outside the result filter
func (h *CommandHandler) skipFunc(kind Kind, failed map[ItemID]bool, filter string) func(ItemID) bool {
	return func(id ItemID) bool {
		if failed[id] {
			return true
		}
		if filter != "" && kind.Base() == KindAdventure {
			slot, ok := h.store.SlotByIndex(id.Slot)
			return !ok || slot.Result != filter
		}
		return false
	}
}

func (h *CommandHandler) generate(ctx context.Context, p *Pipeline, opts RunOptions, summary *RunSummary, logger *slog.Logger) error {
	failed := make(map[ItemID]bool)
	seen := make(map[ItemID]bool)
	skip := h.skipFunc(p.Kind, failed, opts.ResultFilter)
	checkModel := h.config.CheckModel()

	for opts.Limit <= 0 || summary.Processed < opts.Limit {
		id, ok, err := h.tracker.NextMissing(p.Kind, skip)
		if err != nil {
			return fatalError("scan", err)
		}
		if !ok {
			break
		}
		if seen[id] {
			// saved but still not complete on disk; do not loop on it
			err := fmt.Errorf("%s %s still incomplete after saving", p.Kind, id)
			logger.Error("✗ item not persisted", "id", id.String(), "error", err)
			failed[id] = true
			continue
		}
		seen[id] = true

		logger.Info("→ generating", "id", id.String())
		item, state, err := Execute(ctx, h.retry, func(ctx context.Context, attempt int) (*ContentItem, error) {
			item, err := p.Generator.Generate(ctx, id)
			if err != nil {
				return nil, err
			}
			verdict, err := p.Checker.Check(ctx, item)
			if err != nil {
				return nil, err
			}
			if !verdict.Pass {
				return nil, validationFailure("check", verdict.Reason)
			}
			if err := p.Save(item); err != nil {
				return nil, fatalError("save", err)
			}
			if err := p.SaveVerdict(item, verdict, checkModel); err != nil {
				return nil, fatalError("save", err)
			}
			item.Status = StatusValidated
			return item, nil
		}, "kind", string(p.Kind), "id", id.String())

		if err != nil {
			summary.record(id, StatusFailed, err)
			if KindOf(err) == ErrFatal {
				logger.Error("✗ aborting pass", "id", id.String(), "error", err)
				return err
			}
			failed[id] = true
			logger.Warn("✗ giving up on item", "id", id.String(), "error_kind", KindOf(err).String(),
				"attempts", state.Attempts, "rate_limited", state.RateLimitAttempts, "error", err)
			continue
		}

		summary.record(id, StatusValidated, nil)
		logger.Info("✓ validated", "id", id.String(), "name", item.Name, "retries", state.Attempts+state.RateLimitAttempts)
	}
	return nil
}

func (h *CommandHandler) checkOnly(ctx context.Context, p *Pipeline, opts RunOptions, summary *RunSummary, logger *slog.Logger) error {
	ids, err := h.tracker.Pending(p.Kind)
	if err != nil {
		return fatalError("scan", err)
	}
	skip := h.skipFunc(p.Kind, nil, opts.ResultFilter)
	checkModel := h.config.CheckModel()

	for _, id := range ids {
		if opts.Limit > 0 && summary.Processed >= opts.Limit {
			break
		}
		if skip(id) {
			continue
		}
		item, ok, err := p.Load(id)
		if err != nil {
			return fatalError("load", err)
		}
		if !ok {
			continue
		}

		logger.Info("→ checking", "id", id.String(), "name", item.Name)
		verdict, _, err := Execute(ctx, h.retry, func(ctx context.Context, attempt int) (Verdict, error) {
			return p.Checker.Check(ctx, item)
		}, "kind", string(p.Kind), "id", id.String())
		if err != nil {
			summary.record(id, StatusFailed, err)
			if KindOf(err) == ErrFatal {
				logger.Error("✗ aborting pass", "id", id.String(), "error", err)
				return err
			}
			logger.Warn("✗ check failed", "id", id.String(), "error_kind", KindOf(err).String(), "error", err)
			continue
		}

		if err := p.SaveVerdict(item, verdict, checkModel); err != nil {
			err = fatalError("save", err)
			summary.record(id, StatusFailed, err)
			return err
		}
		if verdict.Pass {
			summary.record(id, StatusValidated, nil)
			logger.Info("✓ validated", "id", id.String(), "name", item.Name)
		} else {
			summary.record(id, StatusRejected, errors.New(verdict.Reason))
			logger.Info("✗ rejected", "id", id.String(), "name", item.Name, "reason", verdict.Reason)
		}
	}
	return nil
}

func (h *CommandHandler) historyRecord(s *RunSummary) HistoryRecord {
	return HistoryRecord{
		RunID:      s.RunID,
		Kind:       s.Kind,
		Mode:       s.Mode.String(),
		Model:      h.config.Settings.LLM.Model,
		CheckModel: h.config.CheckModel(),
		Processed:  s.Processed,
		Validated:  s.Validated,
		Rejected:   s.Rejected,
		Failed:     s.Failed,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}
