// Package orchestrator drives a batch reindex over the action endpoint:
// it walks every selected content type, purges it, lists its items and
// indexes them one request at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/progress"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/protocol"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/tracing"
)

// Backend is the action endpoint as seen by a run. Failures are
// *protocol.ApplicationError or *protocol.TransportError values.
type Backend interface {
	ContentTypes(ctx context.Context) ([]string, error)
	RemoveOldContent(ctx context.Context, contentType string) error
	ContentList(ctx context.Context, contentType string) ([]string, error)
	Index(ctx context.Context, contentType, id string) error
	ContentComplete(ctx context.Context, contentType string) error
	Complete(ctx context.Context) error
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type Orchestrator struct {
	backend  Backend
	cfg      Config
	selector Selector
	reporter progress.Reporter
	metrics  *metrics.Metrics
	sleep    Sleeper
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Orchestrator)

func WithSelector(s Selector) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.selector = s
		}
	}
}

func WithReporter(r progress.Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sleep = s
		}
	}
}

func New(backend Backend, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:  backend,
		cfg:      cfg,
		selector: SelectAll,
		sleep:    sleep,
		now:      time.Now,
		logger:   logger.WithComponent("reindex"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one reindex. It returns an error wrapping ErrFatalAbort when
// the run had to stop early, or the context error when ctx was cancelled.
// Per-type and per-item failures do not fail the run; they are listed in
// the summary.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := o.now()
	st := &RunState{RunID: logger.RunID(ctx), Stage: StageFetchingTypes}
	ctx, st.trace = tracing.Start(ctx, "reindex", st.RunID)
	log := o.logger
	if st.RunID != "" {
		log = log.With("run_id", st.RunID)
	}
	log.Info("reindex started")
	o.metrics.SetStage("", st.Stage.String())

	var runErr error
	outcome := OutcomeCompleted
	for !st.Stage.Terminal() {
		if err := ctx.Err(); err != nil {
			runErr, outcome = err, OutcomeCancelled
			break
		}
		prev := st.Stage
		next, err := o.step(ctx, st)
		if err != nil {
			if ctx.Err() != nil {
				runErr, outcome = ctx.Err(), OutcomeCancelled
			} else {
				runErr, outcome = err, OutcomeAborted
			}
			break
		}
		st.Stage = next
		if next != prev {
			o.metrics.SetStage(prev.String(), next.String())
		}
		var done Outcome
		if next == StageCompleted {
			done = OutcomeCompleted
		}
		o.report(ctx, st, done, "")
	}

	if outcome == OutcomeCompleted {
		o.notifyComplete(ctx)
	} else {
		o.metrics.SetStage(st.Stage.String(), StageAborted.String())
		st.Stage = StageAborted
		o.report(context.WithoutCancel(ctx), st, outcome, runErr.Error())
	}
	o.metrics.RunFinished(string(outcome))
	st.typeSpan.End()
	st.trace.SetAttr("outcome", string(outcome))
	st.trace.SetAttr("errors", st.Errors.Len())
	st.trace.End()
	st.trace.Log(log)

	summary := Summary{
		RunID:      st.RunID,
		Outcome:    outcome,
		Stage:      st.Stage,
		Processed:  st.Processed,
		Skipped:    st.Skipped,
		DoneTypes:  st.DoneTypes,
		TotalTypes: st.TotalTypes,
		Errors:     st.Errors.Lines(),
		Duration:   o.now().Sub(start),
	}
	log.Info("reindex finished",
		"outcome", outcome,
		"done_types", st.DoneTypes,
		"total_types", st.TotalTypes,
		"errors", st.Errors.Len(),
		"duration", summary.Duration,
	)
	if runErr != nil && outcome == OutcomeCancelled {
		return summary, fmt.Errorf("reindex cancelled: %w", runErr)
	}
	return summary, runErr
}

// step performs the work of st.Stage and returns the next stage. An error
// stops the run.
func (o *Orchestrator) step(ctx context.Context, st *RunState) (Stage, error) {
	switch st.Stage {
	case StageFetchingTypes:
		return o.fetchTypes(ctx, st)
	case StageTypeLoop:
		return o.nextType(ctx, st), nil
	case StageRemovingOldContent:
		return o.removeOldContent(ctx, st)
	case StageFetchingItemList:
		return o.fetchItemList(ctx, st)
	case StageItemLoop:
		return o.indexNext(ctx, st)
	case StageFinishingType:
		return o.finishType(ctx, st)
	case StageCompleted:
		return StageCompleted, nil
	default:
		return StageAborted, fmt.Errorf("%w: unexpected stage %s", apperrors.ErrInternal, st.Stage)
	}
}

func (o *Orchestrator) fetchTypes(ctx context.Context, st *RunState) (Stage, error) {
	ctx, span := tracing.StartChild(ctx, string(protocol.ActionGetContentTypes))
	defer span.End()
	var types []string
	err := o.call(ctx, protocol.ActionGetContentTypes, o.cfg.Timeouts.Catalog, func(ctx context.Context) error {
		var err error
		types, err = o.backend.ContentTypes(ctx)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return st.Stage, ctx.Err()
		}
		st.Errors.add(fmt.Sprintf("%s :: %s", protocol.ActionGetContentTypes, protocol.Reason(err)), err)
		return StageAborted, fmt.Errorf("%w: fetching content types: %w", apperrors.ErrFatalAbort, err)
	}
	st.queue = types
	st.TotalTypes = len(types)
	st.DoneTypes = min(1, st.TotalTypes)
	span.SetAttr("types", len(types))
	o.logger.InfoContext(ctx, "content types fetched", "count", len(types), "types", types)
	return StageTypeLoop, nil
}

func (o *Orchestrator) nextType(ctx context.Context, st *RunState) Stage {
	for len(st.queue) > 0 {
		t := st.queue[0]
		st.queue = st.queue[1:]
		if !o.selector(t) {
			st.Skipped = append(st.Skipped, t)
			o.logger.Info("content type not selected, skipping", "type", t)
			continue
		}
		st.Type = t
		st.Coarse = coarsePercent(st.DoneTypes, st.TotalTypes)
		_, st.typeSpan = tracing.StartChild(ctx, t)
		st.typeErrStart = st.Errors.Len()
		return StageRemovingOldContent
	}
	st.Type = ""
	st.Coarse = 100
	return StageCompleted
}

func (o *Orchestrator) removeOldContent(ctx context.Context, st *RunState) (Stage, error) {
	err := o.call(ctx, protocol.ActionRemoveOldContent, o.cfg.Timeouts.Purge, func(ctx context.Context) error {
		return o.backend.RemoveOldContent(ctx, st.Type)
	})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return st.Stage, ctx.Err()
	case protocol.IsTimeout(err):
		st.Errors.addType(st.Type, err, protocol.Reason(err))
		o.logger.WarnContext(ctx, "purge timed out, backing off before listing", "type", st.Type, "backoff", o.cfg.PurgeBackoff)
		if err := o.sleep(ctx, o.cfg.PurgeBackoff); err != nil {
			return st.Stage, err
		}
	default:
		st.Errors.addType(st.Type, err, protocol.Reason(err))
		o.logger.WarnContext(ctx, "purge failed", "type", st.Type, "error", err)
	}
	return StageFetchingItemList, nil
}

func (o *Orchestrator) fetchItemList(ctx context.Context, st *RunState) (Stage, error) {
	st.resetItems(nil)
	var ids []string
	err := o.call(ctx, protocol.ActionGetContentList, o.cfg.Timeouts.List, func(ctx context.Context) error {
		var err error
		ids, err = o.backend.ContentList(ctx, st.Type)
		return err
	})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return st.Stage, ctx.Err()
	case protocol.IsTimeout(err):
		st.Errors.addType(st.Type, err, protocol.Reason(err))
		return StageAborted, fmt.Errorf("%w: listing %s: %w", apperrors.ErrFatalAbort, st.Type, err)
	default:
		st.Errors.addType(st.Type, err, protocol.Reason(err))
		o.logger.WarnContext(ctx, "listing failed, continuing with returned items", "type", st.Type, "items", len(ids), "error", err)
	}
	st.resetItems(ids)
	o.logger.InfoContext(ctx, "indexing content type", "type", st.Type, "items", len(ids))
	return StageItemLoop, nil
}

func (o *Orchestrator) indexNext(ctx context.Context, st *RunState) (Stage, error) {
	if len(st.items) == 0 {
		st.Item = ""
		return StageFinishingType, nil
	}
	id := st.items[0]
	st.items = st.items[1:]
	st.Item = id

	err := o.call(ctx, protocol.ActionIndex, o.cfg.Timeouts.Index, func(ctx context.Context) error {
		return o.backend.Index(ctx, st.Type, id)
	})
	if err != nil {
		if ctx.Err() != nil {
			return st.Stage, ctx.Err()
		}
		st.Errors.addItem(st.Type, id, err, protocol.Reason(err))
		code := apperrors.CodeInternal
		var appErr *protocol.ApplicationError
		if errors.As(err, &appErr) {
			code = appErr.Code
		} else if protocol.IsTimeout(err) {
			code = apperrors.CodeTimeout
		}
		o.metrics.IndexError(st.Type, code)
		o.logger.WarnContext(ctx, "indexing item failed", "type", st.Type, "id", id, "error", err)
	}
	st.DoneItems++
	st.Fine = finePercent(st.DoneItems, st.TotalItems)
	return StageItemLoop, nil
}

func (o *Orchestrator) finishType(ctx context.Context, st *RunState) (Stage, error) {
	err := o.call(ctx, protocol.ActionContentComplete, o.cfg.Timeouts.Finish, func(ctx context.Context) error {
		return o.backend.ContentComplete(ctx, st.Type)
	})
	if err != nil {
		if ctx.Err() != nil {
			return st.Stage, ctx.Err()
		}
		st.Errors.addType(st.Type, err, protocol.Reason(err))
		o.logger.WarnContext(ctx, "finishing content type failed", "type", st.Type, "error", err)
	}
	st.Processed = append(st.Processed, st.Type)
	st.typeSpan.SetAttr("items", st.TotalItems)
	st.typeSpan.SetAttr("errors", st.Errors.Len()-st.typeErrStart)
	st.typeSpan.End()
	st.advanceType()
	st.Fine = 100
	return StageTypeLoop, nil
}

// notifyComplete sends the final notification. Its outcome is only logged.
func (o *Orchestrator) notifyComplete(ctx context.Context) {
	if err := o.sleep(ctx, o.cfg.CompleteDelay); err != nil {
		return
	}
	ctx, span := tracing.StartChild(ctx, string(protocol.ActionComplete))
	defer span.End()
	start := o.now()
	err := resilience.WithTimeout(ctx, o.cfg.Timeouts.Complete, string(protocol.ActionComplete), o.backend.Complete)
	o.metrics.ObserveAction(string(protocol.ActionComplete), outcomeOf(err), o.now().Sub(start))
	span.SetAttr("outcome", outcomeOf(err))
	if err != nil {
		o.logger.WarnContext(ctx, "complete notification failed", "error", err)
		return
	}
	o.logger.InfoContext(ctx, "complete notification sent")
}

// call runs one action request after the debounce pause, bounded by
// timeout. A request cut off by its own deadline is reported as a timed-out
// transport error whatever the backend returned.
func (o *Orchestrator) call(ctx context.Context, action protocol.Action, timeout time.Duration, fn func(ctx context.Context) error) error {
	if action != protocol.ActionGetContentTypes {
		if err := o.sleep(ctx, o.cfg.Debounce); err != nil {
			return err
		}
	}
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	start := o.now()
	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !protocol.IsTimeout(err) {
		err = &protocol.TransportError{Action: action, Timeout: true, Err: err}
	}
	o.metrics.ObserveAction(string(action), outcomeOf(err), o.now().Sub(start))
	return err
}

func (o *Orchestrator) report(ctx context.Context, st *RunState, outcome Outcome, message string) {
	o.metrics.SetProgress(st.Coarse, st.Fine)
	if o.reporter == nil {
		return
	}
	o.reporter.Report(ctx, progress.Snapshot{
		RunID:      st.RunID,
		Stage:      st.Stage.String(),
		Type:       st.Type,
		Item:       st.Item,
		Coarse:     st.Coarse,
		Fine:       st.Fine,
		DoneTypes:  st.DoneTypes,
		TotalTypes: st.TotalTypes,
		DoneItems:  st.DoneItems,
		TotalItems: st.TotalItems,
		Errors:     st.Errors.Len(),
		Message:    message,
		Finished:   st.Stage.Terminal(),
		Outcome:    string(outcome),
		UpdatedAt:  o.now(),
	})
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case protocol.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case protocol.IsApplication(err):
		return "app_error"
	default:
		return "transport_error"
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
