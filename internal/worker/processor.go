package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"lanread/internal/events"
	"lanread/internal/metrics"
	"lanread/internal/models"
	"lanread/internal/resolver"
	"lanread/internal/workspace"

	"github.com/rs/zerolog"
)

type trigger int

const (
	triggerEnqueued trigger = iota
	triggerOnline
	triggerReady
	triggerNow
)

// Store is the durable queue surface the processor drains.
type Store interface {
	ClaimNextPending(ctx context.Context) (*models.SyncTask, error)
	MarkTaskSynced(ctx context.Context, id int64) error
	MarkTaskFailed(ctx context.Context, id int64, retryCount int, shouldRetry bool, errMsg string) error
	ResetInProgressTasks(ctx context.Context) (int64, error)
	UpdateLastSyncedAt(ctx context.Context, at time.Time) error
	GetSyncConfig(ctx context.Context) (*models.SyncConfig, error)
	CountPendingTasks(ctx context.Context) (int64, error)
}

// PageResolver yields the remote page for a task's book.
type PageResolver interface {
	Resolve(ctx context.Context, payload *models.TaskPayload) (string, error)
}

// ContentAppender delivers one task's content to a page.
type ContentAppender interface {
	AppendHighlight(ctx context.Context, payload *models.TaskPayload, pageID string) error
	AppendNote(ctx context.Context, payload *models.TaskPayload, pageID string) error
}

// ReadyChecker reports whether the session collaborator holds a usable
// credential.
type ReadyChecker interface {
	Ready() bool
}

// Options tune the processor. Zero values fall back to production defaults;
// tests shrink the time units.
type Options struct {
	Debounce       time.Duration // batches bursts of enqueues into one drain
	MaxRetries     int           // delivery attempts before terminal failure
	UnknownDelay   time.Duration // pause after unclassified errors
	RateLimitFloor time.Duration // minimum pause after a 429
	BackoffUnit    time.Duration // unit for exponential transport backoff
}

func (o *Options) applyDefaults() {
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = models.MaxTaskRetries
	}
	if o.UnknownDelay <= 0 {
		o.UnknownDelay = 8 * time.Second
	}
	if o.RateLimitFloor <= 0 {
		o.RateLimitFloor = time.Second
	}
	if o.BackoffUnit <= 0 {
		o.BackoffUnit = time.Second
	}
}

// Processor is the single-flight drain loop: it pulls tasks in FIFO order,
// resolves the book's page, appends content, and applies the retry policy.
// All loop state lives on the Run goroutine; external callers communicate
// only through the Notify/Trigger methods.
type Processor struct {
	store    Store
	resolver PageResolver
	appender ContentAppender
	session  ReadyChecker
	bus      *events.EventBus
	opts     Options
	logger   zerolog.Logger

	triggers chan trigger
	online   atomic.Bool
}

func NewProcessor(store Store, pageResolver PageResolver, appender ContentAppender, session ReadyChecker, bus *events.EventBus, opts Options, logger *zerolog.Logger) *Processor {
	opts.applyDefaults()
	p := &Processor{
		store:    store,
		resolver: pageResolver,
		appender: appender,
		session:  session,
		bus:      bus,
		opts:     opts,
		triggers: make(chan trigger, 64),
		logger:   logger.With().Str("component", "sync-processor").Logger(),
	}
	p.online.Store(true)
	return p
}

// NotifyEnqueued signals that new tasks were committed. Debounced.
func (p *Processor) NotifyEnqueued() { p.send(triggerEnqueued) }

// NotifyOnline signals restored connectivity and cancels any pending pause.
func (p *Processor) NotifyOnline() {
	p.online.Store(true)
	p.send(triggerOnline)
}

// NotifyOffline marks the network as unavailable; drains stop starting.
func (p *Processor) NotifyOffline() { p.online.Store(false) }

// NotifyRemoteReady signals a usable credential and cancels any pending
// pause. Stuck in_progress tasks are reverted before the drain.
func (p *Processor) NotifyRemoteReady() { p.send(triggerReady) }

// TriggerNow starts a drain immediately, bypassing the debounce.
func (p *Processor) TriggerNow() { p.send(triggerNow) }

func (p *Processor) send(t trigger) {
	select {
	case p.triggers <- t:
	default:
		// The channel already carries enough wake-ups.
	}
}

// Run owns the drain loop until ctx is done. Exactly one Run per processor.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info().Msg("Sync processor started")
	defer p.logger.Info().Msg("Sync processor stopped")

	p.recoverStuck(ctx)

	var (
		debounce  *time.Timer
		debounceC <-chan time.Time
		pause     *time.Timer
		pauseC    <-chan time.Time
		rerun     bool
	)

	stop := func(t **time.Timer, c *<-chan time.Time) {
		if *t != nil {
			(*t).Stop()
			*t = nil
			*c = nil
		}
	}

	startPause := func(d time.Duration) {
		stop(&pause, &pauseC)
		pause = time.NewTimer(d)
		pauseC = pause.C
	}

	drain := func() {
		for {
			pauseFor, halt := p.drainOnce(ctx)
			if pauseFor > 0 {
				startPause(pauseFor)
				return
			}
			if halt {
				return
			}
			if rerun {
				rerun = false
				continue
			}
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case t := <-p.triggers:
			switch t {
			case triggerEnqueued:
				stop(&debounce, &debounceC)
				debounce = time.NewTimer(p.opts.Debounce)
				debounceC = debounce.C
			case triggerOnline, triggerReady, triggerNow:
				// Higher-priority triggers supersede any stale backoff.
				stop(&pause, &pauseC)
				stop(&debounce, &debounceC)
				if t == triggerReady {
					p.recoverStuck(ctx)
				}
				rerun = false
				drain()
			}

		case <-debounceC:
			debounce, debounceC = nil, nil
			if pauseC != nil {
				// Respect the active pause; run once it elapses.
				rerun = true
				continue
			}
			drain()

		case <-pauseC:
			pause, pauseC = nil, nil
			drain()
		}
	}
}

func (p *Processor) recoverStuck(ctx context.Context) {
	n, err := p.store.ResetInProgressTasks(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to reset in-progress tasks")
		return
	}
	if n > 0 {
		p.logger.Warn().Int64("count", n).Msg("Reverted stuck in-progress tasks to pending")
	}
}

// drainOnce processes tasks in order until the queue is empty, a pause is
// required, or the loop must halt. Returns the pause duration (0 for none)
// and whether the loop halted without a scheduled resume.
func (p *Processor) drainOnce(ctx context.Context) (time.Duration, bool) {
	if !p.ready(ctx) {
		return 0, true
	}

	metrics.IncDrain()

	for {
		if ctx.Err() != nil || !p.online.Load() {
			return 0, true
		}

		task, err := p.store.ClaimNextPending(ctx)
		if err != nil {
			// Store failures abort only this drain cycle; the next
			// trigger starts a fresh one.
			p.logger.Error().Err(err).Msg("Failed to claim next task")
			return 0, true
		}
		if task == nil {
			p.updatePendingGauge(ctx)
			return 0, false
		}

		pauseFor, halt := p.processTask(ctx, task)
		if pauseFor > 0 || halt {
			p.updatePendingGauge(ctx)
			return pauseFor, halt
		}
	}
}

func (p *Processor) ready(ctx context.Context) bool {
	if !p.online.Load() {
		return false
	}
	if p.session != nil && !p.session.Ready() {
		return false
	}
	cfg, err := p.store.GetSyncConfig(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to load sync config")
		return false
	}
	return cfg != nil && cfg.DatabaseID != ""
}

// processTask delivers one task. Returns a pause duration and whether the
// drain loop must halt.
func (p *Processor) processTask(ctx context.Context, task *models.SyncTask) (time.Duration, bool) {
	var payload models.TaskPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		p.failTerminal(ctx, task, "invalid_payload", fmt.Errorf("decode payload: %w", err))
		return 0, false
	}

	pageID, err := p.resolver.Resolve(ctx, &payload)
	if err == nil {
		switch task.TaskType {
		case models.TaskTypeHighlight:
			err = p.appender.AppendHighlight(ctx, &payload, pageID)
		case models.TaskTypeNote:
			err = p.appender.AppendNote(ctx, &payload, pageID)
		default:
			p.failTerminal(ctx, task, "unknown_type", fmt.Errorf("unknown task type: %s", task.TaskType))
			return 0, false
		}
	}

	if err == nil {
		p.finishTask(ctx, task)
		return 0, false
	}

	return p.handleFailure(ctx, task, err)
}

func (p *Processor) finishTask(ctx context.Context, task *models.SyncTask) {
	if err := p.store.MarkTaskSynced(ctx, task.ID); err != nil {
		p.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark task synced")
		return
	}
	now := time.Now()
	if err := p.store.UpdateLastSyncedAt(ctx, now); err != nil {
		p.logger.Error().Err(err).Msg("Failed to advance last_synced_at")
	}
	metrics.IncTaskSynced()
	p.logger.Info().
		Int64("task_id", task.ID).
		Str("task_type", task.TaskType).
		Str("book_id", task.BookID).
		Msg("Task synced")
	_ = p.bus.PublishJSON(events.EventTaskSynced, events.TaskSyncedPayload{
		TaskID:   task.ID,
		TaskType: task.TaskType,
		BookID:   task.BookID,
		SyncedAt: now,
	})
}

// handleFailure classifies a delivery error and applies the matching retry
// policy. The returned pause stops the whole loop, not just this task, so
// the remote rate window is respected globally.
func (p *Processor) handleFailure(ctx context.Context, task *models.SyncTask, err error) (time.Duration, bool) {
	var (
		unauthorized *workspace.UnauthorizedError
		rateLimited  *workspace.RateLimitedError
		transport    *workspace.TransportError
		payloadErr   *workspace.PayloadError
	)

	switch {
	case errors.Is(err, workspace.ErrNoCredential), errors.As(err, &unauthorized):
		// The task stays in_progress on purpose; the next readiness cycle
		// reverts it. Retry state is untouched.
		p.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Credential rejected, halting drain")
		return 0, true

	case errors.As(err, &rateLimited):
		p.persistRetry(ctx, task, "rate_limited", err)
		return RateLimitDelay(rateLimited.RetryAfter, p.opts.RateLimitFloor), false

	case errors.As(err, &transport):
		attempt := task.RetryCount + 1
		p.persistRetry(ctx, task, "transport", err)
		return TransientBackoff(attempt, p.opts.BackoffUnit), false

	case errors.As(err, &payloadErr),
		errors.Is(err, resolver.ErrInvalidBookID),
		errors.Is(err, resolver.ErrInvalidCreateResponse):
		// Waiting cannot fix a structural error.
		p.failTerminal(ctx, task, "invalid_payload", err)
		return 0, false

	case errors.Is(err, resolver.ErrMissingDatabaseID):
		// Sync got unconfigured mid-drain. Requeue untouched and halt.
		if mErr := p.store.MarkTaskFailed(ctx, task.ID, task.RetryCount, true, err.Error()); mErr != nil {
			p.logger.Error().Err(mErr).Int64("task_id", task.ID).Msg("Failed to requeue task")
		}
		return 0, true

	default:
		shouldRetry := p.persistRetry(ctx, task, "unknown", err)
		if shouldRetry {
			return p.opts.UnknownDelay, false
		}
		return 0, false
	}
}

// persistRetry increments the retry count, requeuing or terminally failing
// the task. Reports whether retries remain.
func (p *Processor) persistRetry(ctx context.Context, task *models.SyncTask, reason string, cause error) bool {
	attempt := task.RetryCount + 1
	shouldRetry := attempt < p.opts.MaxRetries
	if err := p.store.MarkTaskFailed(ctx, task.ID, attempt, shouldRetry, cause.Error()); err != nil {
		p.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to persist retry state")
		return shouldRetry
	}
	if shouldRetry {
		metrics.IncTaskRetry()
		p.logger.Warn().Err(cause).
			Int64("task_id", task.ID).
			Int("retry_count", attempt).
			Str("reason", reason).
			Msg("Task delivery failed, will retry")
	} else {
		metrics.IncTaskFailed(reason)
		p.logger.Error().Err(cause).
			Int64("task_id", task.ID).
			Int("retry_count", attempt).
			Str("reason", reason).
			Msg("Task retries exhausted")
	}
	return shouldRetry
}

func (p *Processor) failTerminal(ctx context.Context, task *models.SyncTask, reason string, cause error) {
	if err := p.store.MarkTaskFailed(ctx, task.ID, task.RetryCount, false, cause.Error()); err != nil {
		p.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark task failed")
		return
	}
	metrics.IncTaskFailed(reason)
	p.logger.Error().Err(cause).
		Int64("task_id", task.ID).
		Str("reason", reason).
		Msg("Task failed terminally")
}

func (p *Processor) updatePendingGauge(ctx context.Context) {
	n, err := p.store.CountPendingTasks(ctx)
	if err != nil {
		return
	}
	metrics.SetQueuePending(float64(n))
}
