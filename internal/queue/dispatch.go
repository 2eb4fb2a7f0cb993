package queue

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"sage/internal/logging"
	"sage/internal/progress"
	"sage/internal/ratelimit"
	"sage/internal/services"
)

func (q *Queue) dispatch(ctx context.Context) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		now := q.now()
		q.promoteLocked(now)
		q.admitLocked(ctx, now)
		deadline, ok := q.nextDeadlineLocked()
		q.mu.Unlock()

		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		if ok {
			timer = time.NewTimer(max(deadline.Sub(now), time.Millisecond))
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-q.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// admitLocked starts ready items while worker capacity remains. Items whose
// source already has an active item are held back so at most one item per
// source runs at a time.
func (q *Queue) admitLocked(ctx context.Context, now time.Time) {
	var held []*entry
	for q.active < q.cfg.MaxWorkers && q.ready.Len() > 0 {
		e := heap.Pop(&q.ready).(*entry)
		if _, busy := q.activeKeys[e.key]; busy {
			held = append(held, e)
			continue
		}
		if !q.reserveLocked(e, now) {
			continue
		}
		q.startLocked(ctx, e, now)
	}
	for _, e := range held {
		heap.Push(&q.ready, e)
	}
}

// reserveLocked takes the rate budgets for e's current stage. It returns
// false after parking or failing e.
func (q *Queue) reserveLocked(e *entry, now time.Time) bool {
	if q.limiter == nil {
		e.item.WaitingSince = time.Time{}
		return true
	}
	names := q.exec.Services(e.snapshot())
	if len(names) == 0 {
		e.item.WaitingSince = time.Time{}
		return true
	}
	wait, err := q.limiter.AcquireAll(names, 1)
	if err != nil {
		q.failLocked(e, services.Wrap(services.KindConfiguration, e.item.Stage, "reserve rate budget", "", err))
		return false
	}
	if wait <= 0 {
		e.item.WaitingSince = time.Time{}
		return true
	}

	delay := wait
	message := fmt.Sprintf("waiting %s for rate budget", wait.Round(time.Millisecond))
	if wait >= ratelimit.Unserviceable {
		delay = q.cfg.RecheckInterval
		message = "rate budget cannot currently be satisfied"
	}
	if e.item.WaitingSince.IsZero() {
		e.item.WaitingSince = now
	}
	status := StatusWaiting
	if q.stalledLocked(e, now) {
		status = StatusStalled
		message = "stalled waiting for rate budget"
	}
	q.parkLocked(e, now.Add(delay), status, message)
	return false
}

// parkLocked moves e into the waiting set until notBefore. An event is
// published only when the status changes.
func (q *Queue) parkLocked(e *entry, notBefore time.Time, status Status, message string) {
	prev := e.item.Status
	e.item.Status = status
	e.item.NotBefore = notBefore
	e.item.Message = message
	q.waiting[e.item.ID] = e
	if prev != status {
		q.publishLocked(e, message)
	}
}

func (q *Queue) stalledLocked(e *entry, now time.Time) bool {
	if q.cfg.StallTimeout <= 0 || e.item.WaitingSince.IsZero() {
		return false
	}
	return now.Sub(e.item.WaitingSince) >= q.cfg.StallTimeout
}

// promoteLocked returns due waiting items to the ready heap and flags items
// that have waited on rate budgets past the stall timeout.
func (q *Queue) promoteLocked(now time.Time) {
	for id, e := range q.waiting {
		if !e.item.NotBefore.After(now) {
			delete(q.waiting, id)
			e.item.NotBefore = time.Time{}
			q.pushReadyLocked(e)
			continue
		}
		if e.item.Status == StatusWaiting && q.stalledLocked(e, now) {
			e.item.Status = StatusStalled
			e.item.Message = "stalled waiting for rate budget"
			q.logger.Warn("item stalled on rate budget",
				logging.Int64(logging.FieldItemID, id),
				logging.String(logging.FieldSourceID, e.key),
				logging.String(logging.FieldStage, e.item.Stage),
				logging.Duration("waited", now.Sub(e.item.WaitingSince)),
				logging.String(logging.FieldEventType, "item_stalled"),
				logging.String(logging.FieldErrorHint, "check rate_limits configuration for a zero or exhausted budget"),
			)
			q.publishLocked(e, e.item.Message)
			q.signalLocked()
		}
	}
}

func (q *Queue) nextDeadlineLocked() (time.Time, bool) {
	var (
		deadline time.Time
		ok       bool
	)
	consider := func(t time.Time) {
		if t.IsZero() {
			return
		}
		if !ok || t.Before(deadline) {
			deadline, ok = t, true
		}
	}
	for _, e := range q.waiting {
		consider(e.item.NotBefore)
		if e.item.Status == StatusWaiting && q.cfg.StallTimeout > 0 && !e.item.WaitingSince.IsZero() {
			consider(e.item.WaitingSince.Add(q.cfg.StallTimeout))
		}
	}
	return deadline, ok
}

func (q *Queue) pushReadyLocked(e *entry) {
	heap.Push(&q.ready, e)
}

func (q *Queue) startLocked(ctx context.Context, e *entry, now time.Time) {
	e.running = true
	q.active++
	q.activeKeys[e.key] = e.item.ID
	e.item.Status = StatusActive
	e.item.NotBefore = time.Time{}
	if e.item.StartedAt.IsZero() {
		e.item.StartedAt = now.UTC()
	}
	q.setProgressLocked(e, 0, "")

	q.wg.Add(1)
	go q.work(ctx, e.item.ID)
}

func (q *Queue) releaseLocked(e *entry) {
	if !e.running {
		return
	}
	e.running = false
	q.active--
	if q.activeKeys[e.key] == e.item.ID {
		delete(q.activeKeys, e.key)
	}
}

// work runs stages of one item for as long as its budgets allow, then
// returns the worker.
func (q *Queue) work(ctx context.Context, id int64) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		e, ok := q.items[id]
		if !ok || !e.running {
			q.mu.Unlock()
			return
		}
		snap := e.snapshot()
		q.mu.Unlock()

		stageCtx := services.WithItemID(ctx, id)
		stageCtx = services.WithSourceID(stageCtx, snap.SourceID)
		stageCtx = services.WithStage(stageCtx, snap.Stage)
		stageCtx = services.WithRequestID(stageCtx, uuid.NewString())
		stage := snap.Stage

		started := time.Now()
		out := q.exec.Step(stageCtx, snap, func(percent float64, message string) {
			q.reportStage(id, stage, percent, message)
		})
		if !q.finishStep(ctx, id, stage, out, time.Since(started)) {
			return
		}
	}
}

func (q *Queue) reportStage(id int64, stage string, percent float64, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.items[id]
	if !ok || !e.running || e.item.Stage != stage {
		return
	}
	q.setProgressLocked(e, percent, message)
}

// finishStep applies an executor outcome. It returns true when the worker
// should run the item's next stage immediately.
func (q *Queue) finishStep(ctx context.Context, id int64, stage string, out Outcome, elapsed time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.signalLocked()

	e, ok := q.items[id]
	if !ok {
		return false
	}
	now := q.now()
	e.item.Artifacts = out.Artifacts
	logger := q.logger.With(
		logging.Int64(logging.FieldItemID, id),
		logging.String(logging.FieldSourceID, e.key),
		logging.String(logging.FieldStage, stage),
	)

	if out.Err != nil {
		kind := services.KindOf(out.Err)
		e.item.Attempt++
		stopping := ctx.Err() != nil || e.item.CancelRequested || kind == services.KindCancelled

		if !stopping && q.cfg.Retry.ShouldRetry(e.item.Attempt, kind) {
			delay := q.cfg.Retry.DelayFor(e.item.Attempt)
			if hint, ok := services.RetryAfterHint(out.Err); ok && hint > delay {
				delay = hint
			}
			e.item.Retries++
			q.releaseLocked(e)
			message := fmt.Sprintf("attempt %d/%d failed (%s); retrying in %s",
				e.item.Attempt, e.item.MaxAttempts, kind, delay.Round(time.Millisecond))
			logger.Info("stage retry scheduled",
				logging.String(logging.FieldErrorKind, string(kind)),
				logging.Int("attempt", e.item.Attempt),
				logging.Duration("delay", delay),
				logging.Error(out.Err),
				logging.String(logging.FieldEventType, "stage_retry"),
			)
			e.item.WaitingSince = time.Time{}
			e.item.Message = message
			e.item.Status = StatusWaiting
			e.item.NotBefore = now.Add(delay)
			q.waiting[id] = e
			q.publishEventLocked(e, message, kind)
			return false
		}
		if !stopping && out.Fallback != "" {
			logger.Info("stage falling through",
				logging.String("next_stage", out.Fallback),
				logging.String(logging.FieldErrorKind, string(kind)),
				logging.Int("attempts", e.item.Attempt),
				logging.String(logging.FieldEventType, "stage_fallback"),
			)
			e.item.Stage = out.Fallback
			e.item.Attempt = 0
			return q.continueLocked(ctx, e, now)
		}

		q.releaseLocked(e)
		switch {
		case kind == services.KindCancelled:
		case e.item.CancelRequested:
			out.Err = services.Wrap(services.KindCancelled, stage, "cancel", "cancelled by caller", out.Err)
		case ctx.Err() != nil:
			out.Err = services.Wrap(services.KindCancelled, stage, "shutdown", "queue stopped", out.Err)
		case out.Resumable && kind != services.KindStorageFailure:
			out.Err = services.Wrap(services.KindStorageFailure, stage, "persist",
				fmt.Sprintf("%s after %d attempts", kind, e.item.Attempt), out.Err)
		}
		q.failLocked(e, out.Err)
		return false
	}

	logger.Debug("stage completed",
		logging.Duration("stage_duration", elapsed),
		logging.String(logging.FieldEventType, "stage_complete"),
	)
	if out.Next == "" {
		q.releaseLocked(e)
		final := out.Final
		if final != StatusNoSpeech {
			final = StatusSucceeded
		}
		q.succeedLocked(e, final)
		return false
	}
	e.item.Stage = out.Next
	e.item.Attempt = 0
	return q.continueLocked(ctx, e, now)
}

// continueLocked moves a running item onto its next stage. The item keeps
// its worker if the stage's budgets are available.
func (q *Queue) continueLocked(ctx context.Context, e *entry, now time.Time) bool {
	if e.item.CancelRequested || ctx.Err() != nil {
		q.releaseLocked(e)
		reason := "cancelled by caller"
		if !e.item.CancelRequested {
			reason = "queue stopped"
		}
		q.failLocked(e, services.Wrap(services.KindCancelled, e.item.Stage, "stage boundary", reason, context.Canceled))
		return false
	}
	e.item.StagePercent = 0
	if !q.reserveLocked(e, now) {
		q.releaseLocked(e)
		return false
	}
	e.item.Status = StatusActive
	q.setProgressLocked(e, 0, "")
	return true
}

func (q *Queue) failLocked(e *entry, err error) {
	kind := services.KindOf(err)
	message := services.Message(err)
	if message == "" {
		message = string(kind)
	}
	e.item.Status = StatusFailed
	e.item.ErrorKind = kind
	e.item.ErrorMessage = message
	e.item.Message = message
	e.item.NotBefore = time.Time{}
	e.item.CompletedAt = q.now().UTC()

	attrs := []logging.Attr{
		logging.Int64(logging.FieldItemID, e.item.ID),
		logging.String(logging.FieldSourceID, e.key),
		logging.String(logging.FieldStage, e.item.Stage),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.Int("attempt", e.item.Attempt),
		logging.Error(err),
		logging.String(logging.FieldEventType, "item_failed"),
	}
	if kind == services.KindStorageFailure {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "computed transcript and summary were kept; retry persistence alone"))
	}
	q.logger.Warn("item failed", logging.Args(attrs...)...)
	q.finishLocked(e)
}

func (q *Queue) succeedLocked(e *entry, final Status) {
	e.item.Status = final
	e.item.StagePercent = 100
	e.item.Progress = 100
	e.item.Message = ""
	e.item.CompletedAt = q.now().UTC()
	q.logger.Info("item finished",
		logging.Int64(logging.FieldItemID, e.item.ID),
		logging.String(logging.FieldSourceID, e.key),
		logging.String("status", string(final)),
		logging.Int("retries", e.item.Retries),
		logging.Duration("elapsed", e.item.CompletedAt.Sub(e.item.SubmittedAt)),
		logging.String(logging.FieldEventType, "item_finished"),
	)
	q.finishLocked(e)
}

func (q *Queue) finishLocked(e *entry) {
	if e.terminal {
		return
	}
	e.terminal = true
	if q.liveKeys[e.key] > 1 {
		q.liveKeys[e.key]--
	} else {
		delete(q.liveKeys, e.key)
	}
	q.finished = append(q.finished, e.item.ID)
	q.publishLocked(e, e.item.Message)
	e.frozen = true
}

// setProgressLocked records stage-local progress and publishes it. Overall
// progress never decreases.
func (q *Queue) setProgressLocked(e *entry, percent float64, message string) {
	percent = math.Min(math.Max(percent, 0), 100)
	e.item.StagePercent = percent
	if overall := q.weights.Overall(e.item.Stage, percent); overall > e.item.Progress {
		e.item.Progress = overall
	}
	if message != "" {
		e.item.Message = message
	}
	q.publishLocked(e, message)
}

func (q *Queue) publishLocked(e *entry, message string) {
	q.publishEventLocked(e, message, e.item.ErrorKind)
}

func (q *Queue) publishEventLocked(e *entry, message string, kind services.Kind) {
	if e.frozen || q.reporter == nil {
		return
	}
	q.reporter.Publish(progress.Event{
		ItemID:       e.item.ID,
		SourceID:     e.key,
		Status:       string(e.item.Status),
		Stage:        e.item.Stage,
		StagePercent: e.item.StagePercent,
		Overall:      e.item.Progress,
		Attempt:      e.item.Attempt,
		Message:      message,
		ErrorKind:    string(kind),
		Terminal:     e.item.Status.Terminal(),
	})
}
