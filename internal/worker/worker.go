package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"paperco.app/intake/common/logger"
	"paperco.app/intake/internal/domain"
	"paperco.app/intake/internal/inbox"
	"paperco.app/intake/internal/pipeline"
)

type Config struct {
	MaxAttempts int
}

// Runner is the per-message processing capability. Satisfied by
// pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, msg domain.Message) (domain.Outcome, error)
}

// Worker drains the inbox one message at a time. A message is acked only
// once the pipeline produced a terminal outcome; retryable failures leave
// the entry pending so the next read picks it up again, and after
// MaxAttempts the message is parked for human review.
type Worker struct {
	transport inbox.Transport
	pipeline  Runner
	cfg       Config
	metrics   *Metrics

	attempts map[string]int

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(transport inbox.Transport, p Runner, cfg Config, metrics *Metrics) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Worker{
		transport: transport,
		pipeline:  p,
		cfg:       cfg,
		metrics:   metrics,
		attempts:  make(map[string]int),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started", "max_attempts", w.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.pollOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "inbox poll error", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) pollOnce(ctx context.Context) error {
	msg, err := w.transport.Next(ctx)
	if err != nil {
		return fmt.Errorf("reading inbox: %w", err)
	}
	if msg == nil {
		return nil
	}

	w.attempts[msg.ID]++
	attempt := w.attempts[msg.ID]

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: logger.Ptr(msg.ID),
		Component: "worker",
	})
	slog.InfoContext(ctx, "processing message",
		"sender", msg.Sender,
		"subject", logger.Truncate(msg.Subject, 80),
		"attempt", attempt)

	outcome, err := w.runSafe(ctx, *msg)
	if err != nil {
		slog.ErrorContext(ctx, "message processing failed",
			"error", err,
			"attempt", attempt)
		w.handleFailure(ctx, msg, attempt, err)
		return nil
	}

	return w.finish(ctx, msg, outcome)
}

func (w *Worker) runSafe(ctx context.Context, msg domain.Message) (out domain.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.pipeline.Run(ctx, msg)
}

func (w *Worker) finish(ctx context.Context, msg *domain.Message, outcome domain.Outcome) error {
	if !outcome.Terminal() {
		return fmt.Errorf("pipeline returned no terminal outcome for message %s", msg.ID)
	}

	switch outcome.Kind {
	case domain.OutcomeFulfilled:
		w.metrics.Fulfilled.Add(1)
	case domain.OutcomeRejected:
		w.metrics.Rejected.Add(1)
	case domain.OutcomeDenied:
		w.metrics.Denied.Add(1)
	case domain.OutcomeSkipped:
		w.metrics.Skipped.Add(1)
	}

	if err := w.transport.MarkProcessed(ctx, msg.ID); err != nil {
		// The outcome already happened; leaving the entry pending means a
		// replay, which downstream writes tolerate via the message id key.
		return fmt.Errorf("marking message %s processed: %w", msg.ID, err)
	}

	delete(w.attempts, msg.ID)
	w.metrics.Processed.Add(1)
	slog.InfoContext(ctx, "message processed", "outcome", outcome.Kind)
	return nil
}

func (w *Worker) handleFailure(ctx context.Context, msg *domain.Message, attempt int, procErr error) {
	if pipeline.IsRetryable(procErr) && attempt < w.cfg.MaxAttempts {
		w.metrics.RetryableErr.Add(1)
		slog.WarnContext(ctx, "message left pending for retry",
			"attempt", attempt,
			"max_attempts", w.cfg.MaxAttempts)
		return
	}

	reason := fmt.Sprintf("failed after %d attempt(s): %v", attempt, procErr)
	if err := w.transport.MarkForReview(ctx, *msg, reason); err != nil {
		slog.ErrorContext(ctx, "parking message for review failed", "error", err)
		return
	}
	delete(w.attempts, msg.ID)
	w.metrics.Parked.Add(1)
	slog.WarnContext(ctx, "message parked for review", "reason", reason)
}
