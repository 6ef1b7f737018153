package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"paperco.app/intake/common/logger"
	"paperco.app/intake/internal/domain"
	"paperco.app/intake/internal/intel"
)

// Pipeline is the ordered sequence of typed transformation stages for one
// inbound message: Classify, Extract, Resolve, Decide, then exactly one of
// Fulfill or Reject. Each stage consumes the prior stage's output; the
// message id rides through every entity unchanged. A run either returns a
// terminal Outcome or an error - never both - and only a terminal Outcome
// permits marking the message processed.
type Pipeline struct {
	classifier *intel.Classifier
	extractor  *intel.Extractor
	resolver   *Resolver
	decider    Decider
	fulfiller  *Fulfiller
	rejecter   *Rejecter
}

func New(
	classifier *intel.Classifier,
	extractor *intel.Extractor,
	resolver *Resolver,
	decider Decider,
	fulfiller *Fulfiller,
	rejecter *Rejecter,
) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		extractor:  extractor,
		resolver:   resolver,
		decider:    decider,
		fulfiller:  fulfiller,
		rejecter:   rejecter,
	}
}

func (p *Pipeline) Run(ctx context.Context, msg domain.Message) (domain.Outcome, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: logger.Ptr(msg.ID),
		Component: "intake.pipeline",
	})

	// Stage 1: Classify. A capability failure here aborts without a
	// terminal outcome - the message stays unprocessed for a later poll.
	classifyCtx := logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr("classify")})
	classified, err := p.classifier.Classify(classifyCtx, msg)
	if err != nil {
		return domain.Outcome{}, NewRetryableError(KindClassificationFailure,
			fmt.Errorf("classify stage: %w", err))
	}

	// Non-orders short-circuit to a no-op skip; Extract is never invoked
	// and the sender is not messaged.
	if !classified.IsOrder {
		slog.InfoContext(ctx, "message is not an order, skipping",
			"confidence", classified.Confidence,
			"reason", classified.Reason)
		return domain.Outcome{Kind: domain.OutcomeSkipped}, nil
	}

	// Stage 2: Extract. Garbled input that yields no usable lines routes
	// straight to Reject with a parse-failure explanation; Resolve and
	// Decide are skipped. Transport-level failures abort for retry.
	extractCtx := logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr("extract")})
	extracted, err := p.extractor.Extract(extractCtx, classified)
	if err != nil {
		if errors.Is(err, intel.ErrEmptyExtraction) {
			slog.WarnContext(ctx, "extraction yielded no order lines, rejecting")
			return p.rejecter.RejectParseFailure(ctx, msg)
		}
		return domain.Outcome{}, NewRetryableError(KindExtractionFailure,
			fmt.Errorf("extract stage: %w", err))
	}

	// Stage 3: Resolve.
	resolved, err := p.resolver.Resolve(ctx, extracted, msg)
	if err != nil {
		return domain.Outcome{}, err
	}

	// Stage 4: Decide. Pure and deterministic; credit shortfalls, stock
	// gaps and weak matches are verdicts here, not errors.
	decision := p.decider.Decide(resolved)
	slog.InfoContext(ctx, "decision made",
		"status", decision.Status,
		"category", decision.Category,
		"reason", decision.Reason)

	// Stage 5: dispatch on the verdict.
	switch decision.Status {
	case domain.StatusFulfillable:
		return p.fulfiller.Fulfill(ctx, decision)
	case domain.StatusUnfulfillable:
		return p.rejecter.RejectDecision(ctx, decision)
	default:
		return domain.Outcome{}, NewFatalError(KindCapabilityUnavailable,
			fmt.Errorf("unknown decision status %q", decision.Status))
	}
}
