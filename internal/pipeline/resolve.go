package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"paperco.app/intake/common/logger"
	"paperco.app/intake/core/config"
	"paperco.app/intake/internal/domain"
	"paperco.app/intake/internal/matching"
	"paperco.app/intake/internal/store"
)

// Resolver turns an extracted order into a priced, matched ResolvedOrder.
// Customer resolution may create a record (new customers get default
// credit terms); line resolution degrades failures to unmatched lines
// instead of aborting the order.
type Resolver struct {
	matcher  matching.Matcher
	records  store.RecordStore
	matchCfg config.MatchingConfig
	pricing  config.PricingConfig
	credit   config.CreditConfig
}

func NewResolver(
	matcher matching.Matcher,
	records store.RecordStore,
	matchCfg config.MatchingConfig,
	pricing config.PricingConfig,
	credit config.CreditConfig,
) *Resolver {
	return &Resolver{
		matcher:  matcher,
		records:  records,
		matchCfg: matchCfg,
		pricing:  pricing,
		credit:   credit,
	}
}

func (r *Resolver) Resolve(ctx context.Context, extracted domain.ExtractedOrder, msg domain.Message) (domain.ResolvedOrder, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Stage:     logger.Ptr("resolve"),
		Component: "intake.pipeline.resolve",
	})

	profile, isNew, err := r.resolveCustomer(ctx, extracted, msg)
	if err != nil {
		return domain.ResolvedOrder{}, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{CustomerID: logger.Ptr(profile.CustomerID)})

	lines := make([]domain.ResolvedLine, 0, len(extracted.Lines))
	for _, req := range extracted.Lines {
		lines = append(lines, r.resolveLine(ctx, req))
	}

	order := domain.ResolvedOrder{
		MessageID:    extracted.MessageID,
		ThreadID:     msg.ThreadID,
		PONumber:     extracted.PONumber,
		CustomerID:   profile.CustomerID,
		CustomerName: profile.Name,
		NewCustomer:  isNew,
		CreditLimit:  profile.CreditLimit,
		OpenExposure: profile.OpenExposure,
		Lines:        lines,
		TaxRate:      r.pricing.TaxRate,
	}
	order.Totals = domain.ComputeTotals(lines, r.pricing.TaxRate, r.pricing.FlatShipping)

	slog.InfoContext(ctx, "order resolved",
		"customer", profile.Name,
		"new_customer", isNew,
		"line_count", len(lines),
		"total", order.Totals.Total,
		"available_credit", order.AvailableCredit())

	return order, nil
}

// resolveCustomer finds the best customer match or creates a new record.
// Customer resolution cannot be degraded like a line can: without a
// customer there is no credit position, so failures here abort the run
// as retryable.
func (r *Resolver) resolveCustomer(ctx context.Context, extracted domain.ExtractedOrder, msg domain.Message) (*store.CreditProfile, bool, error) {
	hint := matching.CustomerHint{
		Name:          extracted.CustomerName,
		ContactPerson: extracted.ContactPerson,
		Email:         extracted.CustomerEmail,
	}
	if hint.Email == "" {
		hint.Email = msg.Sender
	}

	candidates, err := r.matcher.MatchCustomer(ctx, hint)
	if err != nil {
		// No match is recoverable (create the customer); a dead matching
		// service is not - a retry may find it healthy again.
		return nil, false, NewRetryableError(KindCapabilityUnavailable,
			fmt.Errorf("customer matching: %w", err))
	}

	if len(candidates) > 0 && candidates[0].Score >= r.matchCfg.CustomerThreshold {
		best := candidates[0]
		profile, err := r.records.GetCreditProfile(ctx, best.CustomerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Matching index is ahead of the record store; fall through
				// and create the customer fresh.
				slog.WarnContext(ctx, "matched customer missing from record store, creating",
					"candidate_id", best.CustomerID)
				return r.createCustomer(ctx, extracted, msg)
			}
			return nil, false, NewRetryableError(KindCapabilityUnavailable,
				fmt.Errorf("credit lookup: %w", err))
		}
		slog.DebugContext(ctx, "customer matched",
			"customer_id", profile.CustomerID,
			"score", best.Score)
		return profile, false, nil
	}

	return r.createCustomer(ctx, extracted, msg)
}

func (r *Resolver) createCustomer(ctx context.Context, extracted domain.ExtractedOrder, msg domain.Message) (*store.CreditProfile, bool, error) {
	name := extracted.CustomerName
	if name == "" {
		name = msg.Sender
	}
	email := extracted.CustomerEmail
	if email == "" {
		email = msg.Sender
	}

	profile, err := r.records.CreateCustomer(ctx, store.NewCustomer{
		Name:          name,
		ContactPerson: extracted.ContactPerson,
		Email:         email,
		CreditLimit:   r.credit.DefaultLimit,
	})
	if err != nil {
		return nil, false, NewRetryableError(KindCapabilityUnavailable,
			fmt.Errorf("creating customer: %w", err))
	}

	slog.InfoContext(ctx, "new customer created",
		"customer_id", profile.CustomerID,
		"credit_limit", profile.CreditLimit)
	return profile, true, nil
}

// resolveLine matches one requested line against the catalog. Matching
// errors and empty candidate lists degrade the line to unmatched, which
// Decide treats as out of stock; a top score below the confidence
// threshold keeps the catalog data but forces the order unfulfillable.
func (r *Resolver) resolveLine(ctx context.Context, req domain.LineRequest) domain.ResolvedLine {
	line := domain.ResolvedLine{
		Request:      req,
		RequestedQty: req.Quantity,
	}

	candidates, err := r.matcher.MatchProduct(ctx, matching.ProductHint{
		Description: req.Description,
		SKUHint:     req.SKUHint,
		Unit:        req.Unit,
	})
	if err != nil {
		slog.WarnContext(ctx, "product matching failed, degrading line to unmatched",
			"description", logger.Truncate(req.Description, 60),
			"error", err)
		line.MatchReason = "matching service unavailable"
		return domain.FinishLine(line)
	}
	if len(candidates) == 0 {
		line.MatchReason = "no catalog candidate found"
		return domain.FinishLine(line)
	}

	best := candidates[0]
	line.Matched = true
	line.MatchedSKU = best.SKU
	line.ProductName = best.Name
	line.Unit = best.Unit
	line.UnitPrice = best.UnitPrice
	line.QtyAvailable = best.QtyAvailable
	line.MatchConfidence = best.Score
	line.MatchReason = fmt.Sprintf("best of %d candidates", len(candidates))

	if best.Score < r.matchCfg.ConfidenceThreshold {
		slog.WarnContext(ctx, "low-confidence product match",
			"sku", best.SKU,
			"score", best.Score,
			"threshold", r.matchCfg.ConfidenceThreshold)
	}

	return domain.FinishLine(line)
}
