package pipeline

import (
	"fmt"
	"strings"

	"paperco.app/intake/internal/domain"
)

// Decider produces the routing verdict for a resolved order. The shipped
// implementation is the deterministic rule set; the interface leaves room
// for a reasoning-backed strategy without touching the dispatcher.
type Decider interface {
	Decide(order domain.ResolvedOrder) domain.Decision
}

// RuleDecider is a pure function of the resolved order: no capability
// calls, no clock, no randomness. Conditions are checked in a fixed
// order - credit, stock, match confidence - and the first failing
// category names the verdict.
type RuleDecider struct {
	ConfidenceThreshold float64
}

func NewRuleDecider(confidenceThreshold float64) *RuleDecider {
	return &RuleDecider{ConfidenceThreshold: confidenceThreshold}
}

func (d *RuleDecider) Decide(order domain.ResolvedOrder) domain.Decision {
	available := order.AvailableCredit()
	if order.Totals.Total > available {
		return domain.Decision{
			Status:   domain.StatusUnfulfillable,
			Category: domain.ReasonCredit,
			Reason: fmt.Sprintf(
				"order total EUR %.2f exceeds available credit EUR %.2f (limit %.2f, open exposure %.2f)",
				order.Totals.Total, available, order.CreditLimit, order.OpenExposure),
			Order: order,
		}
	}

	if lines := outOfStockLines(order); len(lines) > 0 {
		return domain.Decision{
			Status:   domain.StatusUnfulfillable,
			Category: domain.ReasonStock,
			Reason:   "insufficient stock: " + strings.Join(lines, "; "),
			Order:    order,
		}
	}

	if lines := lowConfidenceLines(order, d.ConfidenceThreshold); len(lines) > 0 {
		return domain.Decision{
			Status:   domain.StatusUnfulfillable,
			Category: domain.ReasonMatchConfidence,
			Reason:   "could not confidently match: " + strings.Join(lines, "; "),
			Order:    order,
		}
	}

	return domain.Decision{
		Status: domain.StatusFulfillable,
		Reason: fmt.Sprintf("credit ok (EUR %.2f available), all %d lines in stock and confidently matched",
			available, len(order.Lines)),
		Order: order,
	}
}

func outOfStockLines(order domain.ResolvedOrder) []string {
	var lines []string
	for _, l := range order.Lines {
		if l.InStock {
			continue
		}
		if !l.Matched {
			lines = append(lines, fmt.Sprintf("%q (%s)", l.Request.Description, l.MatchReason))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: requested %d, available %d",
			l.MatchedSKU, l.RequestedQty, l.QtyAvailable))
	}
	return lines
}

func lowConfidenceLines(order domain.ResolvedOrder, threshold float64) []string {
	var lines []string
	for _, l := range order.Lines {
		if l.Matched && l.MatchConfidence < threshold {
			lines = append(lines, fmt.Sprintf("%q -> %s (confidence %.2f)",
				l.Request.Description, l.MatchedSKU, l.MatchConfidence))
		}
	}
	return lines
}
