package domain

// ResolvedLine is an order line after catalog matching. A line that could
// not be matched (capability error, nothing above zero score) keeps
// Matched=false and is treated as out of stock downstream.
type ResolvedLine struct {
	Request LineRequest

	MatchedSKU      string
	ProductName     string
	Unit            string
	UnitPrice       float64 // >= 0
	QtyAvailable    int
	RequestedQty    int
	MatchConfidence float64 // in [0,1]
	MatchReason     string
	Matched         bool

	// Derived. Set once by FinishLine, never recomputed downstream.
	Subtotal float64
	InStock  bool
}

// Totals are the derived order amounts. Pure function of the lines and
// the configured rates.
type Totals struct {
	Subtotal float64
	Tax      float64
	Shipping float64
	Total    float64
}

// ResolvedOrder is a priced, matched order with the customer's credit
// position attached. All numeric fields are functions of the lines and
// rates; nothing downstream recomputes them.
type ResolvedOrder struct {
	MessageID    string
	ThreadID     string
	PONumber     string
	CustomerID   string
	CustomerName string
	NewCustomer  bool // created during this run with default credit terms

	CreditLimit  float64
	OpenExposure float64

	Lines   []ResolvedLine
	TaxRate float64
	Totals  Totals
}

// AvailableCredit is the customer's credit limit minus current open exposure.
func (o ResolvedOrder) AvailableCredit() float64 {
	return o.CreditLimit - o.OpenExposure
}

// FinishLine fills the derived fields of a resolved line: the line
// subtotal and whether the requested quantity is actually available.
func FinishLine(l ResolvedLine) ResolvedLine {
	l.Subtotal = float64(l.RequestedQty) * l.UnitPrice
	l.InStock = l.Matched && l.QtyAvailable >= l.RequestedQty
	return l
}

// ComputeTotals derives the order amounts from finished lines:
// subtotal = sum of line subtotals, tax = subtotal * taxRate,
// total = subtotal + tax + shipping.
func ComputeTotals(lines []ResolvedLine, taxRate, shipping float64) Totals {
	var subtotal float64
	for _, l := range lines {
		subtotal += l.Subtotal
	}
	tax := subtotal * taxRate
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal + tax + shipping,
	}
}
