package matching

import (
	"context"
	"sort"
)

// CustomerHint carries whatever identity fields extraction produced.
// Empty fields are simply left out of the search.
type CustomerHint struct {
	Name          string
	ContactPerson string
	Email         string
}

// ProductHint carries the free-text description of an order line plus an
// optional SKU the customer quoted.
type ProductHint struct {
	Description string
	SKUHint     string
	Unit        string
}

// CustomerCandidate is a ranked customer match.
type CustomerCandidate struct {
	CustomerID string
	Name       string
	Email      string
	Score      float64 // similarity in [0,1]
}

// ProductCandidate is a ranked catalog match for one order line, carrying
// the catalog data Resolve needs to price the line.
type ProductCandidate struct {
	SKU          string
	Name         string
	Unit         string
	UnitPrice    float64
	QtyAvailable int
	Score        float64 // similarity in [0,1]
}

// Matcher is the semantic matching capability. Candidate slices come back
// sorted by descending score; an empty slice means nothing matched at all.
type Matcher interface {
	MatchCustomer(ctx context.Context, hint CustomerHint) ([]CustomerCandidate, error)
	MatchProduct(ctx context.Context, hint ProductHint) ([]ProductCandidate, error)
}

func sortCustomers(cands []CustomerCandidate) {
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
}

func sortProducts(cands []ProductCandidate) {
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
}
