package matching

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"

	"paperco.app/intake/core/config"
)

// TypesenseMatcher runs similarity search against the products and
// customers collections kept in sync from the record store.
type TypesenseMatcher struct {
	client *typesense.Client
	cfg    config.TypesenseConfig
	limit  int
}

func NewTypesenseMatcher(cfg config.TypesenseConfig, maxCandidates int) *TypesenseMatcher {
	if maxCandidates <= 0 {
		maxCandidates = 5
	}
	return &TypesenseMatcher{
		client: typesense.NewClient(
			typesense.WithServer(cfg.URL),
			typesense.WithAPIKey(cfg.APIKey),
		),
		cfg:   cfg,
		limit: maxCandidates,
	}
}

func (m *TypesenseMatcher) MatchCustomer(ctx context.Context, hint CustomerHint) ([]CustomerCandidate, error) {
	query := joinNonEmpty(hint.Name, hint.ContactPerson, hint.Email)
	if query == "" {
		return nil, nil
	}

	result, err := m.client.Collection(m.cfg.CustomerCollection).Documents().Search(ctx, &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String("name,contact_person,email"),
		PerPage: pointer.Int(m.limit),
	})
	if err != nil {
		return nil, fmt.Errorf("customer search: %w", err)
	}

	var candidates []CustomerCandidate
	if result.Hits != nil {
		for rank, hit := range *result.Hits {
			doc := docOf(hit)
			candidates = append(candidates, CustomerCandidate{
				CustomerID: docString(doc, "id"),
				Name:       docString(doc, "name"),
				Email:      docString(doc, "email"),
				Score:      hitScore(hit, rank),
			})
		}
	}
	sortCustomers(candidates)

	slog.DebugContext(ctx, "customer candidates",
		"query", query,
		"count", len(candidates))
	return candidates, nil
}

func (m *TypesenseMatcher) MatchProduct(ctx context.Context, hint ProductHint) ([]ProductCandidate, error) {
	query := joinNonEmpty(hint.SKUHint, hint.Description)
	if query == "" {
		return nil, nil
	}

	result, err := m.client.Collection(m.cfg.ProductCollection).Documents().Search(ctx, &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String("sku,name,description"),
		PerPage: pointer.Int(m.limit),
	})
	if err != nil {
		return nil, fmt.Errorf("product search: %w", err)
	}

	var candidates []ProductCandidate
	if result.Hits != nil {
		for rank, hit := range *result.Hits {
			doc := docOf(hit)
			candidates = append(candidates, ProductCandidate{
				SKU:          docString(doc, "sku"),
				Name:         docString(doc, "name"),
				Unit:         docString(doc, "unit"),
				UnitPrice:    docFloat(doc, "unit_price"),
				QtyAvailable: int(docFloat(doc, "qty_available")),
				Score:        hitScore(hit, rank),
			})
		}
	}
	sortProducts(candidates)

	slog.DebugContext(ctx, "product candidates",
		"query", query,
		"count", len(candidates))
	return candidates, nil
}

// hitScore normalizes a search hit into [0,1]. Collections with embeddings
// report a cosine vector distance; keyword-only collections don't, so fall
// back to a rank-derived score that preserves ordering.
func hitScore(hit api.SearchResultHit, rank int) float64 {
	if hit.VectorDistance != nil {
		score := 1 - float64(*hit.VectorDistance)/2
		if score < 0 {
			return 0
		}
		if score > 1 {
			return 1
		}
		return score
	}
	score := 1.0 - 0.15*float64(rank)
	if score < 0 {
		return 0
	}
	return score
}

func docOf(hit api.SearchResultHit) map[string]interface{} {
	if hit.Document == nil {
		return nil
	}
	return *hit.Document
}

func docString(doc map[string]interface{}, key string) string {
	if doc == nil {
		return ""
	}
	if s, ok := doc[key].(string); ok {
		return s
	}
	return ""
}

func docFloat(doc map[string]interface{}, key string) float64 {
	if doc == nil {
		return 0
	}
	switch v := doc[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
