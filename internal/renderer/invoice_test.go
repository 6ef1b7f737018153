package renderer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"paperco.app/intake/core/config"
	"paperco.app/intake/internal/domain"
)

func testOrder() domain.ResolvedOrder {
	lines := []domain.ResolvedLine{
		domain.FinishLine(domain.ResolvedLine{
			Request:      domain.LineRequest{Description: "A4 copy paper", Quantity: 50},
			Matched:      true,
			MatchedSKU:   "PPR-A4-80",
			ProductName:  "A4 Copy Paper 80gsm",
			RequestedQty: 50,
			UnitPrice:    12.50,
			QtyAvailable: 300,
		}),
	}
	return domain.ResolvedOrder{
		PONumber:     "PO-2024-0815",
		CustomerName: "Schmidt Bürobedarf",
		Lines:        lines,
		TaxRate:      0.19,
		Totals:       domain.ComputeTotals(lines, 0.19, 25.00),
	}
}

func TestInvoiceRender(t *testing.T) {
	dir := t.TempDir()
	r, err := NewInvoiceRenderer(config.RendererConfig{
		OutputDir: dir,
		BaseURL:   "https://docs.paperco.test/invoices",
	})
	if err != nil {
		t.Fatalf("NewInvoiceRenderer: %v", err)
	}

	ref, err := r.Render(context.Background(), testOrder(), 424242)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if ref != "https://docs.paperco.test/invoices/INV-424242.html" {
		t.Errorf("ref = %q", ref)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "INV-424242.html"))
	if err != nil {
		t.Fatalf("reading rendered invoice: %v", err)
	}
	html := string(raw)
	for _, want := range []string{"INV-424242", "PO-2024-0815", "Schmidt Bürobedarf", "PPR-A4-80", "625.00", "768.75"} {
		if !strings.Contains(html, want) {
			t.Errorf("invoice missing %q", want)
		}
	}
}

func TestInvoiceRenderIsStablePerOrder(t *testing.T) {
	dir := t.TempDir()
	r, err := NewInvoiceRenderer(config.RendererConfig{OutputDir: dir, BaseURL: "file://invoices"})
	if err != nil {
		t.Fatalf("NewInvoiceRenderer: %v", err)
	}

	first, err := r.Render(context.Background(), testOrder(), 7)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := r.Render(context.Background(), testOrder(), 7)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if first != second {
		t.Errorf("re-render produced a different reference: %q vs %q", first, second)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("re-render must overwrite, found %d files", len(entries))
	}
}
