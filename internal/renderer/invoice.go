package renderer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"

	"paperco.app/intake/core/config"
	"paperco.app/intake/internal/domain"
)

// InvoiceRenderer renders an HTML invoice document and returns its
// reference. The document number is derived from the order id, so
// re-rendering the same order overwrites the same file rather than
// producing duplicates.
type InvoiceRenderer struct {
	cfg  config.RendererConfig
	tmpl *template.Template
}

func NewInvoiceRenderer(cfg config.RendererConfig) (*InvoiceRenderer, error) {
	tmpl, err := template.New("invoice").Parse(invoiceTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing invoice template: %w", err)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating invoice output dir: %w", err)
	}
	return &InvoiceRenderer{cfg: cfg, tmpl: tmpl}, nil
}

type invoiceContext struct {
	InvoiceNo    string
	PONumber     string
	CustomerName string
	Lines        []domain.ResolvedLine
	Totals       domain.Totals
	TaxPercent   float64
}

func (r *InvoiceRenderer) Render(ctx context.Context, order domain.ResolvedOrder, orderID int64) (string, error) {
	invoiceNo := fmt.Sprintf("INV-%d", orderID)

	var buf bytes.Buffer
	err := r.tmpl.Execute(&buf, invoiceContext{
		InvoiceNo:    invoiceNo,
		PONumber:     order.PONumber,
		CustomerName: order.CustomerName,
		Lines:        order.Lines,
		Totals:       order.Totals,
		TaxPercent:   order.TaxRate * 100,
	})
	if err != nil {
		return "", fmt.Errorf("rendering invoice: %w", err)
	}

	filename := invoiceNo + ".html"
	path := filepath.Join(r.cfg.OutputDir, filename)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing invoice: %w", err)
	}

	ref := r.cfg.BaseURL + "/" + filename
	slog.InfoContext(ctx, "invoice rendered",
		"invoice_no", invoiceNo,
		"reference", ref)
	return ref, nil
}

const invoiceTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.InvoiceNo}}</title></head>
<body>
  <h1>Invoice {{.InvoiceNo}}</h1>
  {{if .PONumber}}<p>Your reference: {{.PONumber}}</p>{{end}}
  <p>Billed to: {{.CustomerName}}</p>
  <table border="1" cellpadding="4">
    <tr><th>SKU</th><th>Description</th><th>Qty</th><th>Unit price</th><th>Subtotal</th></tr>
    {{range .Lines}}
    <tr>
      <td>{{.MatchedSKU}}</td>
      <td>{{.ProductName}}</td>
      <td>{{.RequestedQty}}</td>
      <td>EUR {{printf "%.2f" .UnitPrice}}</td>
      <td>EUR {{printf "%.2f" .Subtotal}}</td>
    </tr>
    {{end}}
  </table>
  <p>Subtotal: EUR {{printf "%.2f" .Totals.Subtotal}}</p>
  <p>VAT ({{printf "%.0f" .TaxPercent}}%): EUR {{printf "%.2f" .Totals.Tax}}</p>
  <p>Shipping: EUR {{printf "%.2f" .Totals.Shipping}}</p>
  <p><strong>Total: EUR {{printf "%.2f" .Totals.Total}}</strong></p>
</body>
</html>
`
