package intel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"paperco.app/intake/common/llm"
	"paperco.app/intake/common/logger"
	"paperco.app/intake/internal/domain"
)

// ErrEmptyExtraction signals that the capability returned no usable line
// items. The pipeline routes this to Reject with a parse-failure reason
// rather than treating it as a transient error.
var ErrEmptyExtraction = errors.New("extraction produced no order lines")

type extractedLine struct {
	LineRef     string `json:"line_ref" jsonschema_description:"Stable identifier for this line if the email provides one, else empty"`
	ProductCode string `json:"product_code" jsonschema_description:"Product SKU from the email if stated, else empty. Never invent one"`
	Description string `json:"description" jsonschema_description:"Product description as written in the email"`
	Quantity    int    `json:"quantity" jsonschema_description:"Quantity ordered, must be a positive integer"`
	Unit        string `json:"unit" jsonschema_description:"Unit of measure (ream, box, pallet, case) if stated, else empty"`
}

type extractionResponse struct {
	PONumber      string          `json:"po_number" jsonschema_description:"PO number or reference if stated, else empty"`
	CustomerName  string          `json:"customer_name" jsonschema_description:"Company name if stated, else empty"`
	ContactPerson string          `json:"contact_person" jsonschema_description:"Contact person name if stated, else empty"`
	CustomerEmail string          `json:"customer_email" jsonschema_description:"Customer email address if stated, else empty"`
	Lines         []extractedLine `json:"lines" jsonschema_description:"All order lines found in the email"`
	Notes         string          `json:"notes" jsonschema_description:"Special instructions or delivery notes, else empty"`
}

var extractionSchema = llm.GenerateSchema[extractionResponse]()

const extractorSystemPrompt = `You extract structured purchase order data from
emails for a paper wholesaler. Pull out the customer identity and every
ordered line (description, quantity, unit, product code). Copy values as
written. Leave any field you cannot find empty - never guess or fabricate.`

// Extractor wraps the extraction capability. Unknown fields come back
// empty, never fabricated; zero usable lines is ErrEmptyExtraction.
type Extractor struct {
	llm llm.Client
}

func NewExtractor(client llm.Client) *Extractor {
	return &Extractor{llm: client}
}

func (e *Extractor) Extract(ctx context.Context, classified domain.ClassifiedMessage) (domain.ExtractedOrder, error) {
	msg := classified.Message
	prompt := buildMessagePrompt(msg)

	var response extractionResponse
	var err error

	for attempt := 0; attempt < 3; attempt++ {
		_, err = e.llm.Chat(ctx, llm.Request{
			SystemPrompt: extractorSystemPrompt,
			UserPrompt:   prompt,
			SchemaName:   "purchase_order",
			Schema:       extractionSchema,
			MaxTokens:    2000,
			Temperature:  llm.Temp(0.0),
		}, &response)

		if err == nil {
			break
		}
		if !llm.IsRetryable(ctx, err) {
			return domain.ExtractedOrder{}, fmt.Errorf("extract: %w", err)
		}
		slog.WarnContext(ctx, "extract retry",
			"attempt", attempt+1,
			"error", err)
		time.Sleep(time.Duration(1<<attempt) * time.Second)
	}
	if err != nil {
		return domain.ExtractedOrder{}, fmt.Errorf("extract after 3 attempts: %w", err)
	}

	lines := make([]domain.LineRequest, 0, len(response.Lines))
	for _, l := range response.Lines {
		// Non-positive quantities are extraction noise, not orders for
		// nothing; drop the line instead of carrying an invalid entity.
		if l.Quantity <= 0 || l.Description == "" {
			slog.WarnContext(ctx, "dropping unusable extracted line",
				"description", logger.Truncate(l.Description, 60),
				"quantity", l.Quantity)
			continue
		}
		lines = append(lines, domain.LineRequest{
			LineRef:     l.LineRef,
			SKUHint:     l.ProductCode,
			Description: l.Description,
			Quantity:    l.Quantity,
			Unit:        l.Unit,
		})
	}

	if len(lines) == 0 {
		return domain.ExtractedOrder{}, ErrEmptyExtraction
	}

	slog.InfoContext(ctx, "order extracted",
		"po_number", response.PONumber,
		"customer", response.CustomerName,
		"line_count", len(lines))

	return domain.ExtractedOrder{
		MessageID:     msg.ID,
		PONumber:      response.PONumber,
		CustomerName:  response.CustomerName,
		ContactPerson: response.ContactPerson,
		CustomerEmail: response.CustomerEmail,
		Lines:         lines,
		Notes:         response.Notes,
	}, nil
}
