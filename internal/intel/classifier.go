package intel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"paperco.app/intake/common/llm"
	"paperco.app/intake/internal/domain"
)

type triageResponse struct {
	IsOrder    bool    `json:"is_order" jsonschema_description:"True if the email is a purchase order"`
	Confidence float64 `json:"confidence" jsonschema_description:"Classification confidence 0.0-1.0"`
	Reason     string  `json:"reason" jsonschema_description:"Brief classification explanation"`
}

var triageSchema = llm.GenerateSchema[triageResponse]()

const classifierSystemPrompt = `You triage inbound emails for a paper wholesaler.
Decide whether the email is a purchase order: a request to buy specific
products in specific quantities. Newsletters, invoices we receive, supplier
offers, complaints and general enquiries are not purchase orders.
Always give a short reason for the verdict.`

// Classifier wraps the non-deterministic classification capability.
// Everything downstream of it is testable with fixed fixtures.
type Classifier struct {
	llm llm.Client
}

func NewClassifier(client llm.Client) *Classifier {
	return &Classifier{llm: client}
}

// Classify returns a verdict for the message. The verdict always carries a
// non-empty reason; a capability failure is returned as an error so the
// caller can park the message instead of marking it processed.
func (c *Classifier) Classify(ctx context.Context, msg domain.Message) (domain.ClassifiedMessage, error) {
	prompt := buildMessagePrompt(msg)

	var response triageResponse
	var err error

	// Retry with exponential backoff (1s, 2s, 4s) to ride out transient
	// rate limits before giving the message up for manual review.
	for attempt := 0; attempt < 3; attempt++ {
		_, err = c.llm.Chat(ctx, llm.Request{
			SystemPrompt: classifierSystemPrompt,
			UserPrompt:   prompt,
			SchemaName:   "triage_result",
			Schema:       triageSchema,
			Temperature:  llm.Temp(0.0),
		}, &response)

		if err == nil {
			break
		}
		if !llm.IsRetryable(ctx, err) {
			return domain.ClassifiedMessage{}, fmt.Errorf("classify: %w", err)
		}
		slog.WarnContext(ctx, "classify retry",
			"attempt", attempt+1,
			"error", err)
		time.Sleep(time.Duration(1<<attempt) * time.Second)
	}
	if err != nil {
		return domain.ClassifiedMessage{}, fmt.Errorf("classify after 3 attempts: %w", err)
	}

	if response.Confidence < 0 {
		response.Confidence = 0
	}
	if response.Confidence > 1 {
		response.Confidence = 1
	}
	if response.Reason == "" {
		response.Reason = "no reason given by classifier"
	}

	slog.InfoContext(ctx, "message classified",
		"is_order", response.IsOrder,
		"confidence", response.Confidence,
		"reason", response.Reason)

	return domain.ClassifiedMessage{
		Message:    msg,
		IsOrder:    response.IsOrder,
		Confidence: response.Confidence,
		Reason:     response.Reason,
	}, nil
}

func buildMessagePrompt(msg domain.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", msg.Sender)
	if msg.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	}
	b.WriteString("\n")
	b.WriteString(msg.Body)
	return b.String()
}
