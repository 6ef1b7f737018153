package intel_test

import (
	"context"
	"encoding/json"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"paperco.app/intake/common/llm"
	"paperco.app/intake/internal/domain"
	"paperco.app/intake/internal/intel"
)

// mockLLM decodes a canned JSON payload into the caller's schema type,
// the same way the real client decodes a structured-output completion.
type mockLLM struct {
	payload  string
	err      error
	requests []llm.Request
}

func (m *mockLLM) Chat(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if err := json.Unmarshal([]byte(m.payload), result); err != nil {
		return nil, err
	}
	return &llm.Response{PromptTokens: 10, CompletionTokens: 10}, nil
}

func (m *mockLLM) Model() string { return "mock" }

var orderMessage = domain.Message{
	ID:       "msg-001",
	ThreadID: "thr-001",
	Sender:   "buyer@schmidt-buero.de",
	Subject:  "Order: copy paper",
	Body:     "Please send 50 reams of A4 copy paper 80gsm.",
}

var _ = Describe("Classifier", func() {
	It("classifies an order with the model's verdict", func() {
		client := &mockLLM{payload: `{"is_order": true, "confidence": 0.95, "reason": "explicit product and quantity"}`}
		c := intel.NewClassifier(client)

		classified, err := c.Classify(context.Background(), orderMessage)
		Expect(err).NotTo(HaveOccurred())
		Expect(classified.IsOrder).To(BeTrue())
		Expect(classified.Confidence).To(Equal(0.95))
		Expect(classified.Reason).To(Equal("explicit product and quantity"))
		Expect(classified.Message).To(Equal(orderMessage))
	})

	It("clamps out-of-range confidence into [0,1]", func() {
		client := &mockLLM{payload: `{"is_order": true, "confidence": 1.7, "reason": "sure"}`}
		c := intel.NewClassifier(client)

		classified, err := c.Classify(context.Background(), orderMessage)
		Expect(err).NotTo(HaveOccurred())
		Expect(classified.Confidence).To(Equal(1.0))
	})

	It("fills in a reason when the model omits one", func() {
		client := &mockLLM{payload: `{"is_order": false, "confidence": 0.8, "reason": ""}`}
		c := intel.NewClassifier(client)

		classified, err := c.Classify(context.Background(), orderMessage)
		Expect(err).NotTo(HaveOccurred())
		Expect(classified.Reason).NotTo(BeEmpty())
	})

	It("returns an error on a non-retryable capability failure", func() {
		client := &mockLLM{err: fmt.Errorf("call aborted: %w", context.Canceled)}
		c := intel.NewClassifier(client)

		_, err := c.Classify(context.Background(), orderMessage)
		Expect(err).To(HaveOccurred())
	})

	It("includes sender and body in the prompt", func() {
		client := &mockLLM{payload: `{"is_order": true, "confidence": 0.9, "reason": "ok"}`}
		c := intel.NewClassifier(client)

		_, err := c.Classify(context.Background(), orderMessage)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.requests).To(HaveLen(1))
		Expect(client.requests[0].UserPrompt).To(ContainSubstring("buyer@schmidt-buero.de"))
		Expect(client.requests[0].UserPrompt).To(ContainSubstring("50 reams"))
	})
})

var _ = Describe("Extractor", func() {
	classified := domain.ClassifiedMessage{Message: orderMessage, IsOrder: true, Confidence: 0.95}

	It("extracts customer identity and order lines", func() {
		client := &mockLLM{payload: `{
			"po_number": "PO-2024-0815",
			"customer_name": "Schmidt Bürobedarf",
			"contact_person": "Anna Schmidt",
			"customer_email": "anna@schmidt-buero.de",
			"lines": [
				{"line_ref": "1", "product_code": "PPR-A4-80", "description": "A4 copy paper 80gsm", "quantity": 50, "unit": "ream"},
				{"line_ref": "2", "product_code": "", "description": "envelopes DIN C4", "quantity": 100, "unit": "box"}
			],
			"notes": "deliver to loading dock"
		}`}
		e := intel.NewExtractor(client)

		extracted, err := e.Extract(context.Background(), classified)
		Expect(err).NotTo(HaveOccurred())
		Expect(extracted.MessageID).To(Equal("msg-001"))
		Expect(extracted.PONumber).To(Equal("PO-2024-0815"))
		Expect(extracted.CustomerName).To(Equal("Schmidt Bürobedarf"))
		Expect(extracted.Lines).To(HaveLen(2))
		Expect(extracted.Lines[0].SKUHint).To(Equal("PPR-A4-80"))
		Expect(extracted.Lines[0].Quantity).To(Equal(50))
		Expect(extracted.Lines[1].SKUHint).To(BeEmpty())
	})

	It("drops lines with non-positive quantity or empty description", func() {
		client := &mockLLM{payload: `{
			"po_number": "", "customer_name": "", "contact_person": "", "customer_email": "",
			"lines": [
				{"line_ref": "", "product_code": "", "description": "good line", "quantity": 5, "unit": ""},
				{"line_ref": "", "product_code": "", "description": "zero qty", "quantity": 0, "unit": ""},
				{"line_ref": "", "product_code": "", "description": "", "quantity": 3, "unit": ""}
			],
			"notes": ""
		}`}
		e := intel.NewExtractor(client)

		extracted, err := e.Extract(context.Background(), classified)
		Expect(err).NotTo(HaveOccurred())
		Expect(extracted.Lines).To(HaveLen(1))
		Expect(extracted.Lines[0].Description).To(Equal("good line"))
	})

	It("returns ErrEmptyExtraction when no usable lines remain", func() {
		client := &mockLLM{payload: `{
			"po_number": "", "customer_name": "", "contact_person": "", "customer_email": "",
			"lines": [{"line_ref": "", "product_code": "", "description": "", "quantity": -2, "unit": ""}],
			"notes": ""
		}`}
		e := intel.NewExtractor(client)

		_, err := e.Extract(context.Background(), classified)
		Expect(err).To(MatchError(intel.ErrEmptyExtraction))
	})
})
