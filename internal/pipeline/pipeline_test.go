package pipeline_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"paperco.app/intake/common/id"
	"paperco.app/intake/core/config"
	"paperco.app/intake/internal/approval"
	"paperco.app/intake/internal/domain"
	"paperco.app/intake/internal/intel"
	"paperco.app/intake/internal/matching"
	"paperco.app/intake/internal/pipeline"
	"paperco.app/intake/internal/store"
)

const (
	triageOrder    = `{"is_order": true, "confidence": 0.95, "reason": "explicit order"}`
	triageNotOrder = `{"is_order": false, "confidence": 0.9, "reason": "newsletter"}`

	extractTwoLines = `{
		"po_number": "PO-2024-0815",
		"customer_name": "Schmidt Bürobedarf",
		"contact_person": "Anna Schmidt",
		"customer_email": "anna@schmidt-buero.de",
		"lines": [
			{"line_ref": "1", "product_code": "", "description": "A4 copy paper", "quantity": 50, "unit": "ream"},
			{"line_ref": "2", "product_code": "", "description": "C4 envelopes", "quantity": 100, "unit": "box"}
		],
		"notes": ""
	}`
	extractNoLines = `{
		"po_number": "", "customer_name": "", "contact_person": "", "customer_email": "",
		"lines": [], "notes": ""
	}`
)

var _ = Describe("Pipeline", func() {
	var (
		llmClient  *mockLLM
		matcher    *mockMatcher
		records    *mockRecordStore
		mail       *mockMail
		docs       *mockRenderer
		gateTrans  *mockApprovalTransport
		notifier   *recordingNotifier
		p          *pipeline.Pipeline
		msg        domain.Message
	)

	BeforeEach(func() {
		Expect(id.Init(9)).To(Succeed())

		llmClient = &mockLLM{triagePayload: triageOrder, extractPayload: extractTwoLines}
		matcher = &mockMatcher{
			customers: []matching.CustomerCandidate{
				{CustomerID: "C-100", Name: "Schmidt Bürobedarf", Score: 0.92},
			},
			products: map[string][]matching.ProductCandidate{
				"A4 copy paper": {{SKU: "PPR-A4-80", Name: "A4 Copy Paper 80gsm", Unit: "ream", UnitPrice: 12.50, QtyAvailable: 300, Score: 0.95}},
				"C4 envelopes":  {{SKU: "ENV-C4", Name: "Envelopes DIN C4", Unit: "box", UnitPrice: 4.00, QtyAvailable: 500, Score: 0.88}},
			},
		}
		records = newMockRecordStore()
		records.profiles["C-100"] = &store.CreditProfile{
			CustomerID: "C-100", Name: "Schmidt Bürobedarf", CreditLimit: 5000, OpenExposure: 0,
		}
		mail = &mockMail{}
		docs = &mockRenderer{}
		gateTrans = &mockApprovalTransport{verdict: approval.VerdictApproved}
		notifier = &recordingNotifier{}

		matchCfg := config.MatchingConfig{ConfidenceThreshold: 0.75, CustomerThreshold: 0.6, MaxCandidates: 5}
		pricing := config.PricingConfig{TaxRate: 0.19, FlatShipping: 25.00}
		credit := config.CreditConfig{DefaultLimit: 2500.00}

		gate := approval.NewGate(gateTrans, 200*time.Millisecond, 5*time.Millisecond)
		p = pipeline.New(
			intel.NewClassifier(llmClient),
			intel.NewExtractor(llmClient),
			pipeline.NewResolver(matcher, records, matchCfg, pricing, credit),
			pipeline.NewRuleDecider(matchCfg.ConfidenceThreshold),
			pipeline.NewFulfiller(docs, gate, &mockTxRunner{records: records}, mail, notifier),
			pipeline.NewRejecter(mail),
		)

		msg = domain.Message{
			ID:       "msg-001",
			ThreadID: "thr-001",
			Sender:   "anna@schmidt-buero.de",
			Subject:  "Order",
			Body:     "50 reams A4 copy paper, 100 boxes C4 envelopes",
		}
	})

	Describe("fulfillable order with approval", func() {
		It("persists the order, confirms to the customer and notifies operations", func() {
			outcome, err := p.Run(context.Background(), msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Kind).To(Equal(domain.OutcomeFulfilled))
			Expect(outcome.Fulfillment).NotTo(BeNil())
			Expect(outcome.Fulfillment.Approval).To(Equal(domain.ApprovalApproved))
			Expect(outcome.Fulfillment.NeedsManualFollowUp).To(BeFalse())

			// 50*12.50 + 100*4.00 = 1025, +19% VAT +25 shipping = 1244.75
			Expect(records.persistedOrders).To(HaveLen(1))
			rec := records.persistedOrders[0]
			Expect(rec.MessageID).To(Equal("msg-001"))
			Expect(rec.Totals.Total).To(BeNumerically("~", 1244.75, 0.001))
			Expect(rec.Lines).To(HaveLen(2))

			Expect(records.reserved).To(ConsistOf("PPR-A4-80:50", "ENV-C4:100"))
			Expect(records.exposures).To(HaveLen(1))
			Expect(records.exposures[0]).To(Equal("C-100:1244.75"))

			Expect(mail.replies).To(HaveLen(1))
			Expect(mail.replies[0].ThreadID).To(Equal("thr-001"))
			Expect(mail.replies[0].Attachment).To(ContainSubstring("INV-"))

			Expect(gateTrans.requests).To(HaveLen(1))
			Expect(gateTrans.requests[0]).To(ContainSubstring("1244.75"))

			Expect(notifier.events).To(HaveLen(1))
			Expect(notifier.events[0].Kind).To(Equal("order_fulfilled"))
		})

		It("skips all writes on replay of an already fulfilled message", func() {
			records.persistInsert = false

			outcome, err := p.Run(context.Background(), msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Kind).To(Equal(domain.OutcomeFulfilled))

			Expect(records.persistedOrders).To(BeEmpty())
			Expect(records.reserved).To(BeEmpty())
			Expect(records.exposures).To(BeEmpty())
			// The customer still gets the confirmation for the replayed run.
			Expect(mail.replies).To(HaveLen(1))
		})

		It("flags the order when the confirmation reply fails", func() {
			mail.replyErr = errors.New("smtp bridge down")

			outcome, err := p.Run(context.Background(), msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Kind).To(Equal(domain.OutcomeFulfilled))
			Expect(outcome.Fulfillment.NeedsManualFollowUp).To(BeTrue())
			Expect(records.flagged).To(HaveLen(1))
		})

		It("suppresses the confirmation when the write transaction fails", func() {
			records.reserveErr = store.ErrInsufficientStock

			outcome, err := p.Run(context.Background(), msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Kind).To(Equal(domain.OutcomeFulfilled))
			Expect(outcome.Fulfillment.NeedsManualFollowUp).To(BeTrue())

			Expect(mail.replies).To(BeEmpty())
			Expect(notifier.events).To(HaveLen(1))
			Expect(notifier.events[0].Kind).To(Equal("order_needs_follow_up"))
		})

		It("retries the run when the renderer is down, before any approval request", func() {
			docs.err = errors.New("renderer unavailable")

			_, err := p.Run(context.Background(), msg)
			Expect(err).To(HaveOccurred())
			Expect(pipeline.IsRetryable(err)).To(BeTrue())
			Expect(gateTrans.requests).To(BeEmpty())
			Expect(records.writeCount()).To(BeZero())
		})
	})

	Describe("approval gate denial", func() {
		It("denies without messaging the customer or touching the store", func() {
			gateTrans.verdict = approval.VerdictDenied

			outcome, err := p.Run(context.Background(), msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Kind).To(Equal(domain.OutcomeDenied))

			Expect(records.writeCount()).To(BeZero())
			Expect(mail.replies).To(BeEmpty())
			Expect(notifier.events).To(BeEmpty())
		})

		It("treats a silent gate as a denial once the timeout passes", func() {
			gateTrans.verdict = approval.VerdictPending

			outcome, err := p.Run(context.Background(), msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Kind).To(Equal(domain.OutcomeDenied))
			Expect(records.writeCount()).To(BeZero())
		})
	})

	Describe("unfulfillable order", func() {
		It("rejects over credit with an explanation and no store writes", func() {
			records.profiles["C-100"].CreditLimit = 5000
			records.profiles["C-100"].OpenExposure = 4800

			outcome, err := p.Run(context.Background(), msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Kind).To(Equal(domain.OutcomeRejected))
			Expect(outcome.Rejection).NotTo(BeNil())
			Expect(outcome.Rejection.Explanation).To(ContainSubstring("credit"))

			Expect(records.writeCount()).To(BeZero())
			Expect(gateTrans.requests).To(BeEmpty())
			Expect(notifier.events).To(BeEmpty())
			Expect(mail.replies).To(HaveLen(1))
			Expect(mail.replies[0].Attachment).To(BeEmpty())
		})

		It("rejects when a line cannot be matched in the catalog", func() {
			matcher.products["C4 envelopes"] = nil

			outcome, err := p.Run(context.Background(), msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Kind).To(Equal(domain.OutcomeRejected))
			Expect(records.writeCount()).To(BeZero())
		})

		It("returns a retryable error when the rejection reply cannot be sent", func() {
			records.profiles["C-100"].OpenExposure = 4800
			mail.replyErr = errors.New("bridge down")

			_, err := p.Run(context.Background(), msg)
			Expect(err).To(HaveOccurred())
			Expect(pipeline.IsRetryable(err)).To(BeTrue())
		})
	})

	Describe("non-order messages", func() {
		It("skips without extracting or replying", func() {
			llmClient.triagePayload = triageNotOrder

			outcome, err := p.Run(context.Background(), msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Kind).To(Equal(domain.OutcomeSkipped))

			Expect(mail.replies).To(BeEmpty())
			Expect(records.writeCount()).To(BeZero())
		})
	})

	Describe("capability failures", func() {
		It("aborts with a retryable error when classification is down", func() {
			llmClient.triageErr = context.Canceled

			_, err := p.Run(context.Background(), msg)
			Expect(err).To(HaveOccurred())
			Expect(pipeline.IsRetryable(err)).To(BeTrue())
		})

		It("rejects as a parse failure when no lines can be extracted", func() {
			llmClient.extractPayload = extractNoLines

			outcome, err := p.Run(context.Background(), msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Kind).To(Equal(domain.OutcomeRejected))
			Expect(outcome.Rejection.Explanation).To(ContainSubstring("could not reliably read"))
			Expect(records.writeCount()).To(BeZero())
		})
	})

	Describe("customer resolution", func() {
		It("creates a new customer with the default credit limit when nothing matches", func() {
			matcher.customers = nil

			outcome, err := p.Run(context.Background(), msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Kind).To(Equal(domain.OutcomeFulfilled))

			Expect(records.created).To(HaveLen(1))
			Expect(records.created[0].Name).To(Equal("Schmidt Bürobedarf"))
			Expect(records.created[0].CreditLimit).To(Equal(2500.00))
		})

		It("aborts retryably when the matching service is down", func() {
			matcher.customerErr = errors.New("typesense unreachable")

			_, err := p.Run(context.Background(), msg)
			Expect(err).To(HaveOccurred())
			Expect(pipeline.IsRetryable(err)).To(BeTrue())
		})
	})
})
