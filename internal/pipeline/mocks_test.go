package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"paperco.app/intake/common/llm"
	"paperco.app/intake/internal/approval"
	"paperco.app/intake/internal/domain"
	"paperco.app/intake/internal/matching"
	"paperco.app/intake/internal/notify"
	"paperco.app/intake/internal/store"
)

// mockLLM answers classify and extract calls with canned JSON payloads,
// keyed by schema name the way the pipeline's stages request them.
type mockLLM struct {
	triagePayload  string
	extractPayload string
	triageErr      error
	extractErr     error
}

func (m *mockLLM) Chat(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
	switch req.SchemaName {
	case "triage_result":
		if m.triageErr != nil {
			return nil, m.triageErr
		}
		return &llm.Response{}, json.Unmarshal([]byte(m.triagePayload), result)
	case "purchase_order":
		if m.extractErr != nil {
			return nil, m.extractErr
		}
		return &llm.Response{}, json.Unmarshal([]byte(m.extractPayload), result)
	default:
		return nil, fmt.Errorf("unexpected schema %q", req.SchemaName)
	}
}

func (m *mockLLM) Model() string { return "mock" }

type mockMatcher struct {
	customers   []matching.CustomerCandidate
	products    map[string][]matching.ProductCandidate // keyed by description
	customerErr error
	productErr  error
}

func (m *mockMatcher) MatchCustomer(context.Context, matching.CustomerHint) ([]matching.CustomerCandidate, error) {
	if m.customerErr != nil {
		return nil, m.customerErr
	}
	return m.customers, nil
}

func (m *mockMatcher) MatchProduct(_ context.Context, hint matching.ProductHint) ([]matching.ProductCandidate, error) {
	if m.productErr != nil {
		return nil, m.productErr
	}
	return m.products[hint.Description], nil
}

// mockRecordStore records every write so specs can assert on exactly what
// was (or was not) persisted.
type mockRecordStore struct {
	mu sync.Mutex

	profiles map[string]*store.CreditProfile

	created         []store.NewCustomer
	reserved        []string // "SKU:qty"
	exposures       []string // "customer:amount"
	persistedOrders []store.OrderRecord
	flagged         []int64

	persistInsert bool // PersistOrder return value
	persistErr    error
	reserveErr    error
	exposureErr   error
}

func newMockRecordStore() *mockRecordStore {
	return &mockRecordStore{
		profiles:      map[string]*store.CreditProfile{},
		persistInsert: true,
	}
}

func (m *mockRecordStore) GetCreditProfile(_ context.Context, customerID string) (*store.CreditProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (m *mockRecordStore) CreateCustomer(_ context.Context, fields store.NewCustomer) (*store.CreditProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, fields)
	p := &store.CreditProfile{
		CustomerID:  fmt.Sprintf("C-new-%d", len(m.created)),
		Name:        fields.Name,
		CreditLimit: fields.CreditLimit,
	}
	m.profiles[p.CustomerID] = p
	return p, nil
}

func (m *mockRecordStore) ReserveInventory(_ context.Context, sku string, qty int) error {
	if m.reserveErr != nil {
		return m.reserveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserved = append(m.reserved, fmt.Sprintf("%s:%d", sku, qty))
	return nil
}

func (m *mockRecordStore) IncreaseExposure(_ context.Context, customerID string, amount float64) error {
	if m.exposureErr != nil {
		return m.exposureErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exposures = append(m.exposures, fmt.Sprintf("%s:%.2f", customerID, amount))
	return nil
}

func (m *mockRecordStore) PersistOrder(_ context.Context, rec store.OrderRecord) (bool, error) {
	if m.persistErr != nil {
		return false, m.persistErr
	}
	if !m.persistInsert {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistedOrders = append(m.persistedOrders, rec)
	return true, nil
}

func (m *mockRecordStore) FlagManualFollowUp(_ context.Context, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flagged = append(m.flagged, orderID)
	return nil
}

func (m *mockRecordStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reserved) + len(m.exposures) + len(m.persistedOrders) + len(m.flagged)
}

type mockTxRunner struct {
	records *mockRecordStore
}

func (m *mockTxRunner) WithStore(_ context.Context, fn func(store.RecordStore) error) error {
	return fn(m.records)
}

type sentReply struct {
	ThreadID   string
	Body       string
	Attachment string
}

type mockMail struct {
	replies   []sentReply
	replyErr  error
	processed []string
	reviewed  []string
}

func (m *mockMail) Next(context.Context) (*domain.Message, error) { return nil, nil }

func (m *mockMail) Reply(_ context.Context, threadID, body, attachment string) error {
	if m.replyErr != nil {
		return m.replyErr
	}
	m.replies = append(m.replies, sentReply{ThreadID: threadID, Body: body, Attachment: attachment})
	return nil
}

func (m *mockMail) MarkProcessed(_ context.Context, id string) error {
	m.processed = append(m.processed, id)
	return nil
}

func (m *mockMail) MarkForReview(_ context.Context, msg domain.Message, reason string) error {
	m.reviewed = append(m.reviewed, msg.ID+": "+reason)
	return nil
}

type mockRenderer struct {
	err   error
	calls int
}

func (m *mockRenderer) Render(_ context.Context, _ domain.ResolvedOrder, orderID int64) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("https://docs.paperco.test/INV-%d.html", orderID), nil
}

type mockApprovalTransport struct {
	verdict    approval.Verdict
	requestErr error
	requests   []string
}

func (m *mockApprovalTransport) RequestApproval(_ context.Context, summary string) (string, error) {
	if m.requestErr != nil {
		return "", m.requestErr
	}
	m.requests = append(m.requests, summary)
	return "apr-1", nil
}

func (m *mockApprovalTransport) Poll(context.Context, string) (approval.Verdict, error) {
	return m.verdict, nil
}

type recordingNotifier struct {
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, event notify.Event) {
	r.events = append(r.events, event)
}
