package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/classifier"
	"github.com/znz-systems/sortbox/internal/extract"
	"github.com/znz-systems/sortbox/internal/mailbox"
	"github.com/znz-systems/sortbox/internal/models"
	"github.com/znz-systems/sortbox/internal/store"
)

// --- Mock stores ---

type mockAccountStore struct {
	accounts map[uuid.UUID]*models.Account
	listErr  error
}

func newMockAccountStore(accounts ...*models.Account) *mockAccountStore {
	m := &mockAccountStore{accounts: make(map[uuid.UUID]*models.Account)}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *mockAccountStore) UpsertAccount(_ context.Context, _ models.AccountUpsertParams) (*models.Account, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAccountStore) GetAccountByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccountStore) ListAccountsByUserID(_ context.Context, _ uuid.UUID) ([]models.Account, error) {
	return nil, nil
}

func (m *mockAccountStore) ListAccountsWithCredentials(_ context.Context) ([]models.Account, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Account
	for _, a := range m.accounts {
		if a.AccessToken != "" {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockAccountStore) UpdateAccountCredentials(_ context.Context, _ uuid.UUID, _ string, _ time.Time) error {
	return nil
}

func (m *mockAccountStore) DeleteAccount(_ context.Context, id uuid.UUID) error {
	delete(m.accounts, id)
	return nil
}

type mockCategoryStore struct {
	byUser map[uuid.UUID][]models.Category
}

func (m *mockCategoryStore) CreateCategory(_ context.Context, userID uuid.UUID, name, description string) (*models.Category, error) {
	c := models.Category{ID: uuid.New(), UserID: userID, Name: name, Description: description}
	if m.byUser == nil {
		m.byUser = make(map[uuid.UUID][]models.Category)
	}
	m.byUser[userID] = append(m.byUser[userID], c)
	return &c, nil
}

func (m *mockCategoryStore) ListCategoriesByUserID(_ context.Context, userID uuid.UUID) ([]models.Category, error) {
	return m.byUser[userID], nil
}

func (m *mockCategoryStore) DeleteCategory(_ context.Context, _, _ uuid.UUID) error { return nil }

type mockMessageStore struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*models.Message
	byProvider map[string]uuid.UUID
	createErr  error
	// hide makes ExistsByProviderMessageID miss, simulating a concurrent insert.
	hide bool
}

func newMockMessageStore() *mockMessageStore {
	return &mockMessageStore{
		byID:       make(map[uuid.UUID]*models.Message),
		byProvider: make(map[string]uuid.UUID),
	}
}

func (m *mockMessageStore) CreateMessage(_ context.Context, p models.MessageCreateParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	if _, ok := m.byProvider[p.ProviderMessageID]; ok {
		return nil, store.ErrDuplicate
	}
	msg := &models.Message{
		ID:                uuid.New(),
		AccountID:         p.AccountID,
		ProviderMessageID: p.ProviderMessageID,
		ThreadID:          p.ThreadID,
		FromAddress:       p.FromAddress,
		ToAddress:         p.ToAddress,
		Subject:           p.Subject,
		Snippet:           p.Snippet,
		TextBody:          p.TextBody,
		HTMLBlobKey:       p.HTMLBlobKey,
		CategoryID:        p.CategoryID,
		Confidence:        p.Confidence,
		Summary:           p.Summary,
		UnsubscribeLinks:  p.UnsubscribeLinks,
		Unsubscribe:       models.NotAttempted(),
		ImportedAt:        time.Now(),
	}
	m.byID[msg.ID] = msg
	m.byProvider[p.ProviderMessageID] = msg.ID
	return msg, nil
}

func (m *mockMessageStore) GetMessageByID(_ context.Context, id uuid.UUID) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return msg, nil
}

func (m *mockMessageStore) ExistsByProviderMessageID(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hide {
		return false, nil
	}
	_, ok := m.byProvider[id]
	return ok, nil
}

func (m *mockMessageStore) ListMessagesByIDs(_ context.Context, _ []uuid.UUID) ([]models.Message, error) {
	return nil, nil
}

func (m *mockMessageStore) ListMessagesByCategoryID(_ context.Context, _ uuid.UUID) ([]models.Message, error) {
	return nil, nil
}

func (m *mockMessageStore) MarkMessageArchived(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	msg.Archived = true
	return nil
}

func (m *mockMessageStore) UpdateUnsubscribeState(_ context.Context, _ uuid.UUID, _ models.UnsubscribeState) error {
	return nil
}

func (m *mockMessageStore) DeleteMessages(_ context.Context, _ []uuid.UUID) error { return nil }

func (m *mockMessageStore) byProviderID(id string) *models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[m.byProvider[id]]
}

func (m *mockMessageStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// --- Mock mailbox ---

type mockMailbox struct {
	mu        sync.Mutex
	ids       []string
	payloads  map[string]*mailbox.Payload
	fetchErr  map[string]error
	listErr   error
	archErr   error
	listCalls int
	filters   []mailbox.Filter
	archived  []string
}

func (m *mockMailbox) ListCandidates(_ context.Context, f mailbox.Filter) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	m.filters = append(m.filters, f)
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]string(nil), m.ids...), nil
}

func (m *mockMailbox) FetchFull(_ context.Context, id string) (*mailbox.Payload, error) {
	if err := m.fetchErr[id]; err != nil {
		return nil, err
	}
	p, ok := m.payloads[id]
	if !ok {
		return nil, errors.New("not found upstream")
	}
	return p, nil
}

func (m *mockMailbox) Archive(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.archErr != nil {
		return m.archErr
	}
	m.archived = append(m.archived, id)
	return nil
}

func (m *mockMailbox) Delete(_ context.Context, _ string) error { return nil }

type mockConnector struct {
	mb      *mockMailbox
	openErr error
	opens   int
}

func (c *mockConnector) Open(_ context.Context, _ *models.Account) (mailbox.Mailbox, error) {
	c.opens++
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.mb, nil
}

// --- Mock classifier and observer ---

type mockClassifier struct {
	result classifier.Result
	calls  int
}

func (c *mockClassifier) Classify(_ context.Context, _ *extract.Content, _ []models.Category) classifier.Result {
	c.calls++
	return c.result
}

type recordingObserver struct {
	reports []CycleReport
	errs    []error
}

func (o *recordingObserver) ObserveCycle(_ context.Context, r CycleReport, err error) {
	o.reports = append(o.reports, r)
	o.errs = append(o.errs, err)
}

func textPayload(id, subject, body string, headers ...mailbox.Header) *mailbox.Payload {
	return &mailbox.Payload{
		ID:       id,
		ThreadID: "thread-" + id,
		Snippet:  subject,
		Headers:  append([]mailbox.Header{{Name: "From", Value: "Sender <s@example.com>"}, {Name: "Subject", Value: subject}}, headers...),
		Root: &mailbox.Part{
			MimeType: "multipart/alternative",
			Parts: []*mailbox.Part{
				{MimeType: "text/plain", Data: base64.URLEncoding.EncodeToString([]byte(body))},
				{MimeType: "text/html", Data: base64.URLEncoding.EncodeToString([]byte("<p>" + body + "</p>"))},
			},
		},
	}
}
