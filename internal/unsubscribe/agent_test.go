package unsubscribe

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/browser"
	"github.com/znz-systems/sortbox/internal/llm"
	"github.com/znz-systems/sortbox/internal/models"
	"github.com/znz-systems/sortbox/internal/store"
)

// --- Mock stores ---

type mockMessageStore struct {
	mu     sync.Mutex
	msgs   map[uuid.UUID]*models.Message
	states []models.UnsubscribeState
}

func newMockMessageStore(msgs ...*models.Message) *mockMessageStore {
	m := &mockMessageStore{msgs: make(map[uuid.UUID]*models.Message)}
	for _, msg := range msgs {
		m.msgs[msg.ID] = msg
	}
	return m
}

func (m *mockMessageStore) GetMessageByID(_ context.Context, id uuid.UUID) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *mockMessageStore) UpdateUnsubscribeState(_ context.Context, id uuid.UUID, state models.UnsubscribeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := state.Validate(); err != nil {
		return err
	}
	m.msgs[id].Unsubscribe = state
	m.states = append(m.states, state)
	return nil
}

func (m *mockMessageStore) state(id uuid.UUID) models.UnsubscribeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.msgs[id].Unsubscribe
}

type mockJobStore struct {
	mu   sync.Mutex
	jobs []models.UnsubscribeJob
}

func (m *mockJobStore) CreateUnsubscribeJob(_ context.Context, messageID uuid.UUID, status string, result models.UnsubscribeOutcome) (*models.UnsubscribeJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := models.UnsubscribeJob{ID: uuid.New(), MessageID: messageID, Status: status, Result: result}
	m.jobs = append(m.jobs, job)
	return &job, nil
}

func (m *mockJobStore) all() []models.UnsubscribeJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.UnsubscribeJob(nil), m.jobs...)
}

// --- Mock browser ---

type mockSession struct {
	launcher *mockLauncher
	url      string
}

func (s *mockSession) Navigate(_ context.Context, url string) error {
	s.url = url
	s.launcher.call("navigate")
	return s.launcher.navErr[url]
}

func (s *mockSession) HTML(_ context.Context) (string, error) {
	s.launcher.call("html")
	return `<html><head><script>track()</script></head><body><button id="confirm">Unsubscribe</button></body></html>`, nil
}

func (s *mockSession) WaitForSelector(_ context.Context, selector string) error {
	if s.launcher.missing[selector] {
		return errors.New("selector timed out")
	}
	return nil
}

func (s *mockSession) Click(_ context.Context, selector string) error {
	s.launcher.record("click " + selector)
	return nil
}

func (s *mockSession) Type(_ context.Context, selector, value string) error {
	s.launcher.record("type " + selector + "=" + value)
	return nil
}

func (s *mockSession) Select(_ context.Context, selector, value string) error {
	s.launcher.record("select " + selector + "=" + value)
	return nil
}

func (s *mockSession) WaitForNetworkIdle(_ context.Context) error {
	s.launcher.call("idle")
	return s.launcher.idleErr
}

func (s *mockSession) Close() error {
	s.launcher.mu.Lock()
	defer s.launcher.mu.Unlock()
	s.launcher.closes++
	return nil
}

type mockLauncher struct {
	mu        sync.Mutex
	launches  int
	closes    int
	launchErr error
	navErr    map[string]error
	missing   map[string]bool
	idleErr   error
	actions   []string
	calls     []string
}

func newMockLauncher() *mockLauncher {
	return &mockLauncher{navErr: map[string]error{}, missing: map[string]bool{}}
}

func (l *mockLauncher) Launch(_ context.Context) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	l.launches++
	return &mockSession{launcher: l}, nil
}

func (l *mockLauncher) record(a string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, a)
}

func (l *mockLauncher) call(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *mockLauncher) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches, l.closes
}

// --- Mock model ---

type mockModel struct {
	mu      sync.Mutex
	answers []string
	err     error
	prompts []llm.Prompt
}

func (m *mockModel) Complete(_ context.Context, p llm.Prompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, p)
	if m.err != nil {
		return "", m.err
	}
	if len(m.answers) == 0 {
		return `{"actions":[]}`, nil
	}
	a := m.answers[0]
	if len(m.answers) > 1 {
		m.answers = m.answers[1:]
	}
	return a, nil
}

type fixture struct {
	msg      *models.Message
	messages *mockMessageStore
	jobs     *mockJobStore
	launcher *mockLauncher
	model    *mockModel
	agent    *Agent
	slept    time.Duration
}

func newFixture(t *testing.T, links ...string) *fixture {
	t.Helper()
	msg := &models.Message{ID: uuid.New(), UnsubscribeLinks: links, Unsubscribe: models.NotAttempted()}
	f := &fixture{
		msg:      msg,
		messages: newMockMessageStore(msg),
		jobs:     &mockJobStore{},
		launcher: newMockLauncher(),
		model:    &mockModel{},
	}
	f.agent = NewAgent(f.messages, f.jobs, f.launcher, f.model, Options{})
	f.agent.sleep = func(_ context.Context, d time.Duration) error {
		f.slept += d
		return nil
	}
	return f
}

func TestAttemptUnsubscribe_NoLinksSkips(t *testing.T) {
	f := newFixture(t)

	res, err := f.agent.AttemptUnsubscribe(context.Background(), f.msg.ID)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !res.Success || !res.Skipped {
		t.Fatalf("expected skipped success, got %+v", res)
	}
	if launches, _ := f.launcher.counts(); launches != 0 {
		t.Fatal("browser should not be launched without links")
	}
	if len(f.jobs.all()) != 0 {
		t.Fatal("no job should be recorded for a skip")
	}
}

func TestAttemptUnsubscribe_UnknownMessage(t *testing.T) {
	f := newFixture(t)
	_, err := f.agent.AttemptUnsubscribe(context.Background(), uuid.New())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttemptUnsubscribe_MailtoDefers(t *testing.T) {
	f := newFixture(t, "mailto:leave@list.example", "https://list.example/u")

	res, err := f.agent.AttemptUnsubscribe(context.Background(), f.msg.ID)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !res.Success || res.Skipped {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := f.messages.state(f.msg.ID).Kind; got != models.UnsubscribeMailDeferred {
		t.Fatalf("expected mail_deferred, got %s", got)
	}
	if launches, _ := f.launcher.counts(); launches != 0 {
		t.Fatal("browser should not be launched for a mail link")
	}
}

func TestAttemptUnsubscribe_WebLinkRunsPlan(t *testing.T) {
	f := newFixture(t, "https://list.example/u")
	f.model.answers = []string{"```json\n" + `{"actions":[{"type":"input","selector":"#email","value":"me@example.com"},{"type":"select","selector":"#why","value":"too-many"},{"type":"click","selector":"#confirm"}]}` + "\n```"}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.agent.now = func() time.Time { return now }

	res, err := f.agent.AttemptUnsubscribe(context.Background(), f.msg.ID)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	want := []string{"type #email=me@example.com", "select #why=too-many", "click #confirm"}
	if strings.Join(f.launcher.actions, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected actions %v", f.launcher.actions)
	}
	state := f.messages.state(f.msg.ID)
	if state.Kind != models.UnsubscribeAutomated || state.Date == nil || !state.Date.Equal(now) {
		t.Fatalf("unexpected state %+v", state)
	}
	jobs := f.jobs.all()
	if len(jobs) != 1 || jobs[0].Status != models.UnsubscribeJobCompleted || !jobs[0].Result.Success {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	if f.slept != 2*time.Second {
		t.Fatalf("expected grace delay, slept %s", f.slept)
	}
	if strings.Contains(f.model.prompts[0].User, "track()") {
		t.Fatal("scripts should be stripped before the page reaches the model")
	}
	if launches, closes := f.launcher.counts(); launches != 1 || closes != 1 {
		t.Fatalf("expected 1 launch and 1 close, got %d/%d", launches, closes)
	}
}

func TestAttemptUnsubscribe_FallsThroughToNextLink(t *testing.T) {
	f := newFixture(t, "https://slow.example/u", "https://bad-plan.example/u", "https://ok.example/u")
	f.launcher.navErr["https://slow.example/u"] = context.DeadlineExceeded
	f.model.answers = []string{"not json at all", `{"actions":[{"type":"click","selector":"#confirm"}]}`}

	res, err := f.agent.AttemptUnsubscribe(context.Background(), f.msg.ID)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected third link to succeed, got %+v", res)
	}
	if launches, closes := f.launcher.counts(); launches != 3 || closes != 3 {
		t.Fatalf("every session must be closed once, got %d launches / %d closes", launches, closes)
	}
}

func TestAttemptUnsubscribe_AllLinksFail(t *testing.T) {
	f := newFixture(t, "https://a.example/u", "https://b.example/u")
	f.model.answers = []string{`{"actions":[{"type":"click","selector":"#gone"}]}`}
	f.launcher.missing["#gone"] = true

	res, err := f.agent.AttemptUnsubscribe(context.Background(), f.msg.ID)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if res.Success || res.Skipped {
		t.Fatalf("expected failure, got %+v", res)
	}
	state := f.messages.state(f.msg.ID)
	if state.Kind != models.UnsubscribeFailed || !strings.Contains(state.Reason, "#gone") {
		t.Fatalf("unexpected state %+v", state)
	}
	jobs := f.jobs.all()
	if len(jobs) != 1 || jobs[0].Status != models.UnsubscribeJobFailed || jobs[0].Result.Success {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	if launches, closes := f.launcher.counts(); launches != 2 || closes != 2 {
		t.Fatalf("expected 2 launches and 2 closes, got %d/%d", launches, closes)
	}
}

func TestAttemptUnsubscribe_UnsettledNetworkIsNotFatal(t *testing.T) {
	f := newFixture(t, "https://list.example/u")
	f.model.answers = []string{`{"actions":[{"type":"click","selector":"#confirm"}]}`}
	f.launcher.idleErr = errors.New("network not idle")

	res, err := f.agent.AttemptUnsubscribe(context.Background(), f.msg.ID)
	if err != nil || !res.Success {
		t.Fatalf("expected success, got %+v, %v", res, err)
	}
}

func TestAttemptUnsubscribe_LaunchFailureTriesNextLink(t *testing.T) {
	f := newFixture(t, "https://list.example/u")
	f.launcher.launchErr = errors.New("chrome not installed")

	res, err := f.agent.AttemptUnsubscribe(context.Background(), f.msg.ID)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure when no browser can start")
	}
	if _, closes := f.launcher.counts(); closes != 0 {
		t.Fatal("nothing to close when launch fails")
	}
}

func TestAttemptUnsubscribe_ConcurrentAttemptsAppendJobs(t *testing.T) {
	f := newFixture(t, "https://list.example/u")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.agent.AttemptUnsubscribe(context.Background(), f.msg.ID); err != nil {
				t.Errorf("attempt: %v", err)
			}
		}()
	}
	wg.Wait()

	jobs := f.jobs.all()
	if len(jobs) != 2 || jobs[0].ID == jobs[1].ID {
		t.Fatalf("expected two distinct jobs, got %+v", jobs)
	}
	if launches, closes := f.launcher.counts(); launches != closes {
		t.Fatalf("launches %d != closes %d", launches, closes)
	}
}

func TestAttemptUnsubscribe_WaitsForPageBeforeReadingIt(t *testing.T) {
	f := newFixture(t, "https://list.example/u")
	f.model.answers = []string{`{"actions":[{"type":"click","selector":"#confirm"}]}`}

	if _, err := f.agent.AttemptUnsubscribe(context.Background(), f.msg.ID); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	want := "navigate|idle|html|idle"
	if got := strings.Join(f.launcher.calls, "|"); got != want {
		t.Fatalf("expected calls %s, got %s", want, got)
	}
}

func TestAttemptUnsubscribe_UnsettledPageIsStillRead(t *testing.T) {
	f := newFixture(t, "https://list.example/u")
	f.launcher.idleErr = errors.New("network not idle")

	res, err := f.agent.AttemptUnsubscribe(context.Background(), f.msg.ID)
	if err != nil || !res.Success {
		t.Fatalf("expected success, got %+v, %v", res, err)
	}
	if len(f.model.prompts) != 1 {
		t.Fatalf("expected the page to reach the model, got %d prompts", len(f.model.prompts))
	}
}

func TestAttemptUnsubscribe_FailedRetryKeepsCompletedState(t *testing.T) {
	f := newFixture(t, "https://list.example/u")
	f.model.answers = []string{
		`{"actions":[{"type":"click","selector":"#confirm"}]}`,
		`{"actions":[{"type":"click","selector":"#gone"}]}`,
	}
	f.launcher.missing["#gone"] = true

	first, err := f.agent.AttemptUnsubscribe(context.Background(), f.msg.ID)
	if err != nil || !first.Success {
		t.Fatalf("first attempt: %+v, %v", first, err)
	}
	done := f.messages.state(f.msg.ID)

	second, err := f.agent.AttemptUnsubscribe(context.Background(), f.msg.ID)
	if err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if second.Success {
		t.Fatalf("expected the retry to fail, got %+v", second)
	}

	state := f.messages.state(f.msg.ID)
	if state.Kind != models.UnsubscribeAutomated || !state.Date.Equal(*done.Date) {
		t.Fatalf("completed unsubscribe lost, state is %+v", state)
	}
	jobs := f.jobs.all()
	if len(jobs) != 2 || jobs[0].Status != models.UnsubscribeJobCompleted || jobs[1].Status != models.UnsubscribeJobFailed {
		t.Fatalf("expected completed then failed jobs, got %+v", jobs)
	}
}

func TestAttemptUnsubscribe_MailtoAfterCompletionKeepsState(t *testing.T) {
	f := newFixture(t, "mailto:leave@list.example")
	f.msg.Unsubscribe = models.Automated(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	res, err := f.agent.AttemptUnsubscribe(context.Background(), f.msg.ID)
	if err != nil || !res.Success {
		t.Fatalf("attempt: %+v, %v", res, err)
	}
	if got := f.messages.state(f.msg.ID).Kind; got != models.UnsubscribeAutomated {
		t.Fatalf("expected automated to survive, got %s", got)
	}
	if len(f.messages.states) != 0 {
		t.Fatalf("no state write expected, got %+v", f.messages.states)
	}
}
