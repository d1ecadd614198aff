package consumer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap/zaptest"

	"Mailwright/internal/email"
	"Mailwright/internal/errs"
	"Mailwright/internal/models"
	"Mailwright/internal/queue"
	"Mailwright/internal/render"
)

var fixedNow = time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

// memStore keeps the ledger in memory.
type memStore struct {
	mu        sync.Mutex
	seq       int
	messages  map[string]*models.EmailMessage
	order     []string
	logs      []models.EmailSendLog
	templates map[string]*models.EmailTemplate

	failCreate error
	failUpdate error
	failAppend error
}

func newMemStore() *memStore {
	return &memStore{
		messages:  map[string]*models.EmailMessage{},
		templates: map[string]*models.EmailTemplate{},
	}
}

func (s *memStore) CreateMessage(_ context.Context, m *models.EmailMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return "", s.failCreate
	}
	s.seq++
	m.ID = "m" + strconv.Itoa(s.seq)
	m.Status = models.StatusPending
	cp := *m
	s.messages[m.ID] = &cp
	s.order = append(s.order, m.ID)
	return m.ID, nil
}

func (s *memStore) UpdateMessageStatus(_ context.Context, id string, status models.MessageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	m, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("update message status: %w", errs.ErrNotFound)
	}
	m.Status = status
	return nil
}

func (s *memStore) AppendSendLog(_ context.Context, l *models.EmailSendLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend != nil {
		return s.failAppend
	}
	l.ID = "l" + strconv.Itoa(len(s.logs)+1)
	s.logs = append(s.logs, *l)
	return nil
}

// ClaimRetry holds the store mutex for the whole check-and-record, the way
// the Postgres store holds the message row lock.
func (s *memStore) ClaimRetry(_ context.Context, id string, at time.Time) (*models.EmailMessage, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, 0, fmt.Errorf("claim retry: %w", errs.ErrNotFound)
	}
	msg := *m

	t, ok := s.templates[m.TemplateID]
	if !ok {
		return &msg, 0, fmt.Errorf("template %s no longer exists: %w", m.TemplateID, errs.ErrInvalidState)
	}

	attempt, err := models.NextRetry(msg, s.logsOf(id), t.RetryMax, at)
	if err != nil {
		return &msg, 0, err
	}
	s.logs = append(s.logs, models.EmailSendLog{
		ID:             "l" + strconv.Itoa(len(s.logs)+1),
		EmailMessageID: id,
		LogType:        models.LogRetryAttempt,
		SentAt:         at,
		RetryCount:     attempt,
	})
	return &msg, attempt, nil
}

func (s *memStore) CancelMessage(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("cancel message: %w", errs.ErrNotFound)
	}
	cancelled, err := models.CheckCancel(*m, s.logsOf(id))
	if err != nil || cancelled {
		return err
	}
	s.logs = append(s.logs, models.EmailSendLog{
		ID:             "l" + strconv.Itoa(len(s.logs)+1),
		EmailMessageID: id,
		LogType:        models.LogCancelled,
		SentAt:         at,
	})
	return nil
}

func (s *memStore) logsOf(id string) []models.EmailSendLog {
	var out []models.EmailSendLog
	for _, l := range s.logs {
		if l.EmailMessageID == id {
			out = append(out, l)
		}
	}
	return out
}

func (s *memStore) message(id string) models.EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.messages[id]
}

type fakeResolver struct {
	tmpl *models.InUseTemplate
	err  error
}

func (r *fakeResolver) Resolve(_ context.Context, tt models.TemplateType) (*models.InUseTemplate, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.tmpl == nil || r.tmpl.Template.TemplateType != tt {
		return nil, fmt.Errorf("resolve %s template: %w", tt, errs.ErrNotFound)
	}
	return r.tmpl, nil
}

type fakeTransport struct {
	mu     sync.Mutex
	err    error
	sent   []email.Outbound
	onSend func(email.Outbound)
}

func (t *fakeTransport) Send(_ context.Context, out email.Outbound) error {
	if t.onSend != nil {
		t.onSend(out)
	}
	if t.err != nil {
		return &errs.TransportError{Op: "smtp send", Err: t.err}
	}
	t.mu.Lock()
	t.sent = append(t.sent, out)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) sends() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

type fakeQueue struct {
	mu         sync.Mutex
	deliveries []*queue.Delivery
	receiveErr []error
	acked      []*queue.Delivery
	nacked     []*queue.Delivery
	onEmpty    func()
}

func (q *fakeQueue) Name() string { return "verify-email" }

func (q *fakeQueue) Receive(ctx context.Context) (*queue.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.receiveErr) > 0 {
		err := q.receiveErr[0]
		q.receiveErr = q.receiveErr[1:]
		return nil, err
	}
	if len(q.deliveries) == 0 {
		if q.onEmpty != nil {
			q.onEmpty()
		}
		return nil, nil
	}
	d := q.deliveries[0]
	q.deliveries = q.deliveries[1:]
	return d, nil
}

func (q *fakeQueue) Ack(_ context.Context, d *queue.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, d)
	return nil
}

func (q *fakeQueue) Nack(_ context.Context, d *queue.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nacked = append(q.nacked, d)
	return nil
}

func verifyTemplate() *models.InUseTemplate {
	return &models.InUseTemplate{
		Template: models.EmailTemplate{
			ID:           "t-verify",
			TemplateType: models.TemplateVerifyEmail,
			TemplateName: "Verify email",
			Subject:      "[[{app_name}]]: verify your email",
			Body:         "Hi [[{username}]], confirm at [[{verifyEmailUrl}]]",
			RetryMax:     2,
		},
		Placeholders: []models.ResolvedPlaceholder{
			{Metadata: models.PlaceholderMetadata{ID: "p1", Key: "username"}},
			{Metadata: models.PlaceholderMetadata{ID: "p2", Key: "verifyEmailUrl"}},
		},
	}
}

func newPipeline(t *testing.T, resolver Resolver, store Ledger, transport Transport) *Pipeline {
	return &Pipeline{
		Resolver:  resolver,
		Renderer:  render.New("[[{", "}]]", render.Defaults{AppName: "Acme", SupportMail: "help@acme.test", Signature: "Acme"}),
		Ledger:    store,
		Transport: transport,
		From:      "noreply@acme.test",
		Log:       zaptest.NewLogger(t),
		Now:       func() time.Time { return fixedNow },
	}
}

func newTestConsumer(t *testing.T, q Queue, p *Pipeline) *Consumer {
	c := New(q, p, nil, zaptest.NewLogger(t))
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func delivery(tag, body string) *queue.Delivery {
	return &queue.Delivery{Tag: tag, Body: []byte(body)}
}
