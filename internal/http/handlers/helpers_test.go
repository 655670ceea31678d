package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/contractor-relay/internal/conversation"
	"github.com/wolfman30/contractor-relay/internal/messaging"
	"github.com/wolfman30/contractor-relay/internal/notifications"
	"github.com/wolfman30/contractor-relay/internal/resilience"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

const testSecret = "webhook-secret"

var fixedNow = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type recordingInbound struct {
	mu   sync.Mutex
	jobs []conversation.InboundJob
	err  error
}

func (p *recordingInbound) EnqueueInbound(_ context.Context, job conversation.InboundJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

type failingStore struct {
	notifications.Store
}

func (failingStore) Create(context.Context, *notifications.Record) error {
	return errors.New("db down")
}

type webhookFixture struct {
	handler   *WebhookHandler
	store     *notifications.MemoryStore
	publisher *recordingInbound
	dedup     *resilience.MemoryStore
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	store := notifications.NewMemoryStore()
	pub := &recordingInbound{}
	dedup := resilience.NewMemoryStore(func() time.Time { return fixedNow })
	verifier := messaging.NewVerifier(messaging.VerifierConfig{
		Secret: testSecret,
		Now:    func() time.Time { return fixedNow },
	})
	h := NewWebhookHandler(WebhookConfig{
		Verifier:  verifier,
		Store:     store,
		Publisher: pub,
		Dedup:     dedup,
		Logger:    logging.Discard(),
	})
	h.now = func() time.Time { return fixedNow }
	return &webhookFixture{handler: h, store: store, publisher: pub, dedup: dedup}
}

func webhookBody(from, text string, ts int64) []byte {
	return []byte(fmt.Sprintf(`{"data":{"from":%q,"text":%q},"timestamp":%d}`, from, text, ts))
}

func (f *webhookFixture) post(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	f.handler.Handle(rec, req)
	return rec
}
