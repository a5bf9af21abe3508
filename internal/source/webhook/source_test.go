package webhook

import (
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpfunds/copytrader/internal/model"
	"github.com/pumpfunds/copytrader/pkg/logger"
)

func TestMain(m *testing.M) {
	cfg := &logger.Config{Name: "test", Level: "error", Discard: true, DisableSentry: true, SentryLevel: "error"}
	l := cfg.Build()
	logger.SetDefault(l)
	logger.SetDefaultL1(l)
	os.Exit(m.Run())
}

func startedSource(t *testing.T) *Source {
	t.Helper()
	s := NewSource(2)
	require.NoError(t, s.Start(t.Context()))
	t.Cleanup(func() { s.Stop() })
	return s
}

func collectEvents(t *testing.T, s *Source, want int) []*model.SwapEvent {
	t.Helper()
	events := make([]*model.SwapEvent, 0, want)
	timeout := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case e := <-s.Subscribe():
			events = append(events, e)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d of %d", len(events), want)
		}
	}
	return events
}

func TestHandlerAcceptsAndDecodes(t *testing.T) {
	s := startedSource(t)

	body := `[
		{"signature": "sig1", "type": "SWAP", "feePayer": "payer1"},
		{"signature": "sig2", "type": "SWAP", "feePayer": "payer2"}
	]`
	w := httptest.NewRecorder()
	s.Handler()(w, httptest.NewRequest("POST", "/api/webhooks/helius", strings.NewReader(body)))
	assert.Equal(t, 200, w.Code)

	events := collectEvents(t, s, 2)
	signatures := []string{events[0].Signature, events[1].Signature}
	assert.ElementsMatch(t, []string{"sig1", "sig2"}, signatures)
}

func TestHandlerSkipsNonSwapAndEmptySignature(t *testing.T) {
	s := startedSource(t)

	body := `[
		{"signature": "", "type": "SWAP"},
		{"signature": "sig-transfer", "type": "TRANSFER"},
		{"signature": "sig-swap", "type": "SWAP"}
	]`
	w := httptest.NewRecorder()
	s.Handler()(w, httptest.NewRequest("POST", "/api/webhooks/helius", strings.NewReader(body)))
	assert.Equal(t, 200, w.Code)

	events := collectEvents(t, s, 1)
	assert.Equal(t, "sig-swap", events[0].Signature)

	// 被过滤的条目不再出现
	select {
	case e := <-s.Subscribe():
		t.Fatalf("unexpected event %s", e.Signature)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlerRejectsMalformedBody(t *testing.T) {
	s := startedSource(t)

	w := httptest.NewRecorder()
	s.Handler()(w, httptest.NewRequest("POST", "/api/webhooks/helius", strings.NewReader("{not json")))
	assert.Equal(t, 400, w.Code)
}

func TestHandlerUnavailableAfterStop(t *testing.T) {
	s := NewSource(1)
	require.NoError(t, s.Start(t.Context()))
	require.NoError(t, s.Stop())

	w := httptest.NewRecorder()
	s.Handler()(w, httptest.NewRequest("POST", "/api/webhooks/helius", strings.NewReader("[]")))
	assert.Equal(t, 503, w.Code)
}
