package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/madakixo/jayy-bot/internal/types"
)

type fakeReporter struct {
	calls  []string
	status types.SettlementStatus
	err    error
}

func (f *fakeReporter) ReportSettlement(_ context.Context, ref types.Reference, status types.SettlementStatus) error {
	f.calls = append(f.calls, string(ref))
	f.status = status
	return f.err
}

const testSecret = "sk_test_secret"

func sign(body string) string {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func post(t *testing.T, srv *Server, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/paystack/webhook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("x-paystack-signature", signature)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestWebhookAcceptsSignedChargeSuccess(t *testing.T) {
	reporter := &fakeReporter{}
	srv := NewServer(testSecret, reporter)

	body := `{"event":"charge.success","data":{"reference":"jayy_abc","status":"success"}}`
	rec := post(t, srv, body, sign(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(reporter.calls) != 1 || reporter.calls[0] != "jayy_abc" {
		t.Errorf("expected one report for jayy_abc, got %v", reporter.calls)
	}
	if reporter.status != types.StatusSettled {
		t.Errorf("expected settled, got %s", reporter.status)
	}
}

func TestWebhookMapsFailureStatuses(t *testing.T) {
	for _, provider := range []string{"failed", "abandoned", "reversed"} {
		reporter := &fakeReporter{}
		srv := NewServer(testSecret, reporter)

		body := `{"event":"charge.failed","data":{"reference":"jayy_abc","status":"` + provider + `"}}`
		rec := post(t, srv, body, sign(body))

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", provider, rec.Code)
		}
		if reporter.status != types.StatusFailed {
			t.Errorf("%s: expected failed, got %s", provider, reporter.status)
		}
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	reporter := &fakeReporter{}
	srv := NewServer(testSecret, reporter)

	body := `{"event":"charge.success","data":{"reference":"jayy_abc","status":"success"}}`

	if rec := post(t, srv, body, "deadbeef"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong signature: expected 401, got %d", rec.Code)
	}
	if rec := post(t, srv, body, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing signature: expected 401, got %d", rec.Code)
	}
	if len(reporter.calls) != 0 {
		t.Errorf("expected no reports, got %v", reporter.calls)
	}
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	reporter := &fakeReporter{}
	srv := NewServer(testSecret, reporter)

	for name, body := range map[string]string{
		"bad JSON":          `{"event":`,
		"missing reference": `{"event":"charge.success","data":{"status":"success"}}`,
	} {
		if rec := post(t, srv, body, sign(body)); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
	if len(reporter.calls) != 0 {
		t.Errorf("expected no reports, got %v", reporter.calls)
	}
}

func TestWebhookAcksNonTerminalStatus(t *testing.T) {
	reporter := &fakeReporter{}
	srv := NewServer(testSecret, reporter)

	body := `{"event":"charge.pending","data":{"reference":"jayy_abc","status":"pending"}}`
	rec := post(t, srv, body, sign(body))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 ack, got %d", rec.Code)
	}
	if len(reporter.calls) != 0 {
		t.Errorf("expected no reports for pending status, got %v", reporter.calls)
	}
}

func TestWebhookSignalsRedeliveryOnReporterError(t *testing.T) {
	reporter := &fakeReporter{err: errors.New("store down")}
	srv := NewServer(testSecret, reporter)

	body := `{"event":"charge.success","data":{"reference":"jayy_abc","status":"success"}}`
	rec := post(t, srv, body, sign(body))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for redelivery, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(testSecret, &fakeReporter{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}
