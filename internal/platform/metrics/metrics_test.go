package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/metrics"
)

func TestOutcome(t *testing.T) {
	if metrics.Outcome(nil) != metrics.OutcomeOK {
		t.Error("nil error should be ok")
	}
	if metrics.Outcome(errors.New("x")) != metrics.OutcomeError {
		t.Error("non-nil error should be error")
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	metrics.NotificationsSent.WithLabelValues("event_share", metrics.OutcomeOK).Inc()

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "calshare_notifications_sent_total") {
		t.Error("expected calshare_notifications_sent_total in exposition")
	}
}
