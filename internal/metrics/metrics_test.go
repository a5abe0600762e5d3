package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInFlightGauge(t *testing.T) {
	m := New("test")

	m.IncrementInFlight()
	m.IncrementInFlight()
	if got := testutil.ToFloat64(m.inFlight); got != 2 {
		t.Fatalf("in flight: got %v", got)
	}
	m.DecrementInFlight()
	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Fatalf("in flight after decrement: got %v", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m := New("test")
	m.RecordHTTPRequest("api", "GET", "/api/v1/books", "200", 25*time.Millisecond)
	m.RecordHTTPRequest("api", "GET", "/api/v1/books", "200", 30*time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("api", "GET", "/api/v1/books", "200")); got != 2 {
		t.Fatalf("request counter: got %v", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New("readspeed")
	m.RecordRegistration()
	m.RecordAssessmentCompleted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "readspeed_registrations_total 1") {
		t.Fatalf("registrations counter missing:\n%s", body)
	}
	if !strings.Contains(body, "readspeed_assessments_completed_total 1") {
		t.Fatalf("assessments counter missing:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatal("go collector missing")
	}
}
