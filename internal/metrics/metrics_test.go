package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	beforeOK := testutil.ToFloat64(imagesProcessed.WithLabelValues("success"))
	beforeProbe := testutil.ToFloat64(probes.WithLabelValues("failed"))

	IncProcessed("success")
	IncProcessed("success")
	IncProbe(false)
	ObserveRequest("m", "timeout", 3*time.Second)

	if got := testutil.ToFloat64(imagesProcessed.WithLabelValues("success")) - beforeOK; got != 2 {
		t.Errorf("images_processed_total{success}: got +%v, want +2", got)
	}
	if got := testutil.ToFloat64(probes.WithLabelValues("failed")) - beforeProbe; got != 1 {
		t.Errorf("probe_total{failed}: got +%v, want +1", got)
	}
	if got := testutil.ToFloat64(requests.WithLabelValues("m", "timeout")); got < 1 {
		t.Errorf("requests_total{timeout}: got %v", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	Init()
	Init() // second call must not panic on duplicate registration

	IncProcessed("failure")
	ObserveImageBytes(1024)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "visionbatch_images_processed_total") {
		t.Error("expected visionbatch_images_processed_total in exposition")
	}
	if !strings.Contains(body, "visionbatch_image_bytes_bucket") {
		t.Error("expected visionbatch_image_bytes histogram in exposition")
	}
}
