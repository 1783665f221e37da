package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fidde/agripredict/internal/artifacts"
	"github.com/fidde/agripredict/internal/artifacts/artifactstest"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePrediction(t *testing.T) {
	m := New("agri")

	m.ObservePrediction(OutcomeOK, 0.001)
	m.ObservePrediction(OutcomeOK, 0.002)
	m.ObservePrediction(OutcomeNotReady, 0)

	if got := testutil.ToFloat64(m.predictions.WithLabelValues(OutcomeOK)); got != 2 {
		t.Errorf("Expected 2 ok predictions, got %v", got)
	}
	if got := testutil.ToFloat64(m.predictions.WithLabelValues(OutcomeNotReady)); got != 1 {
		t.Errorf("Expected 1 not_ready prediction, got %v", got)
	}
}

func TestObserveBundle(t *testing.T) {
	m := New("agri")

	opts := artifactstest.DefaultOptions(4)
	opts.Skip = []string{artifacts.NameMaxPrice}
	paths := artifactstest.Write(t, t.TempDir(), opts)
	b := artifacts.Load(paths, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	m.ObserveBundle(b)

	if got := testutil.ToFloat64(m.pipelineReady); got != 0 {
		t.Errorf("Expected pipeline_ready 0, got %v", got)
	}
	if got := testutil.ToFloat64(m.artifactLoaded.WithLabelValues(artifacts.NameMaxPrice)); got != 0 {
		t.Errorf("Expected max_price not loaded, got %v", got)
	}
	if got := testutil.ToFloat64(m.artifactLoaded.WithLabelValues(artifacts.NameScaler)); got != 1 {
		t.Errorf("Expected scaler loaded, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New("agri")
	m.ObserveUnmapped("region", "Bihar")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `agri_unmapped_categories_total{field="region",value="Bihar"} 1`) {
		t.Errorf("Unmapped counter missing from exposition:\n%s", rr.Body.String())
	}
}

func TestObserveMirrorError(t *testing.T) {
	m := New("agri")
	m.ObserveMirrorError(io.ErrClosedPipe)
	m.ObserveMirrorError(nil)

	if got := testutil.ToFloat64(m.mirrorErrors); got != 2 {
		t.Errorf("Expected 2 mirror errors, got %v", got)
	}
}
