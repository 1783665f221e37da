package artifacts_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/fidde/agripredict/internal/artifacts"
	"github.com/fidde/agripredict/internal/artifacts/artifactstest"
	"github.com/fidde/agripredict/internal/schema"
	"github.com/fidde/agripredict/internal/transform"
	"github.com/fidde/agripredict/pkg/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadAllArtifacts(t *testing.T) {
	s := schema.Default()
	paths := artifactstest.Write(t, t.TempDir(), artifactstest.DefaultOptions(s.Width()))

	b := artifacts.Load(paths, s, quietLogger())
	if !b.Ready() {
		t.Fatalf("Expected ready bundle, statuses: %+v", b.Statuses())
	}

	statuses := b.Statuses()
	if len(statuses) != len(artifacts.Names) {
		t.Fatalf("Expected %d statuses, got %d", len(artifacts.Names), len(statuses))
	}
	for i, st := range statuses {
		if st.Name != artifacts.Names[i] {
			t.Errorf("Status %d: expected %s, got %s", i, artifacts.Names[i], st.Name)
		}
		if !st.Loaded || st.Error != "" {
			t.Errorf("Artifact %s not loaded: %s", st.Name, st.Error)
		}
	}

	pipeline, agg, err := b.Predictor()
	if err != nil {
		t.Fatalf("Predictor failed: %v", err)
	}
	if pipeline.InputWidth() != 18 || pipeline.OutputWidth() != 18+18*19/2 {
		t.Errorf("Unexpected widths: in=%d out=%d", pipeline.InputWidth(), pipeline.OutputWidth())
	}
	if agg == nil {
		t.Error("Expected aggregator")
	}
}

func TestLoadMissingArtifact(t *testing.T) {
	for _, missing := range artifacts.Names {
		t.Run(missing, func(t *testing.T) {
			opts := artifactstest.DefaultOptions(18)
			opts.Skip = []string{missing}
			paths := artifactstest.Write(t, t.TempDir(), opts)

			b := artifacts.Load(paths, schema.Default(), quietLogger())
			if b.Ready() {
				t.Fatal("Bundle must not be ready with a missing artifact")
			}

			for _, st := range b.Statuses() {
				if st.Name == missing && (st.Loaded || st.Error == "") {
					t.Errorf("Expected %s to be reported as failed: %+v", missing, st)
				}
				if st.Name != missing && !st.Loaded {
					t.Errorf("Artifact %s should load independently: %s", st.Name, st.Error)
				}
			}

			if _, _, err := b.Predictor(); !errors.Is(err, models.ErrPipelineNotReady) {
				t.Errorf("Expected ErrPipelineNotReady, got %v", err)
			}
		})
	}
}

func TestLoadCorruptArtifact(t *testing.T) {
	paths := artifactstest.Write(t, t.TempDir(), artifactstest.DefaultOptions(18))
	if err := os.WriteFile(paths.Poly, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	b := artifacts.Load(paths, nil, quietLogger())
	if b.Ready() {
		t.Error("Corrupt artifact must leave the pipeline not ready")
	}
}

func TestLoadInvalidArtifact(t *testing.T) {
	dir := t.TempDir()
	set := artifactstest.Build(artifactstest.DefaultOptions(18))
	set.Poly = &transform.PolynomialExpander{NFeaturesIn: 18, Degree: 3}
	paths := artifacts.DefaultPaths(dir)
	if err := artifacts.Save(paths, set); err != nil {
		t.Fatal(err)
	}

	b := artifacts.Load(paths, nil, quietLogger())
	if b.Ready() {
		t.Error("Degree 3 expander must fail validation")
	}
}

func TestLoadReportsSchemaDrift(t *testing.T) {
	s := schema.Default()
	dir := t.TempDir()
	set := artifactstest.Build(artifactstest.DefaultOptions(s.Width()))
	names := s.Columns()
	names[5], names[6] = names[6], names[5]
	set.Scaler.FeatureNames = names
	paths := artifacts.DefaultPaths(dir)
	if err := artifacts.Save(paths, set); err != nil {
		t.Fatal(err)
	}

	b := artifacts.Load(paths, s, quietLogger())
	if !b.Ready() {
		t.Fatal("Drift is reported, not gated")
	}
	if b.Statuses()[0].Warning == "" {
		t.Error("Expected a drift warning on the scaler status")
	}
}

func TestHolderReload(t *testing.T) {
	dir := t.TempDir()
	opts := artifactstest.DefaultOptions(18)
	opts.Skip = []string{artifacts.NameModalPrice}
	artifactstest.Write(t, dir, opts)

	h := artifacts.NewHolder(artifacts.DefaultPaths(dir), schema.Default(), quietLogger())
	if h.Ready() {
		t.Fatal("Holder must start not ready")
	}

	var swaps []bool
	h.OnSwap(func(b *artifacts.Bundle) { swaps = append(swaps, b.Ready()) })

	before := h.Current()
	artifactstest.Write(t, dir, artifactstest.DefaultOptions(18))
	after := h.Reload()

	if !h.Ready() {
		t.Fatalf("Holder should be ready after reload: %+v", after.Statuses())
	}
	if before == after || h.Current() != after {
		t.Error("Reload must swap in a new bundle")
	}
	if before.Ready() {
		t.Error("The previous bundle must not be mutated")
	}
	if len(swaps) != 2 || swaps[0] || !swaps[1] {
		t.Errorf("Unexpected swap notifications: %v", swaps)
	}
}
