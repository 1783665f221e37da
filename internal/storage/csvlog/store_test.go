package csvlog

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fidde/agripredict/pkg/models"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testObservation() *models.Observation {
	return &models.Observation{
		ID:         "obs-1",
		ReceivedAt: time.Date(2024, 3, 15, 9, 30, 0, 0, time.Local),
		PredictionRequest: models.PredictionRequest{
			Region: "Punjab", Crop: "Wheat", Variety: "HD-2967",
			Rainfall: 50, Temperature: 25, Arrival: 100, Humidity: 60, Pesticide: 2.5,
		},
		PriceQuote: models.PriceQuote{MinPrice: 1800, MaxPrice: 2200, ModalPrice: 2000},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse %s: %v", path, err)
	}
	return records
}

func setupStore(t *testing.T) (*Store, Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		TrainingPath: filepath.Join(dir, "training.csv"),
		AuditPath:    filepath.Join(dir, "logs", "audit.csv"),
	}
	store, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return store, cfg
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	store, cfg := setupStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, testObservation()); err != nil {
		t.Fatalf("First append failed: %v", err)
	}

	training := readCSV(t, cfg.TrainingPath)
	if len(training) != 2 {
		t.Fatalf("Expected header + 1 row, got %d rows", len(training))
	}
	if strings.Join(training[0], ",") != "Region,Crop,Variety,Rainfall,Temperature,Arrival,Humidity,Pesticide,MinPrice,MaxPrice,ModalPrice" {
		t.Errorf("Unexpected training header: %v", training[0])
	}
	if strings.Join(training[1], ",") != "Punjab,Wheat,HD-2967,50,25,100,60,2.5,1800,2200,2000" {
		t.Errorf("Unexpected training row: %v", training[1])
	}

	audit := readCSV(t, cfg.AuditPath)
	if len(audit) != 2 {
		t.Fatalf("Expected header + 1 audit row, got %d rows", len(audit))
	}
	if audit[0][0] != "Timestamp" || len(audit[0]) != 12 {
		t.Errorf("Unexpected audit header: %v", audit[0])
	}
	if audit[1][0] != "2024-03-15 09:30:00" {
		t.Errorf("Unexpected audit timestamp: %s", audit[1][0])
	}

	if err := store.Append(ctx, testObservation()); err != nil {
		t.Fatalf("Second append failed: %v", err)
	}
	if got := len(readCSV(t, cfg.TrainingPath)); got != 3 {
		t.Errorf("Expected 3 training rows after second append, got %d", got)
	}
	if got := len(readCSV(t, cfg.AuditPath)); got != 3 {
		t.Errorf("Expected 3 audit rows after second append, got %d", got)
	}
}

func TestAppendToExistingFileSkipsHeader(t *testing.T) {
	store, cfg := setupStore(t)

	existing := "Region,Crop,Variety,Rainfall,Temperature,Arrival,Humidity,Pesticide,MinPrice,MaxPrice,ModalPrice\n" +
		"Bihar,Maize,PMH-1,10,20,30,40,1,100,200,150\n"
	if err := os.WriteFile(cfg.TrainingPath, []byte(existing), 0644); err != nil {
		t.Fatal(err)
	}

	if err := store.Append(context.Background(), testObservation()); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records := readCSV(t, cfg.TrainingPath)
	if len(records) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(records))
	}
	if records[1][0] != "Bihar" || records[2][0] != "Punjab" {
		t.Errorf("Existing rows must be preserved in order: %v", records)
	}
}

func TestConcurrentAppends(t *testing.T) {
	store, cfg := setupStore(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Append(ctx, testObservation()); err != nil {
				t.Errorf("Append failed: %v", err)
			}
		}()
	}
	wg.Wait()

	for _, path := range []string{cfg.TrainingPath, cfg.AuditPath} {
		records := readCSV(t, path)
		if len(records) != writers+1 {
			t.Errorf("%s: expected %d rows, got %d", path, writers+1, len(records))
		}
		headers := 0
		for _, r := range records {
			if r[0] == "Region" || r[0] == "Timestamp" {
				headers++
			}
		}
		if headers != 1 {
			t.Errorf("%s: expected exactly one header, got %d", path, headers)
		}
	}
}

func TestAuditFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := New(Config{
		TrainingPath: filepath.Join(dir, "training.csv"),
		AuditPath:    filepath.Join(blocker, "audit.csv"),
	})
	if err != nil {
		t.Fatal(err)
	}

	err = store.Append(context.Background(), testObservation())

	var perr *models.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected PersistenceError, got %v", err)
	}
	if perr.Store != StoreAudit {
		t.Errorf("Expected audit log failure, got %s", perr.Store)
	}

	// The training row is not rolled back.
	if got := len(readCSV(t, filepath.Join(dir, "training.csv"))); got != 2 {
		t.Errorf("Expected training corpus to keep its row, got %d rows", got)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{TrainingPath: "a.csv"}); err == nil {
		t.Error("Expected error for missing audit path")
	}
	if _, err := New(Config{TrainingPath: "a.csv", AuditPath: "a.csv"}); err == nil {
		t.Error("Expected error for identical paths")
	}
}

func TestFileRejectsWrongWidth(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "x.csv"), []string{"a", "b"})
	if err := f.Append([]string{"1"}); err == nil {
		t.Error("Expected width error")
	}
}
