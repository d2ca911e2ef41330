package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/core"
)

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet"}, nil)
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = New(context.Background(), Config{
		SpreadsheetID:   "sheet",
		CredentialsFile: filepath.Join(t.TempDir(), "missing.json"),
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPublishReportWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.PublishReport(context.Background(), aggregate.Report{}); err == nil {
		t.Fatal("expected error with nil service")
	}
}

type recorder struct {
	mu      sync.Mutex
	methods []string
	values  [][]any
}

func (rec *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.methods = append(rec.methods, r.Method)
	if r.Method == http.MethodPut {
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err == nil {
			rec.values = vr.Values
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{}`))
}

func TestPublishReportClearsThenWrites(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	c := NewWithService(svc, "sheet-id", "", nil)

	now := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)
	report := aggregate.NewReportAggregator(now).Compute([]core.Expense{
		{ID: 1, Title: "Lunch", Amount: decimal.RequireFromString("12.5"), Category: core.Food, Date: now},
	})
	ref, err := c.PublishReport(context.Background(), report)
	if err != nil {
		t.Fatal(err)
	}
	if ref != "Report!A1:C6" {
		t.Fatalf("ref = %s", ref)
	}
	if len(rec.methods) != 2 || rec.methods[0] != http.MethodPost || rec.methods[1] != http.MethodPut {
		t.Fatalf("calls = %v, want clear then update", rec.methods)
	}
	if len(rec.values) < 2 || rec.values[1][0] != "Food" || rec.values[1][1] != "12.5" {
		t.Fatalf("values = %v", rec.values)
	}
}
