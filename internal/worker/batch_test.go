package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/freightaudit/internal/model"
)

// mockAuditor implements Auditor
type mockAuditor struct {
	failOn string
}

func (m *mockAuditor) AuditFile(ctx context.Context, source string) (*model.AuditReport, error) {
	time.Sleep(5 * time.Millisecond) // Simulate work
	if m.failOn != "" && strings.Contains(source, m.failOn) {
		return nil, errors.New("audit error")
	}
	return &model.AuditReport{Source: source}, nil
}

func TestBatchProcessor_ProcessSources(t *testing.T) {
	processor := NewBatchProcessor(&mockAuditor{}, 2)

	sources := []string{"a.csv", "b.csv", "c.csv", "d.csv", "e.csv"}
	results := processor.ProcessSources(context.Background(), sources)

	if len(results) != len(sources) {
		t.Fatalf("expected %d results, got %d", len(sources), len(results))
	}

	for i, res := range results {
		if res.Error != nil {
			t.Errorf("unexpected error for %s: %v", res.Source, res.Error)
			continue
		}
		if res.Source != sources[i] {
			t.Errorf("result %d: expected source %s, got %s", i, sources[i], res.Source)
		}
		if res.Report == nil || res.Report.Source != sources[i] {
			t.Errorf("result %d: report does not belong to %s", i, sources[i])
		}
	}

	processed, failed := processor.Progress()
	if processed != 5 || failed != 0 {
		t.Errorf("expected progress 5/0, got %d/%d", processed, failed)
	}
}

func TestBatchProcessor_ProcessSources_Error(t *testing.T) {
	processor := NewBatchProcessor(&mockAuditor{failOn: "bad"}, 2)

	results := processor.ProcessSources(context.Background(), []string{"good.csv", "bad.csv"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	if results[0].Error != nil {
		t.Errorf("expected success for good.csv, got %v", results[0].Error)
	}
	if results[1].Error == nil {
		t.Error("expected error for bad.csv, got nil")
	}
	if results[1].Report != nil {
		t.Error("expected nil report on error")
	}

	_, failed := processor.Progress()
	if failed != 1 {
		t.Errorf("expected 1 failure, got %d", failed)
	}
}

func TestBatchProcessor_ProcessSources_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockAuditor{}, 2)

	results := processor.ProcessSources(context.Background(), []string{})
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_ProcessSources_Cancelled(t *testing.T) {
	processor := NewBatchProcessor(&mockAuditor{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := processor.ProcessSources(ctx, []string{"a.csv", "b.csv"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if res == nil {
			t.Fatal("expected a result for every source")
		}
	}
}

func TestReadSourcesFromFile(t *testing.T) {
	content := `shipments/jan.csv
# comment
shipments/feb.csv

shipments/jan.csv
https://example.com/mar.csv   `

	path := filepath.Join(t.TempDir(), "sources.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sources, err := ReadSourcesFromFile(path)
	if err != nil {
		t.Fatalf("ReadSourcesFromFile failed: %v", err)
	}

	expected := []string{"shipments/jan.csv", "shipments/feb.csv", "https://example.com/mar.csv"}
	if len(sources) != len(expected) {
		t.Fatalf("expected %d sources, got %d", len(expected), len(sources))
	}

	for i, s := range sources {
		if s != expected[i] {
			t.Errorf("expected source %s at index %d, got %s", expected[i], i, s)
		}
	}
}

func TestReadSourcesFromFile_NonExistent(t *testing.T) {
	_, err := ReadSourcesFromFile("non_existent_file.txt")
	if err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestAuditResult_GetError(t *testing.T) {
	r1 := &AuditResult{Source: "a.csv"}
	if r1.GetError() != nil {
		t.Errorf("expected nil error, got %v", r1.GetError())
	}

	expected := errors.New("audit failed")
	r2 := &AuditResult{Source: "a.csv", Error: expected}
	if r2.GetError() != expected {
		t.Errorf("expected %v, got %v", expected, r2.GetError())
	}
}
