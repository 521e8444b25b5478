package runstore_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tailor/internal/pipeline"
	"tailor/internal/runstore"
	"tailor/internal/services"
	"tailor/internal/services/llm"
	"tailor/internal/testsupport"
)

func TestBeginAndFinishCompletedRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.Begin(ctx, runstore.Start{
		RequestID: "req-1",
		Pipeline:  "keywords",
		Inputs:    map[string]any{"text": "Go services"},
	}); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	record, err := store.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Status != runstore.StatusRunning || record.Terminal() {
		t.Fatalf("expected running record, got %s", record.Status)
	}

	run := &pipeline.Run{
		RequestID: "req-1",
		Pipeline:  "keywords",
		Status:    pipeline.StatusCompleted,
		Stages: []pipeline.StageResult{{
			Name: "keywords", Status: pipeline.StatusCompleted, ParseOutcome: "structured",
			Parsed: []string{"Go", "Services", "APIs"},
		}},
		Output:   map[string]any{"keywords": []string{"Go", "Services", "APIs"}},
		Tokens:   llm.Tokens{Prompt: 10, Completion: 5, Total: 15},
		Duration: 1500 * time.Millisecond,
	}
	if err := store.Finish(ctx, run); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	record, err = store.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Status != runstore.StatusCompleted || record.Tokens.Total != 15 || record.DurationMs != 1500 {
		t.Fatalf("unexpected record %+v", record)
	}
	var output map[string][]string
	if err := json.Unmarshal(record.Output, &output); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(output["keywords"]) != 3 {
		t.Fatalf("unexpected output %v", output)
	}
	if len(record.Stages) != 1 || record.Stages[0].ParseOutcome != "structured" {
		t.Fatalf("unexpected stages %+v", record.Stages)
	}
	var inputs map[string]string
	if err := json.Unmarshal(record.Inputs, &inputs); err != nil || inputs["text"] != "Go services" {
		t.Fatalf("unexpected inputs %s (%v)", record.Inputs, err)
	}
}

func TestFinishRecordsErrorKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.Begin(ctx, runstore.Start{RequestID: "req-err", Pipeline: "resume"}); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	err := store.Finish(ctx, &pipeline.Run{
		RequestID:   "req-err",
		Status:      pipeline.StatusError,
		FailedStage: "experience",
		Err:         services.Wrap(services.ErrTransport, "experience", "invoke", "all providers failed", nil),
	})
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	record, err := store.Get(ctx, "req-err")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Status != runstore.StatusError || record.ErrorKind != "transport" || record.FailedStage != "experience" {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.Output != nil {
		t.Fatalf("failed run must not persist output, got %s", record.Output)
	}
}

func TestGetUnknownRunIsNotFound(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	err := store.Finish(context.Background(), &pipeline.Run{RequestID: "missing", Status: pipeline.StatusCompleted})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found finishing unknown run, got %v", err)
	}
}

func TestListBatchOrdersByItemIndex(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for _, idx := range []int{2, 0, 1} {
		i := idx
		if err := store.Begin(ctx, runstore.Start{
			RequestID: "item-" + string(rune('a'+i)),
			Pipeline:  "keywords",
			BatchID:   "batch-1",
			ItemIndex: &i,
		}); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
	}
	if err := store.Begin(ctx, runstore.Start{RequestID: "solo", Pipeline: "keywords"}); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	records, err := store.ListBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("ListBatch failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 batch records, got %d", len(records))
	}
	for i, record := range records {
		if record.ItemIndex == nil || *record.ItemIndex != i {
			t.Fatalf("record %d has index %v", i, record.ItemIndex)
		}
	}

	all, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(all))
	}
}

func TestResetInterruptedAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.Begin(ctx, runstore.Start{RequestID: id, Pipeline: "keywords"}); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
	}
	if err := store.Finish(ctx, &pipeline.Run{RequestID: "a", Status: pipeline.StatusCompleted}); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	reset, err := store.ResetInterrupted(ctx)
	if err != nil {
		t.Fatalf("ResetInterrupted failed: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected one interrupted run, got %d", reset)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 2 || health.Completed != 1 || health.Failed != 1 || health.Running != 0 {
		t.Fatalf("unexpected health %+v", health)
	}

	db, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !db.IntegrityOK || db.SchemaVersion != 1 || db.Records != 2 || db.Path != cfg.RunStorePath() {
		t.Fatalf("unexpected database health %+v", db)
	}
}

func TestPruneRemovesOnlyFinishedRuns(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for _, id := range []string{"done", "active"} {
		if err := store.Begin(ctx, runstore.Start{RequestID: id, Pipeline: "keywords"}); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
	}
	if err := store.Finish(ctx, &pipeline.Run{RequestID: "done", Status: pipeline.StatusCompleted}); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	removed, err := store.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one pruned run, got %d", removed)
	}
	if _, err := store.Get(ctx, "active"); err != nil {
		t.Fatalf("running record must survive prune: %v", err)
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := runstore.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Begin(context.Background(), runstore.Start{RequestID: "persisted", Pipeline: "resume"}); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	store.Close()

	reopened := testsupport.MustOpenStore(t, cfg)
	if _, err := reopened.Get(context.Background(), "persisted"); err != nil {
		t.Fatalf("expected record after reopen: %v", err)
	}
}

func TestOpenRefusesOtherSchemaVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := runstore.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", cfg.RunStorePath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 7"); err != nil {
		t.Fatalf("stamp version: %v", err)
	}
	db.Close()

	if _, err := runstore.Open(cfg); !errors.Is(err, runstore.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestBeginRejectsReusedRequestID(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.Begin(ctx, runstore.Start{RequestID: "dup", Pipeline: "keywords"}); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	err := store.Begin(ctx, runstore.Start{RequestID: "dup", Pipeline: "resume"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for reused id, got %v", err)
	}
	record, err := store.Get(ctx, "dup")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Pipeline != "keywords" {
		t.Fatalf("original record overwritten: %+v", record)
	}
}
