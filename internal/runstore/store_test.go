package runstore_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	_ "modernc.org/sqlite"

	"storyloom/internal/pipeline"
	"storyloom/internal/runstore"
	"storyloom/internal/services"
	"storyloom/internal/storyboard"
	"storyloom/internal/testsupport"
)

func TestCreateAndComplete(t *testing.T) {
	store := testsupport.MustOpenRunStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	params := storyboard.Params{AspectRatio: "16:9", TargetLength: "short", Style: "noir"}
	run, err := store.Create(ctx, "  detective story ", params)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if run.ID == "" || run.Topic != "detective story" || run.Status != runstore.StatusRunning {
		t.Fatalf("unexpected run %+v", run)
	}
	if run.Params != params {
		t.Fatalf("params = %+v, want %+v", run.Params, params)
	}
	if err := store.AttachWorkspace(ctx, run.ID, "/work/10-19-09-30-abcd"); err != nil {
		t.Fatalf("AttachWorkspace failed: %v", err)
	}

	events := []string{"[init] completed in 1ms", "Script generated with 2 scenes", "Video rendered: /out/final.mp4"}
	if err := store.Complete(ctx, run.ID, "/out/final.mp4", events); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	got, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != runstore.StatusCompleted || got.FinalPath != "/out/final.mp4" || got.FinishedAt == nil {
		t.Fatalf("unexpected completed run %+v", got)
	}
	if got.Workspace != "/work/10-19-09-30-abcd" {
		t.Fatalf("workspace = %q", got.Workspace)
	}
	stored, err := store.Events(ctx, run.ID)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if !reflect.DeepEqual(stored, events) {
		t.Fatalf("events = %v, want %v", stored, events)
	}
}

func TestCompleteWithoutOutput(t *testing.T) {
	store := testsupport.MustOpenRunStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run, err := store.Create(ctx, "rain", storyboard.Params{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Complete(ctx, run.ID, "", []string{"render failed: boom"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	got, _ := store.Get(ctx, run.ID)
	if got.Status != runstore.StatusNoOutput {
		t.Fatalf("status = %q, want %q", got.Status, runstore.StatusNoOutput)
	}
}

func TestFailRecordsKind(t *testing.T) {
	store := testsupport.MustOpenRunStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run, err := store.Create(ctx, "rain", storyboard.Params{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	runErr := services.Wrap(services.ErrValidation, "script", "seed", "", pipeline.ErrEmptyScript)
	if err := store.Fail(ctx, run.ID, runErr, []string{"Error: script produced no scenes"}); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	got, _ := store.Get(ctx, run.ID)
	if got.Status != runstore.StatusFailed || got.ErrorKind != "validation" || got.ErrorMessage == "" {
		t.Fatalf("unexpected failed run %+v", got)
	}
	// finishing again replaces the event log
	if err := store.Fail(ctx, run.ID, nil, []string{"again"}); err != nil {
		t.Fatalf("second Fail failed: %v", err)
	}
	events, _ := store.Events(ctx, run.ID)
	if len(events) != 1 || events[0] != "again" {
		t.Fatalf("events = %v", events)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := testsupport.MustOpenRunStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	var ids []string
	for _, topic := range []string{"one", "two", "three"} {
		run, err := store.Create(ctx, topic, storyboard.Params{})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, run.ID)
	}
	runs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("unexpected order: %v", runs)
	}
	all, _ := store.List(ctx, 0)
	if len(all) != 3 {
		t.Fatalf("expected all runs, got %d", len(all))
	}
}

func TestGetByPrefixAndMissing(t *testing.T) {
	store := testsupport.MustOpenRunStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run, err := store.Create(ctx, "prefix", storyboard.Params{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := store.Get(ctx, run.ID[:8])
	if err != nil || got.ID != run.ID {
		t.Fatalf("prefix lookup = %+v, %v", got, err)
	}
	if _, err := store.Get(ctx, "ffffffff-0000"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Complete(ctx, "missing", "", nil); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found on complete, got %v", err)
	}
}

func TestFailRunning(t *testing.T) {
	store := testsupport.MustOpenRunStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	a, _ := store.Create(ctx, "a", storyboard.Params{})
	b, _ := store.Create(ctx, "b", storyboard.Params{})
	if err := store.Complete(ctx, b.ID, "/out/b.mp4", nil); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	n, err := store.FailRunning(ctx, "interrupted")
	if err != nil || n != 1 {
		t.Fatalf("FailRunning = %d, %v", n, err)
	}
	got, _ := store.Get(ctx, a.ID)
	if got.Status != runstore.StatusFailed {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := runstore.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := runstore.Open(path); !errors.Is(err, runstore.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
