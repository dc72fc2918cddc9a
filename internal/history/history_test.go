package history

import (
	"context"
	"errors"
	"testing"

	"github.com/sportarr/sportarr/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	return NewService(tdb.Conn, tdb.Logger)
}

func TestGrabLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	grab, err := svc.CreateGrab(ctx, GrabRecord{
		EventID:      1,
		PartNumber:   2,
		ReleaseTitle: "Grand Prix 2026 Race 1080p WEB-DL",
		ReleaseGUID:  "guid-1",
		IndexerID:    3,
		DownloadURL:  "https://indexer.example/dl/1",
		Size:         1 << 30,
		QualityRank:  10,
		FormatScore:  25,
	})
	if err != nil {
		t.Fatalf("CreateGrab failed: %v", err)
	}
	if grab.ID == "" {
		t.Fatal("Expected generated grab id")
	}
	if grab.State != StateQueued {
		t.Errorf("Expected state %q, got %q", StateQueued, grab.State)
	}

	if err := svc.SetGrabDownload(ctx, grab.ID, 7, "hash123"); err != nil {
		t.Fatalf("SetGrabDownload failed: %v", err)
	}
	if err := svc.SetGrabState(ctx, grab.ID, StateDownloading, ""); err != nil {
		t.Fatalf("SetGrabState failed: %v", err)
	}

	got, err := svc.GetGrab(ctx, grab.ID)
	if err != nil {
		t.Fatalf("GetGrab failed: %v", err)
	}
	if got.ClientID != 7 || got.DownloadID != "hash123" {
		t.Errorf("Download handle not stored: %+v", got)
	}
	if got.State != StateDownloading {
		t.Errorf("Expected state %q, got %q", StateDownloading, got.State)
	}
}

func TestSetGrabStateClearsError(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	grab, err := svc.CreateGrab(ctx, GrabRecord{EventID: 1, ReleaseTitle: "Some Release"})
	if err != nil {
		t.Fatalf("CreateGrab failed: %v", err)
	}

	if err := svc.SetGrabState(ctx, grab.ID, StateFailed, "client rejected"); err != nil {
		t.Fatalf("SetGrabState failed: %v", err)
	}
	got, _ := svc.GetGrab(ctx, grab.ID)
	if got.Error != "client rejected" {
		t.Errorf("Expected error message stored, got %q", got.Error)
	}

	if err := svc.SetGrabState(ctx, grab.ID, StateQueued, "stale message"); err != nil {
		t.Fatalf("SetGrabState failed: %v", err)
	}
	got, _ = svc.GetGrab(ctx, grab.ID)
	if got.Error != "" {
		t.Errorf("Expected error cleared on non-failed state, got %q", got.Error)
	}
}

func TestListActiveGrabs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	queued, _ := svc.CreateGrab(ctx, GrabRecord{EventID: 1, ReleaseTitle: "Queued"})
	downloading, _ := svc.CreateGrab(ctx, GrabRecord{EventID: 1, ReleaseTitle: "Downloading"})
	svc.SetGrabState(ctx, downloading.ID, StateDownloading, "")
	done, _ := svc.CreateGrab(ctx, GrabRecord{EventID: 2, ReleaseTitle: "Done"})
	svc.SetGrabState(ctx, done.ID, StateImported, "")

	active, err := svc.ListActiveGrabs(ctx)
	if err != nil {
		t.Fatalf("ListActiveGrabs failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("Expected 2 active grabs, got %d", len(active))
	}
	for _, g := range active {
		if g.ID != queued.ID && g.ID != downloading.ID {
			t.Errorf("Unexpected active grab: %+v", g)
		}
	}

	forEvent, err := svc.ListGrabsForEvent(ctx, 1)
	if err != nil {
		t.Fatalf("ListGrabsForEvent failed: %v", err)
	}
	if len(forEvent) != 2 {
		t.Errorf("Expected 2 grabs for event 1, got %d", len(forEvent))
	}
}

func TestRecordImportMarksGrabImported(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	grab, err := svc.CreateGrab(ctx, GrabRecord{EventID: 5, ReleaseTitle: "Finished Release"})
	if err != nil {
		t.Fatalf("CreateGrab failed: %v", err)
	}

	err = svc.RecordImport(ctx, ImportRecord{
		GrabID:     grab.ID,
		SourcePath: "/downloads/release/file.mkv",
		DestPath:   "/media/sports/Event/Event.mkv",
		Method:     "hardlink",
	})
	if err != nil {
		t.Fatalf("RecordImport failed: %v", err)
	}

	got, _ := svc.GetGrab(ctx, grab.ID)
	if got.State != StateImported {
		t.Errorf("Expected grab state %q, got %q", StateImported, got.State)
	}

	imports, err := svc.ListImports(ctx, 10)
	if err != nil {
		t.Fatalf("ListImports failed: %v", err)
	}
	if len(imports) != 1 {
		t.Fatalf("Expected 1 import record, got %d", len(imports))
	}
	if imports[0].Method != "hardlink" || imports[0].GrabID != grab.ID {
		t.Errorf("Unexpected import record: %+v", imports[0])
	}
}

func TestGetActiveGrab(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GetActiveGrab(ctx, 1, 0); !errors.Is(err, ErrGrabNotFound) {
		t.Fatalf("Expected ErrGrabNotFound with no records, got %v", err)
	}

	grab, err := svc.CreateGrab(ctx, GrabRecord{EventID: 1, ReleaseTitle: "First Attempt"})
	if err != nil {
		t.Fatalf("CreateGrab failed: %v", err)
	}

	active, err := svc.GetActiveGrab(ctx, 1, 0)
	if err != nil {
		t.Fatalf("GetActiveGrab failed: %v", err)
	}
	if active.ID != grab.ID || active.State != StateQueued {
		t.Errorf("Unexpected active grab: %+v", active)
	}

	// Downloading and completed are still live.
	svc.SetGrabState(ctx, grab.ID, StateCompleted, "")
	if _, err := svc.GetActiveGrab(ctx, 1, 0); err != nil {
		t.Errorf("Completed grab should still be active: %v", err)
	}

	// Terminal states release the target.
	svc.SetGrabState(ctx, grab.ID, StateFailed, "lost")
	if _, err := svc.GetActiveGrab(ctx, 1, 0); !errors.Is(err, ErrGrabNotFound) {
		t.Errorf("Expected ErrGrabNotFound after failure, got %v", err)
	}

	// Another part of the same event does not block the target.
	if _, err := svc.CreateGrab(ctx, GrabRecord{EventID: 1, PartNumber: 2, ReleaseTitle: "Part Two"}); err != nil {
		t.Fatalf("CreateGrab failed: %v", err)
	}
	if _, err := svc.GetActiveGrab(ctx, 1, 0); !errors.Is(err, ErrGrabNotFound) {
		t.Errorf("Part grab should not block the whole-event target, got %v", err)
	}
}

func TestGrabNotFound(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GetGrab(ctx, "missing"); !errors.Is(err, ErrGrabNotFound) {
		t.Errorf("Expected ErrGrabNotFound, got %v", err)
	}
	if err := svc.SetGrabState(ctx, "missing", StateFailed, "x"); !errors.Is(err, ErrGrabNotFound) {
		t.Errorf("Expected ErrGrabNotFound, got %v", err)
	}
}
