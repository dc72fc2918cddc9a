package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sportarr/sportarr/internal/history"
	"github.com/sportarr/sportarr/internal/library"
)

type fakeCatalog struct {
	event    *library.Event
	setCalls []library.FileMeta
	setPart  int
}

func (f *fakeCatalog) Get(context.Context, int64) (*library.Event, error) {
	if f.event == nil {
		return nil, library.ErrEventNotFound
	}
	return f.event, nil
}

func (f *fakeCatalog) SetFile(_ context.Context, _ int64, partNumber int, file library.FileMeta) error {
	f.setCalls = append(f.setCalls, file)
	f.setPart = partNumber
	return nil
}

type fakeHistory struct {
	imports []history.ImportRecord
}

func (f *fakeHistory) RecordImport(_ context.Context, rec history.ImportRecord) error {
	f.imports = append(f.imports, rec)
	return nil
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testEvent(root string) *library.Event {
	return &library.Event{
		ID:         1,
		Title:      "Grand Prix 2026",
		Sport:      "motorsport",
		Season:     2026,
		AirDate:    time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC),
		RootFolder: root,
	}
}

func testGrab() *history.GrabRecord {
	return &history.GrabRecord{
		ID:          "grab-1",
		EventID:     1,
		QualityRank: 10, // WEBDL-1080p
		FormatScore: 50,
	}
}

func newTestService(catalog Catalog, hist History, opts Options) *Service {
	return NewService(catalog, hist, opts, zerolog.Nop())
}

func TestImportCompletedHardlink(t *testing.T) {
	tmp := t.TempDir()
	source := filepath.Join(tmp, "downloads", "Grand.Prix.2026.1080p.WEB-DL.mkv")
	writeFile(t, source, 4096)

	root := filepath.Join(tmp, "library")
	catalog := &fakeCatalog{event: testEvent(root)}
	hist := &fakeHistory{}
	svc := newTestService(catalog, hist, Options{SkipFreeSpace: true})

	if err := svc.ImportCompleted(context.Background(), testGrab(), source); err != nil {
		t.Fatalf("ImportCompleted: %v", err)
	}

	if len(hist.imports) != 1 {
		t.Fatalf("recorded %d imports, want 1", len(hist.imports))
	}
	rec := hist.imports[0]
	if rec.Method != MethodHardlink {
		t.Errorf("method = %q, want hardlink (same filesystem)", rec.Method)
	}
	if _, err := os.Stat(rec.DestPath); err != nil {
		t.Errorf("dest file missing: %v", err)
	}
	if _, err := os.Stat(source); err != nil {
		t.Errorf("source should survive a hardlink import: %v", err)
	}

	want := filepath.Join(root, "Grand Prix 2026", "Grand Prix 2026 - WEBDL-1080p.mkv")
	if rec.DestPath != want {
		t.Errorf("dest = %q, want %q", rec.DestPath, want)
	}

	if len(catalog.setCalls) != 1 {
		t.Fatalf("SetFile called %d times, want 1", len(catalog.setCalls))
	}
	file := catalog.setCalls[0]
	if file.QualityRank != 10 || file.FormatScore != 50 || file.Size != 4096 {
		t.Errorf("file meta = %+v, want rank 10 score 50 size 4096", file)
	}
}

func TestImportCompletedPicksLargestVideo(t *testing.T) {
	tmp := t.TempDir()
	content := filepath.Join(tmp, "downloads", "Grand.Prix.2026")
	writeFile(t, filepath.Join(content, "sample.mkv"), 100)
	writeFile(t, filepath.Join(content, "grand.prix.2026.mkv"), 9000)
	writeFile(t, filepath.Join(content, "grand.prix.2026.nfo"), 200)

	catalog := &fakeCatalog{event: testEvent(filepath.Join(tmp, "library"))}
	hist := &fakeHistory{}
	svc := newTestService(catalog, hist, Options{SkipFreeSpace: true})

	if err := svc.ImportCompleted(context.Background(), testGrab(), content); err != nil {
		t.Fatalf("ImportCompleted: %v", err)
	}

	if got := hist.imports[0].SourcePath; filepath.Base(got) != "grand.prix.2026.mkv" {
		t.Errorf("imported %q, want the largest video file", got)
	}
	if catalog.setCalls[0].Size != 9000 {
		t.Errorf("size = %d, want 9000", catalog.setCalls[0].Size)
	}
}

func TestImportCompletedNoVideoFile(t *testing.T) {
	tmp := t.TempDir()
	content := filepath.Join(tmp, "downloads", "bad")
	writeFile(t, filepath.Join(content, "readme.txt"), 100)

	catalog := &fakeCatalog{event: testEvent(filepath.Join(tmp, "library"))}
	svc := newTestService(catalog, &fakeHistory{}, Options{SkipFreeSpace: true})

	err := svc.ImportCompleted(context.Background(), testGrab(), content)
	if !errors.Is(err, ErrNoVideoFile) {
		t.Errorf("err = %v, want ErrNoVideoFile", err)
	}
}

func TestImportCompletedUpgradeDeletesOldFile(t *testing.T) {
	tmp := t.TempDir()
	source := filepath.Join(tmp, "downloads", "Grand.Prix.2026.2160p.mkv")
	writeFile(t, source, 4096)

	root := filepath.Join(tmp, "library")
	old := filepath.Join(root, "Grand Prix 2026", "Grand Prix 2026 - HDTV-720p.mkv")
	writeFile(t, old, 1000)

	event := testEvent(root)
	event.File = library.FileMeta{Path: old, QualityRank: 4, Size: 1000}
	catalog := &fakeCatalog{event: event}
	svc := newTestService(catalog, &fakeHistory{}, Options{SkipFreeSpace: true})

	grab := testGrab()
	grab.QualityRank = 15
	if err := svc.ImportCompleted(context.Background(), grab, source); err != nil {
		t.Fatalf("ImportCompleted: %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("old file should be deleted after upgrade, stat err = %v", err)
	}
}

func TestImportCompletedInsufficientSpace(t *testing.T) {
	tmp := t.TempDir()
	source := filepath.Join(tmp, "downloads", "big.mkv")
	writeFile(t, source, 4096)

	catalog := &fakeCatalog{event: testEvent(filepath.Join(tmp, "library"))}
	hist := &fakeHistory{}
	// Reserve more space than any test machine has free.
	svc := newTestService(catalog, hist, Options{MinFreeSpaceMB: 1 << 40})

	err := svc.ImportCompleted(context.Background(), testGrab(), source)
	if !errors.Is(err, ErrInsufficientSpace) {
		t.Fatalf("err = %v, want ErrInsufficientSpace", err)
	}
	if len(hist.imports) != 0 {
		t.Errorf("no import should be recorded on failure")
	}
}

func TestImportCompletedPartFile(t *testing.T) {
	tmp := t.TempDir()
	source := filepath.Join(tmp, "downloads", "quali.mkv")
	writeFile(t, source, 2048)

	root := filepath.Join(tmp, "library")
	event := testEvent(root)
	event.Parts = []library.Part{
		{EventID: 1, PartNumber: 1, Name: "Qualifying", Monitored: true},
		{EventID: 1, PartNumber: 2, Name: "Race", Monitored: true},
	}
	catalog := &fakeCatalog{event: event}
	hist := &fakeHistory{}
	svc := newTestService(catalog, hist, Options{SkipFreeSpace: true})

	grab := testGrab()
	grab.PartNumber = 1
	if err := svc.ImportCompleted(context.Background(), grab, source); err != nil {
		t.Fatalf("ImportCompleted: %v", err)
	}

	if catalog.setPart != 1 {
		t.Errorf("SetFile part = %d, want 1", catalog.setPart)
	}
	want := filepath.Join(root, "Grand Prix 2026", "Grand Prix 2026 - Part 1 - WEBDL-1080p.mkv")
	if got := hist.imports[0].DestPath; got != want {
		t.Errorf("dest = %q, want %q", got, want)
	}
}
