package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sportarr/sportarr/internal/history"
	"github.com/sportarr/sportarr/internal/library"
	"github.com/sportarr/sportarr/internal/notification"
	"github.com/sportarr/sportarr/internal/quality"
)

var (
	ErrNoVideoFile       = errors.New("no video file found in download")
	ErrNoRootFolder      = errors.New("event has no root folder configured")
	ErrInsufficientSpace = errors.New("insufficient free space at destination")
)

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true,
	".ts": true, ".m2ts": true, ".wmv": true, ".mov": true,
}

// Catalog is the library surface the importer needs.
type Catalog interface {
	Get(ctx context.Context, id int64) (*library.Event, error)
	SetFile(ctx context.Context, eventID int64, partNumber int, file library.FileMeta) error
}

// History records completed imports.
type History interface {
	RecordImport(ctx context.Context, rec history.ImportRecord) error
}

// Options configures import behavior.
type Options struct {
	NamingTemplate  string
	MinFreeSpaceMB  int64
	SkipFreeSpace   bool
	DeleteAfterMove bool // remove the source after a copy import
}

// ImportNotifier receives import events for delivery to configured sinks.
type ImportNotifier interface {
	NotifyImport(event notification.ImportEvent)
}

// Service moves completed downloads into the library.
type Service struct {
	catalog  Catalog
	hist     History
	opts     Options
	notifier ImportNotifier
	logger   zerolog.Logger
}

// SetNotifier wires import event delivery.
func (s *Service) SetNotifier(notifier ImportNotifier) {
	s.notifier = notifier
}

func NewService(catalog Catalog, hist History, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		catalog: catalog,
		hist:    hist,
		opts:    opts,
		logger:  logger.With().Str("component", "importer").Logger(),
	}
}

// ImportCompleted imports the finished download behind a grab record:
// locate the video file, render its library name, hardlink or copy it
// into the event's folder, and update history and library state.
// Any error leaves the grab for manual retry.
func (s *Service) ImportCompleted(ctx context.Context, grab *history.GrabRecord, contentPath string) error {
	source, size, err := s.findVideoFile(contentPath)
	if err != nil {
		return err
	}

	event, err := s.catalog.Get(ctx, grab.EventID)
	if err != nil {
		return fmt.Errorf("failed to load event %d: %w", grab.EventID, err)
	}
	if event.RootFolder == "" {
		return ErrNoRootFolder
	}

	dest := s.destPath(event, grab, filepath.Ext(source))

	if err := s.checkFreeSpace(event.RootFolder, size); err != nil {
		return err
	}

	oldPath := s.previousFilePath(event, grab.PartNumber)

	method, err := s.linkOrCopy(source, dest)
	if err != nil {
		return fmt.Errorf("failed to place file: %w", err)
	}

	if err := s.hist.RecordImport(ctx, history.ImportRecord{
		GrabID:     grab.ID,
		SourcePath: source,
		DestPath:   dest,
		Method:     method,
	}); err != nil {
		return err
	}

	if err := s.catalog.SetFile(ctx, grab.EventID, grab.PartNumber, library.FileMeta{
		Path:        dest,
		QualityRank: grab.QualityRank,
		FormatScore: grab.FormatScore,
		Size:        size,
	}); err != nil {
		return err
	}

	if oldPath != dest {
		s.deleteUpgradedFile(oldPath, dest)
	}
	if method == MethodCopy && s.opts.DeleteAfterMove {
		if err := os.Remove(source); err != nil {
			s.logger.Warn().Err(err).Str("path", source).Msg("Failed to remove source after copy")
		}
	}

	if s.notifier != nil {
		note := notification.ImportEvent{
			EventTitle: event.Title,
			Part:       grab.PartNumber,
			DestPath:   dest,
			IsUpgrade:  oldPath != "",
			ImportedAt: time.Now().UTC(),
		}
		if q, ok := quality.ByRank(grab.QualityRank); ok {
			note.Quality = q.Name
		}
		s.notifier.NotifyImport(note)
	}

	s.logger.Info().
		Str("grabId", grab.ID).
		Str("dest", dest).
		Str("method", method).
		Msg("Imported file")
	return nil
}

// findVideoFile resolves the content path to a single video file. A
// directory yields its largest video file, which skips samples.
func (s *Service) findVideoFile(contentPath string) (string, int64, error) {
	info, err := os.Stat(contentPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat download content: %w", err)
	}

	if !info.IsDir() {
		if !videoExtensions[strings.ToLower(filepath.Ext(contentPath))] {
			return "", 0, ErrNoVideoFile
		}
		return contentPath, info.Size(), nil
	}

	var best string
	var bestSize int64
	err = filepath.WalkDir(contentPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !videoExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if fi.Size() > bestSize {
			best = path
			bestSize = fi.Size()
		}
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to scan download content: %w", err)
	}
	if best == "" {
		return "", 0, ErrNoVideoFile
	}
	return best, bestSize, nil
}

func (s *Service) destPath(event *library.Event, grab *history.GrabRecord, ext string) string {
	tokens := NameTokens{
		EventTitle: event.Title,
		Sport:      event.Sport,
		Season:     event.Season,
		Part:       grab.PartNumber,
	}
	if !event.AirDate.IsZero() {
		tokens.AirDate = event.AirDate.Format("2006-01-02")
	}
	if grab.PartNumber > 0 {
		if p := event.PartByNumber(grab.PartNumber); p != nil {
			tokens.PartName = p.Name
		}
	}
	if q, ok := quality.ByRank(grab.QualityRank); ok {
		tokens.Quality = q.Name
	}

	name := RenderName(s.opts.NamingTemplate, tokens)
	folder := cleanFilename(event.Title)
	return filepath.Join(event.RootFolder, folder, name+ext)
}

func (s *Service) checkFreeSpace(rootFolder string, need int64) error {
	if s.opts.SkipFreeSpace {
		return nil
	}
	avail, ok := freeSpace(rootFolder)
	if !ok {
		s.logger.Debug().Str("path", rootFolder).Msg("Free space check unavailable, skipping")
		return nil
	}
	reserve := s.opts.MinFreeSpaceMB * 1024 * 1024
	if avail < need+reserve {
		return fmt.Errorf("%w: need %d bytes plus %d reserved, %d available",
			ErrInsufficientSpace, need, reserve, avail)
	}
	return nil
}

// previousFilePath returns the library file being replaced, if any.
func (s *Service) previousFilePath(event *library.Event, partNumber int) string {
	if partNumber > 0 {
		if p := event.PartByNumber(partNumber); p != nil && p.File.HasFile() {
			return p.File.Path
		}
		return ""
	}
	if event.File.HasFile() {
		return event.File.Path
	}
	return ""
}
