package recording

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Vikasalagarsamy/OOAK-AI/pkg/logging"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/models"
)

// Scanner enumerates candidate recordings under a set of vendor storage
// roots. Roots are routinely missing or unreadable on any given device;
// the scan skips them and continues.
type Scanner struct {
	roots      []string
	extensions map[string]struct{}
	window     time.Duration
	logger     logging.Logger
}

// NewScanner builds a scanner over the given roots. extensions are
// lowercase with leading dot; window bounds how far a file's mtime may sit
// from the call's ringing start.
func NewScanner(roots, extensions []string, window time.Duration, logger logging.Logger) *Scanner {
	extSet := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		extSet[strings.ToLower(ext)] = struct{}{}
	}
	return &Scanner{
		roots:      roots,
		extensions: extSet,
		window:     window,
		logger:     logger,
	}
}

// Scan lists audio files across all roots whose modification time falls
// within the window around the given call start. Results are ordered by
// modification time, newest first, so the freshest recording is considered
// before stale ones.
func (s *Scanner) Scan(ctx context.Context, callStart time.Time) []models.RecordingCandidate {
	var candidates []models.RecordingCandidate

	for _, root := range s.roots {
		select {
		case <-ctx.Done():
			return candidates
		default:
		}

		entries, err := os.ReadDir(root)
		if err != nil {
			s.logger.WithFields(logging.Fields{
				"root": root,
			}).WithError(err).Debug("Skipping unreadable storage root")
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if _, ok := s.extensions[ext]; !ok {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if !s.withinWindow(info.ModTime(), callStart) {
				continue
			}
			candidates = append(candidates, models.RecordingCandidate{
				Path:      filepath.Join(root, entry.Name()),
				Name:      entry.Name(),
				SizeBytes: info.Size(),
				ModTime:   info.ModTime(),
				Extension: ext,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ModTime.After(candidates[j].ModTime)
	})
	return candidates
}

// Stat builds a candidate for one concrete path, applying the same
// extension filter as a full scan. Used by the live watch, which hands the
// scanner single paths instead of directories.
func (s *Scanner) Stat(path string) (models.RecordingCandidate, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := s.extensions[ext]; !ok {
		return models.RecordingCandidate{}, false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return models.RecordingCandidate{}, false
	}
	return models.RecordingCandidate{
		Path:      path,
		Name:      filepath.Base(path),
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
		Extension: ext,
	}, true
}

// InWindow reports whether a file's modification time falls within the
// scanner's match window of the call start. Single-path candidates from the
// live watch go through this so they obey the same temporal filter as a
// full scan.
func (s *Scanner) InWindow(modTime, callStart time.Time) bool {
	return s.withinWindow(modTime, callStart)
}

func (s *Scanner) withinWindow(modTime, callStart time.Time) bool {
	if s.window <= 0 {
		return true
	}
	diff := modTime.Sub(callStart)
	if diff < 0 {
		diff = -diff
	}
	return diff <= s.window
}
