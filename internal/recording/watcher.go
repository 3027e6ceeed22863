package recording

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/Vikasalagarsamy/OOAK-AI/pkg/logging"
)

// Watcher observes the storage roots for freshly written audio files and
// reports their paths. Vendors create the file at call start and keep
// writing until hangup, so both create and write events are interesting;
// the consumer debounces by re-statting the path when it acts.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	extensions map[string]struct{}
	notify     func(path string)
	logger     logging.Logger
	stopCh     chan struct{}
}

// NewWatcher builds a watcher over the given roots. Roots that do not exist
// are skipped; if none can be watched the watcher still starts and simply
// never fires (the periodic sweep covers discovery then).
func NewWatcher(roots, extensions []string, notify func(path string), logger logging.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := 0
	for _, root := range roots {
		if err := fsWatcher.Add(root); err != nil {
			logger.WithFields(logging.Fields{
				"root": root,
			}).WithError(err).Debug("Storage root not watchable")
			continue
		}
		watched++
	}
	logger.WithFields(logging.Fields{
		"watched": watched,
		"roots":   len(roots),
	}).Info("Recording watch started")

	extSet := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		extSet[strings.ToLower(ext)] = struct{}{}
	}

	w := &Watcher{
		fsWatcher:  fsWatcher,
		extensions: extSet,
		notify:     notify,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			ext := strings.ToLower(filepath.Ext(event.Name))
			if _, interested := w.extensions[ext]; !interested {
				continue
			}
			w.logger.WithFields(logging.Fields{
				"path": event.Name,
				"op":   event.Op.String(),
			}).Debug("Recording file activity")
			w.notify(event.Name)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Recording watch error")
		}
	}
}

// Stop terminates the watch loop and releases the underlying watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	_ = w.fsWatcher.Close()
}
