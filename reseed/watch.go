package reseed

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jkaberg/reseed/torrent"
)

// BatchFunc imports the named files from the watched folder.
type BatchFunc func(ctx context.Context, names []string)

// Watcher follows a torrent folder and hands torrent files that appear in it
// to a follow-up batch once they have been quiet for one interval.
type Watcher struct {
	dir      string
	interval time.Duration
	w        *fsnotify.Watcher
	batch    BatchFunc
	log      zerolog.Logger

	pending  map[string]time.Time
	imported map[string]struct{}
}

func NewWatcher(dir string, interval time.Duration, batch BatchFunc) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating folder watcher: %w", err)
	}

	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("error watching torrent folder %s: %w", dir, err)
	}

	return &Watcher{
		dir:      filepath.Clean(dir),
		interval: interval,
		w:        w,
		batch:    batch,
		log:      log.Logger.With().Str("component", "watcher").Str("folder", dir).Logger(),
		pending:  make(map[string]time.Time),
	}, nil
}

// Run blocks until ctx is done. Batches run on the calling goroutine, so
// events arriving meanwhile are picked up by the next one.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	w.log.Info().Dur("interval", w.interval).Msg("watching for new torrent files")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			w.observe(event, time.Now())
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("watcher error")
		case now := <-t.C:
			if names := w.ready(now); len(names) != 0 {
				w.log.Info().Strs("files", names).Msg("new torrent files found")
				w.batch(ctx, names)
			}
		}
	}
}

// Imported marks names an earlier batch already handled, so that the events
// their creation queued up do not import them twice. Marks are cleared once
// those events are consumed. Call it before Run.
func (w *Watcher) Imported(names []string) {
	if w.imported == nil {
		w.imported = make(map[string]struct{}, len(names))
	}
	for _, name := range names {
		w.imported[name] = struct{}{}
	}
}

func (w *Watcher) Close() error {
	return w.w.Close()
}

func (w *Watcher) observe(event fsnotify.Event, at time.Time) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if filepath.Dir(event.Name) != w.dir {
		return
	}

	name := filepath.Base(event.Name)
	if !torrent.IsDescriptor(name) {
		return
	}

	w.pending[name] = at
}

// ready removes and returns the pending names that saw no event during the
// last interval. Names marked as imported are dropped instead.
func (w *Watcher) ready(now time.Time) []string {
	if len(w.pending) == 0 {
		w.imported = nil
		return nil
	}

	var names []string
	for name, last := range w.pending {
		if now.Sub(last) < w.interval {
			continue
		}
		delete(w.pending, name)

		if _, ok := w.imported[name]; ok {
			delete(w.imported, name)
			w.log.Debug().Str("file", name).Msg("already imported, skipping")
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
