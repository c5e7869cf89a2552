// Package watcher streams metric points as they are appended to a tracking dir.
package watcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/tinytrack/ttrack/internal/domain"
)

// Event is one metric point read from a run's metric file.
type Event struct {
	ExperimentID string
	RunID        string
	Metric       domain.Metric
}

type Option func(*Watcher)

// WithFromStart replays points already on disk instead of only new ones.
func WithFromStart() Option {
	return func(w *Watcher) { w.fromStart = true }
}

// WithExperiments restricts events to the given experiment ids.
func WithExperiments(ids ...string) Option {
	return func(w *Watcher) {
		for _, id := range ids {
			w.only[id] = true
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithBuffer sets the capacity of the events channel.
func WithBuffer(n int) Option {
	return func(w *Watcher) { w.buffer = n }
}

// Watcher tails every metrics/<key> file below a tracking root. Directories
// created after start (new experiments, runs, nested keys) are picked up.
type Watcher struct {
	root      string
	fs        *fsnotify.Watcher
	log       *slog.Logger
	fromStart bool
	only      map[string]bool
	buffer    int

	offsets map[string]int64
	events  chan Event
}

func New(root string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &domain.OpError{Op: "watcher.new", Kind: domain.KindInvalidArgument, Path: root, Err: err}
	}
	if st, err := os.Stat(abs); err != nil || !st.IsDir() {
		if err == nil {
			err = fmt.Errorf("not a directory")
		}
		return nil, &domain.OpError{Op: "watcher.new", Kind: domain.KindNotFound, Path: abs, Err: err}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &domain.OpError{Op: "watcher.new", Kind: domain.KindExecution, Err: err}
	}

	w := &Watcher{
		root:    abs,
		fs:      fw,
		log:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
		only:    map[string]bool{},
		buffer:  64,
		offsets: map[string]int64{},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.events = make(chan Event, w.buffer)

	if err := w.addTree(abs, !w.fromStart); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// Close releases the underlying watch without running.
func (w *Watcher) Close() error { return w.fs.Close() }

// Events is closed when Run returns.
func (w *Watcher) Events() <-chan Event { return w.events }

// Run processes file system events until ctx is done. Existing points are
// emitted first when WithFromStart is set.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.fs.Close()

	if w.fromStart {
		for path := range w.offsets {
			if err := w.readNew(ctx, path); err != nil {
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if err := w.handle(ctx, ev); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				w.log.Warn("watch.event_failed", "path", ev.Name, "err", err)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch.error", "err", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) error {
	path := filepath.Clean(ev.Name)

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		for p := range w.offsets {
			if p == path || strings.HasPrefix(p, path+string(filepath.Separator)) {
				delete(w.offsets, p)
			}
		}
		return nil
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return nil
	}

	st, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if st.IsDir() {
		if !ev.Has(fsnotify.Create) {
			return nil
		}
		if err := w.addTree(path, false); err != nil {
			return err
		}
		// Files written before the watch was added.
		for p := range w.offsets {
			if strings.HasPrefix(p, path+string(filepath.Separator)) {
				if err := w.readNew(ctx, p); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if _, _, _, ok := w.parseMetricPath(path); !ok {
		return nil
	}
	if _, seen := w.offsets[path]; !seen {
		w.offsets[path] = 0
	}
	return w.readNew(ctx, path)
}

// addTree watches dir and its subdirectories and registers metric files.
// tail starts registered files at their current size.
func (w *Watcher) addTree(dir string, tail bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return &domain.OpError{Op: "watcher.add", Kind: domain.KindExecution, Path: path, Err: err}
			}
			return nil
		}
		if d.IsDir() {
			if path != w.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if path != w.root && !w.wanted(path) {
				return filepath.SkipDir
			}
			if err := w.fs.Add(path); err != nil {
				return &domain.OpError{Op: "watcher.add", Kind: domain.KindExecution, Path: path, Err: err}
			}
			return nil
		}

		if _, _, _, ok := w.parseMetricPath(path); !ok {
			return nil
		}
		if _, seen := w.offsets[path]; seen {
			return nil
		}
		var off int64
		if tail {
			if info, err := d.Info(); err == nil {
				off = info.Size()
			}
		}
		w.offsets[path] = off
		return nil
	})
}

func (w *Watcher) wanted(path string) bool {
	if len(w.only) == 0 {
		return true
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	exp, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return w.only[exp]
}

// parseMetricPath maps <root>/<exp>/<run>/metrics/<key...> to its parts.
func (w *Watcher) parseMetricPath(path string) (exp, run, key string, ok bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", "", "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 4 || parts[2] != "metrics" {
		return "", "", "", false
	}
	for _, p := range parts {
		if p == ".." || strings.HasPrefix(p, ".") {
			return "", "", "", false
		}
	}
	if len(w.only) > 0 && !w.only[parts[0]] {
		return "", "", "", false
	}
	return parts[0], parts[1], strings.Join(parts[3:], "/"), true
}

// readNew emits complete lines past the stored offset. A trailing partial
// line is left for the next write.
func (w *Watcher) readNew(ctx context.Context, path string) error {
	exp, run, key, ok := w.parseMetricPath(path)
	if !ok {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			delete(w.offsets, path)
			return nil
		}
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	off := w.offsets[path]
	if st.Size() < off {
		off = 0
	}
	if st.Size() == off {
		return nil
	}
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil
	}
	w.offsets[path] = off + int64(end) + 1

	for _, line := range strings.Split(string(data[:end]), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m, err := domain.ParseMetricLine(key, line)
		if err != nil {
			w.log.Warn("watch.bad_line", "path", path, "line", line, "err", err)
			continue
		}
		select {
		case w.events <- Event{ExperimentID: exp, RunID: run, Metric: m}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
