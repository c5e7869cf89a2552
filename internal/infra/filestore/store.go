package filestore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/infra/idgen"
	"github.com/tinytrack/ttrack/internal/ports"
)

const (
	metaFile     = "meta.yaml"
	paramsDir    = "params"
	metricsDir   = "metrics"
	tagsDir      = "tags"
	artifactsDir = "artifacts"
)

// Store is an MLflow FileStore-compatible tracking store rooted at a directory:
//
//	<root>/<experiment_id>/meta.yaml
//	<root>/<experiment_id>/<run_id>/{meta.yaml,params/,metrics/,tags/,artifacts/}
//
// A Store is safe for concurrent use. Mutations are serialized so that
// check-then-write sequences (param immutability, experiment name uniqueness)
// and metric appends from concurrent loggers do not interleave.
type Store struct {
	root string
	ids  ports.IDGenerator
	now  func() time.Time
	log  *slog.Logger

	mu sync.Mutex
	// live caches runs already checked to exist and be active, keyed by
	// "<experiment>/<run>". Cleared on lifecycle changes made through this Store.
	live map[string]bool
}

type Option func(*Store)

// WithNow is useful for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDs(ids ports.IDGenerator) Option {
	return func(s *Store) { s.ids = ids }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func New(root string, opts ...Option) *Store {
	s := &Store{
		root: filepath.Clean(root),
		ids:  idgen.New(),
		now:  time.Now,
		log:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		live: map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.TrackingStore = (*Store)(nil)

func (s *Store) Root() string { return s.root }

func (s *Store) experimentDir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Store) runDir(experimentID, runID string) string {
	return filepath.Join(s.root, experimentID, runID)
}

// keyPath maps a validated key (which may contain '/') into dir.
func keyPath(dir, key string) string {
	return filepath.Join(dir, filepath.FromSlash(key))
}

// validateID rejects ids that are not a single path element.
func validateID(op, what, id string) error {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") ||
		strings.ContainsAny(id, `/\`) {
		return &domain.OpError{
			Op:   op,
			Kind: domain.KindInvalidArgument,
			Err:  fmt.Errorf("invalid %s id %q", what, id),
		}
	}
	return nil
}

// tmpSuffix ends every temp file name. "~" is outside the key charset, so a
// temp file never collides with a param, tag or metric file.
const tmpSuffix = "~"

func isTempFile(name string) bool { return strings.HasSuffix(name, tmpSuffix) }

// writeFileAtomic writes to a temp file in the same directory and renames it into place.
func writeFileAtomic(op, path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*"+tmpSuffix)
	if err != nil {
		return &domain.OpError{
			Op:   op + ".write",
			Kind: domain.KindExecution,
			Path: path,
			Err:  err,
		}
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if err == nil {
		err = f.Chmod(perm)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return &domain.OpError{
			Op:   op + ".write",
			Kind: domain.KindExecution,
			Path: tmp,
			Err:  err,
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &domain.OpError{
			Op:   op + ".rename",
			Kind: domain.KindExecution,
			Path: path,
			Err:  err,
		}
	}
	return nil
}

func mkdirAll(op, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &domain.OpError{
			Op:   op + ".mkdir",
			Kind: domain.KindExecution,
			Path: dir,
			Err:  err,
		}
	}
	return nil
}

// readError classifies a read failure: missing files are KindNotFound.
func readError(op, path string, err error) error {
	kind := domain.KindExecution
	if errors.Is(err, os.ErrNotExist) {
		kind = domain.KindNotFound
	}
	return &domain.OpError{Op: op, Kind: kind, Path: path, Err: err}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// fromEpoch accepts milliseconds, and seconds for meta files written by
// older tiny-track builds (values below 1e11 cannot be millisecond stamps
// after 1973).
func fromEpoch(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	if v < 1e11 {
		return time.Unix(v, 0).UTC()
	}
	return time.UnixMilli(v).UTC()
}
