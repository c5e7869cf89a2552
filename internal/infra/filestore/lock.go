package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tinytrack/ttrack/internal/domain"
)

// lockFileName sits next to the experiment dirs. ListExperiments ignores it
// because it is neither a directory nor visible.
const lockFileName = ".ttrack.lock"

const (
	lockPoll     = 5 * time.Millisecond
	lockTimeout  = 10 * time.Second
	lockStaleAge = 30 * time.Second
)

// rootLocks serializes experiment creation across every Store in the process
// that shares a root.
var rootLocks sync.Map // abs root -> *sync.Mutex

// lockRoot takes the process-wide lock for the store root and then the lock
// file in the root, which covers other processes writing the same tree.
// A lock file older than lockStaleAge is assumed abandoned and removed.
func (s *Store) lockRoot(op string) (func(), error) {
	key := s.root
	if abs, err := filepath.Abs(s.root); err == nil {
		key = abs
	}
	v, _ := rootLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()

	if err := mkdirAll(op, s.root); err != nil {
		mu.Unlock()
		return nil, err
	}

	path := filepath.Join(s.root, lockFileName)
	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() {
				_ = os.Remove(path)
				mu.Unlock()
			}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			mu.Unlock()
			return nil, &domain.OpError{Op: op + ".lock", Kind: domain.KindExecution, Path: path, Err: err}
		}

		if fi, serr := os.Stat(path); serr == nil && time.Since(fi.ModTime()) > lockStaleAge {
			s.log.Warn("lock.stale_removed", "path", path, "age", time.Since(fi.ModTime()).String())
			_ = os.Remove(path)
			continue
		}
		if time.Now().After(deadline) {
			mu.Unlock()
			return nil, &domain.OpError{
				Op:   op + ".lock",
				Kind: domain.KindConflict,
				Path: path,
				Err:  fmt.Errorf("timed out after %s waiting for the tracking dir lock", lockTimeout),
			}
		}
		time.Sleep(lockPoll)
	}
}
