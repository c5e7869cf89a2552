package usecase

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytrack/ttrack/internal/infra/filestore"
	"github.com/tinytrack/ttrack/internal/infra/idgen"
)

var testNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// ticker returns a clock advancing one second per call.
func ticker(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newStore(t *testing.T, ids *idgen.Sequence) *filestore.Store {
	t.Helper()
	if ids == nil {
		ids = &idgen.Sequence{}
	}
	root := filepath.Join(t.TempDir(), "mlruns")
	return filestore.New(root, filestore.WithIDs(ids), filestore.WithNow(func() time.Time { return testNow }))
}
