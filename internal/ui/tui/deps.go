package tui

import (
	"log/slog"

	"github.com/tinytrack/ttrack/internal/ports"
)

type Deps struct {
	Store ports.TrackingStore
	// Root is the workspace or tracking dir shown in the header.
	Root string

	Logger *slog.Logger
	Debug  bool
}
