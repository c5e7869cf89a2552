package ports

// WorkspaceLocator finds a ttrack workspace root starting from an arbitrary directory.
type WorkspaceLocator interface {
	FindRoot(startDir string) (string, error)
}
