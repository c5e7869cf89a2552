package domain

// Config represents the ttrack workspace configuration loaded from ttrack.yaml.
type Config struct {
	Tracking  TrackingConfig
	Logging   LoggingConfig
	Export    ExportConfig
	Packaging PackagingConfig
}

type TrackingConfig struct {
	// Dir is the MLflow-compatible tracking directory, relative to the workspace root
	// unless absolute.
	Dir               string
	DefaultExperiment string
	User              string
}

type LoggingConfig struct {
	Debug bool
}

type ExportConfig struct {
	Listen string
}

// PackagingConfig drives the `doctor` packaging check.
type PackagingConfig struct {
	ArtifactDir string
	Pattern     string
}

// DefaultConfig provides sane defaults if ttrack.yaml is partially missing.
func DefaultConfig() Config {
	return Config{
		Tracking: TrackingConfig{
			Dir:               "mlruns",
			DefaultExperiment: DefaultExperimentName,
		},
		Export: ExportConfig{
			Listen: ":9464",
		},
		Packaging: PackagingConfig{
			ArtifactDir: ".",
			Pattern:     "*.so",
		},
	}
}
