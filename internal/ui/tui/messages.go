package tui

import "github.com/tinytrack/ttrack/internal/domain"

type experimentsLoadedMsg struct {
	exps []domain.Experiment
	err  error
}

type runsLoadedMsg struct {
	exp  domain.Experiment
	runs []domain.Run
	err  error
}

type runLoadedMsg struct {
	run     domain.Run
	history map[string][]domain.Metric
	err     error
}
