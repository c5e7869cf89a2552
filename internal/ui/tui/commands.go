package tui

import (
	"errors"
	"sort"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytrack/ttrack/internal/domain"
)

var errNoStore = errors.New("tracking store is nil")

func cmdLoadExperiments(deps Deps) tea.Cmd {
	return func() tea.Msg {
		if deps.Store == nil {
			return experimentsLoadedMsg{err: errNoStore}
		}
		exps, err := deps.Store.ListExperiments()
		return experimentsLoadedMsg{exps: exps, err: err}
	}
}

func cmdLoadRuns(deps Deps, exp domain.Experiment) tea.Cmd {
	return func() tea.Msg {
		if deps.Store == nil {
			return runsLoadedMsg{exp: exp, err: errNoStore}
		}
		runs, err := deps.Store.ListRuns(exp.ID)
		return runsLoadedMsg{exp: exp, runs: runs, err: err}
	}
}

func cmdLoadRun(deps Deps, experimentID, runID string) tea.Cmd {
	return func() tea.Msg {
		if deps.Store == nil {
			return runLoadedMsg{err: errNoStore}
		}
		run, err := deps.Store.GetRun(experimentID, runID)
		if err != nil {
			return runLoadedMsg{err: err}
		}

		keys := make([]string, 0, len(run.Metrics))
		for k := range run.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		history := make(map[string][]domain.Metric, len(keys))
		for _, k := range keys {
			pts, err := deps.Store.MetricHistory(experimentID, runID, k)
			if err != nil {
				if deps.Logger != nil {
					deps.Logger.Warn("tui.history_failed", "run_id", runID, "key", k, "err", err)
				}
				continue
			}
			history[k] = pts
		}
		return runLoadedMsg{run: run, history: history}
	}
}
