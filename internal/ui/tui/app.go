package tui

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytrack/ttrack/internal/domain"
)

type screen int

const (
	screenExperiments screen = iota
	screenRuns
	screenRun
)

type experimentItem struct {
	exp domain.Experiment
}

func (i experimentItem) Title() string {
	if i.exp.LifecycleStage == domain.StageDeleted {
		return i.exp.Name + " (deleted)"
	}
	return i.exp.Name
}
func (i experimentItem) Description() string { return i.exp.ID }
func (i experimentItem) FilterValue() string { return i.exp.Name }

type runItem struct {
	run   domain.Run
	theme Theme
}

func (i runItem) Title() string {
	return fmt.Sprintf("%s  %s", i.run.Info.RunName, i.theme.Status(i.run.Info.Status))
}

func (i runItem) Description() string {
	return fmt.Sprintf("%s  %s  %d params, %d metrics",
		i.run.Info.RunID[:min(8, len(i.run.Info.RunID))],
		formatTime(i.run.Info.StartTime),
		len(i.run.Params), len(i.run.Metrics))
}

func (i runItem) FilterValue() string { return i.run.Info.RunName }

type model struct {
	theme Theme
	deps  Deps
	log   *slog.Logger

	scr   screen
	exps  list.Model
	runs  list.Model
	width int

	showDeleted bool
	loading     bool
	toast       string

	exp     domain.Experiment
	run     domain.Run
	history map[string][]domain.Metric
}

func Run(deps Deps) error {
	m := newModel(deps)
	p := tea.NewProgram(wrapSafe(m, m.log), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func newModel(deps Deps) model {
	t := DefaultTheme()
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	exps := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	exps.Title = "Experiments"
	exps.SetShowStatusBar(false)
	exps.SetFilteringEnabled(true)
	exps.SetShowHelp(false)

	runs := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	runs.SetShowStatusBar(false)
	runs.SetFilteringEnabled(true)
	runs.SetShowHelp(false)

	return model{
		theme:   t,
		deps:    deps,
		log:     log,
		scr:     screenExperiments,
		exps:    exps,
		runs:    runs,
		loading: true,
	}
}

func (m model) Init() tea.Cmd { return cmdLoadExperiments(m.deps) }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.exps.SetSize(msg.Width-4, msg.Height-10)
		m.runs.SetSize(msg.Width-4, msg.Height-10)
		return m, nil

	case experimentsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.log.Error("tui.load_experiments.failed", "err", msg.err)
			m.toast = userMessage(msg.err)
			return m, nil
		}
		items := make([]list.Item, 0, len(msg.exps))
		for _, e := range msg.exps {
			if e.LifecycleStage == domain.StageDeleted && !m.showDeleted {
				continue
			}
			items = append(items, experimentItem{exp: e})
		}
		return m, m.exps.SetItems(items)

	case runsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.log.Error("tui.load_runs.failed", "experiment_id", msg.exp.ID, "err", msg.err)
			m.toast = userMessage(msg.err)
			m.scr = screenExperiments
			return m, nil
		}
		items := make([]list.Item, 0, len(msg.runs))
		for _, r := range msg.runs {
			if r.Info.LifecycleStage == domain.StageDeleted && !m.showDeleted {
				continue
			}
			items = append(items, runItem{run: r, theme: m.theme})
		}
		m.runs.Title = "Runs · " + msg.exp.Name
		return m, m.runs.SetItems(items)

	case runLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.log.Error("tui.load_run.failed", "err", msg.err)
			m.toast = userMessage(msg.err)
			m.scr = screenRuns
			return m, nil
		}
		m.run = msg.run
		m.history = msg.history
		return m, nil

	case tea.KeyMsg:
		if m.filtering() {
			break
		}
		m.toast = ""
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "enter":
			return m.open()

		case "esc", "b":
			return m.back(), nil

		case "r":
			return m, m.reload()

		case "d":
			m.showDeleted = !m.showDeleted
			return m, m.reload()
		}
	}

	var cmd tea.Cmd
	switch m.scr {
	case screenExperiments:
		m.exps, cmd = m.exps.Update(msg)
	case screenRuns:
		m.runs, cmd = m.runs.Update(msg)
	}
	return m, cmd
}

func (m model) filtering() bool {
	switch m.scr {
	case screenExperiments:
		return m.exps.FilterState() == list.Filtering
	case screenRuns:
		return m.runs.FilterState() == list.Filtering
	}
	return false
}

func (m model) open() (tea.Model, tea.Cmd) {
	switch m.scr {
	case screenExperiments:
		it, ok := m.exps.SelectedItem().(experimentItem)
		if !ok {
			return m, nil
		}
		m.exp = it.exp
		m.scr = screenRuns
		m.loading = true
		return m, cmdLoadRuns(m.deps, it.exp)

	case screenRuns:
		it, ok := m.runs.SelectedItem().(runItem)
		if !ok {
			return m, nil
		}
		m.run = it.run
		m.history = nil
		m.scr = screenRun
		m.loading = true
		return m, cmdLoadRun(m.deps, it.run.Info.ExperimentID, it.run.Info.RunID)
	}
	return m, nil
}

func (m model) back() model {
	switch m.scr {
	case screenRun:
		m.scr = screenRuns
	case screenRuns:
		m.scr = screenExperiments
	}
	return m
}

func (m model) reload() tea.Cmd {
	switch m.scr {
	case screenRuns:
		return cmdLoadRuns(m.deps, m.exp)
	case screenRun:
		return cmdLoadRun(m.deps, m.run.Info.ExperimentID, m.run.Info.RunID)
	default:
		return cmdLoadExperiments(m.deps)
	}
}

func (m model) View() string {
	wrap := lipgloss.NewStyle().Padding(1, 2)
	header := m.theme.Title.Render("ttrack") + "\n" +
		m.theme.Subtitle.Render("MLflow-compatible local experiment tracking") + "\n"
	if m.deps.Root != "" {
		header += m.theme.Help.Render("Tracking dir: "+m.deps.Root) + "\n"
	}

	var body, help string
	switch m.scr {
	case screenExperiments:
		body = m.theme.Card.Render(m.exps.View())
		help = "↑/↓ navigate • enter open • / search • d deleted • r refresh • q quit"
	case screenRuns:
		body = m.theme.Card.Render(m.runs.View())
		help = "↑/↓ navigate • enter open • / search • d deleted • r refresh • esc back • q quit"
	case screenRun:
		detail := renderRunDetails(m.theme, m.run, m.history)
		if m.loading && m.history == nil {
			detail += m.theme.Help.Render("loading…")
		}
		body = m.theme.Card.Render(detail)
		help = "r refresh • esc back • q quit"
	default:
		body = "unknown state"
	}

	out := header + "\n" + body + "\n" + m.theme.Help.Render(help)
	if m.toast != "" {
		out += "\n" + m.theme.Toast.Render(m.toast)
	}
	return wrap.Render(out)
}
