package usecase

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/ports"
	"github.com/tinytrack/ttrack/internal/usecase/search"
)

// SearchQuery selects runs across experiments.
type SearchQuery struct {
	// Experiments restricts the search to these experiment ids or names.
	// Empty means every active experiment.
	Experiments []string
	Filter      string
	OrderBy     string
	// Limit caps the result; zero means no limit.
	Limit int
	// IncludeDeleted also returns deleted runs.
	IncludeDeleted bool
}

type SearchRuns struct {
	store       ports.TrackingStore
	concurrency int
}

func NewSearchRuns(store ports.TrackingStore) *SearchRuns {
	return &SearchRuns{store: store, concurrency: 8}
}

func (uc *SearchRuns) Execute(ctx context.Context, q SearchQuery) ([]domain.Run, error) {
	filter, err := search.ParseFilter(q.Filter)
	if err != nil {
		return nil, err
	}
	order, err := search.ParseOrderBy(q.OrderBy)
	if err != nil {
		return nil, err
	}

	exps, err := uc.resolveExperiments(q.Experiments)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out []domain.Run
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.concurrency)

	for _, exp := range exps {
		exp := exp
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			runs, err := uc.store.ListRuns(exp.ID)
			if err != nil {
				return err
			}

			matched := make([]domain.Run, 0, len(runs))
			for _, r := range runs {
				if !q.IncludeDeleted && r.Info.LifecycleStage == domain.StageDeleted {
					continue
				}
				if filter.Match(r) {
					matched = append(matched, r)
				}
			}

			mu.Lock()
			out = append(out, matched...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	search.Sort(out, order)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (uc *SearchRuns) resolveExperiments(refs []string) ([]domain.Experiment, error) {
	if len(refs) == 0 {
		all, err := uc.store.ListExperiments()
		if err != nil {
			return nil, err
		}
		active := make([]domain.Experiment, 0, len(all))
		for _, e := range all {
			if e.LifecycleStage == domain.StageActive {
				active = append(active, e)
			}
		}
		return active, nil
	}

	seen := map[string]bool{}
	out := make([]domain.Experiment, 0, len(refs))
	for _, ref := range refs {
		exp, err := ResolveExperiment(uc.store, ref)
		if err != nil {
			return nil, err
		}
		if seen[exp.ID] {
			continue
		}
		seen[exp.ID] = true
		out = append(out, exp)
	}
	return out, nil
}

// ResolveExperiment finds an experiment by id, falling back to its name.
func ResolveExperiment(store ports.ExperimentStore, ref string) (domain.Experiment, error) {
	exp, err := store.GetExperiment(ref)
	if err == nil {
		return exp, nil
	}
	if !domain.IsKind(err, domain.KindNotFound) && !domain.IsKind(err, domain.KindInvalidArgument) {
		return domain.Experiment{}, err
	}
	return store.GetExperimentByName(ref)
}
