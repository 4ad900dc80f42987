package checkpoint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/backend"
	"github.com/ekisa-team/flamingo/internal/tensor"
)

// LoadReport summarizes a checkpoint application.
type LoadReport struct {
	Path    string
	Strict  bool
	Applied int
	Skipped []string
	Missing []string
}

// Adapter applies checkpoints to models.
type Adapter struct {
	prefix string
	logger *slog.Logger
}

// NewAdapter creates an adapter stripping prefix from parameter names.
func NewAdapter(prefix string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{prefix: prefix, logger: logger}
}

// LoadAndApply reads the checkpoint at path and applies it to m. An exact
// match is loaded strictly. Otherwise the compatible subset is loaded and the
// rest is logged; a checkpoint sharing nothing with the model applies nothing.
func (a *Adapter) LoadAndApply(ctx context.Context, m backend.Model, path string) (LoadReport, error) {
	rec, err := Read(path)
	if err != nil {
		return LoadReport{}, err
	}

	mapping := Unwrap(rec)
	if len(mapping) == 0 {
		return LoadReport{}, fmt.Errorf("%w: %s", ErrEmptyRecord, path)
	}
	mapping = RenameKeys(mapping, a.prefix)

	return a.Apply(ctx, m, mapping, path)
}

// Apply loads an in-memory mapping into m.
func (a *Adapter) Apply(ctx context.Context, m backend.Model, mapping map[string]*tensor.Tensor, source string) (LoadReport, error) {
	shapes, err := m.Parameters(ctx)
	if err != nil {
		return LoadReport{}, fmt.Errorf("%w: read model parameters: %v", avsr.ErrCheckpoint, err)
	}

	plan := Plan(mapping, shapes)
	report := LoadReport{
		Path:    source,
		Strict:  plan.Exact,
		Applied: len(plan.Apply),
		Skipped: plan.Skipped(),
		Missing: plan.Missing,
	}

	if plan.Exact {
		if err := m.LoadStateDict(ctx, mapping, true); err != nil {
			return LoadReport{}, fmt.Errorf("%w: strict load %s: %v", avsr.ErrCheckpoint, source, err)
		}
		a.logger.Info("Checkpoint loaded", "path", source, "parameters", report.Applied)
		return report, nil
	}

	for _, mm := range plan.Mismatched {
		a.logger.Warn("Skipping parameter with mismatched shape", "path", source, "parameter", mm.String())
	}
	if len(plan.Unexpected) > 0 {
		a.logger.Warn("Skipping unexpected parameters", "path", source, "count", len(plan.Unexpected), "names", plan.Unexpected)
	}
	if len(plan.Missing) > 0 {
		a.logger.Warn("Parameters missing from checkpoint keep their initial values", "path", source, "count", len(plan.Missing))
	}

	if err := m.LoadStateDict(ctx, plan.Apply, false); err != nil {
		return LoadReport{}, fmt.Errorf("%w: relaxed load %s: %v", avsr.ErrCheckpoint, source, err)
	}
	a.logger.Info("Checkpoint loaded partially", "path", source, "applied", report.Applied, "skipped", len(report.Skipped))

	return report, nil
}
