package buildout

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"buildout/internal/types"
	"buildout/internal/zoning"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClassifier assigns each fragment's minimum lot from its zone code
// before calculation. Codes missing from the table keep their MINLOT.
func WithClassifier(c *zoning.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithFilters replaces DefaultFilters.
func WithFilters(f Filters) Option {
	return func(e *Engine) { e.filters = f }
}

// WithWorkers bounds the number of goroutines computing fragment buildout.
// n <= 0 uses one per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithLogger sets the engine's logger. The default is zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine runs fragment tables through classification, calculation, system
// resolution, aggregation, normalization and the split decision.
type Engine struct {
	classifier *zoning.Classifier
	filters    Filters
	workers    int
	logger     *zap.Logger
}

// New returns an Engine with the given options applied.
func New(opts ...Option) *Engine {
	e := &Engine{filters: DefaultFilters()}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	if e.logger == nil {
		e.logger = zap.L()
	}
	return e
}

// chunkSize keeps per-goroutine work large enough to outweigh scheduling.
const chunkSize = 2048

// Evaluate returns the fragments that survive filtering with MINLOT, SYSTEM,
// CZ and NO3 buildout assigned. The input slice is not modified.
func (e *Engine) Evaluate(ctx context.Context, frags []types.ParcelFragment) ([]types.ParcelFragment, error) {
	work := make([]types.ParcelFragment, len(frags))
	copy(work, frags)

	classify := e.classifier != nil && e.classifier.HasTable()
	unknownCodes := 0
	for i := range work {
		if classify && !e.classifier.ApplyToFragment(&work[i]) {
			unknownCodes++
		}
		if err := validateMeasures(i, work[i]); err != nil {
			return nil, err
		}
	}

	kept, stats := e.filters.Apply(work)
	out := make([]types.ParcelFragment, len(kept))
	for j, i := range kept {
		if err := validateIdentity(i, work[i]); err != nil {
			return nil, err
		}
		if work[i].System == "" {
			work[i].System = ClassifySystem(work[i].SewerJoin)
		}
		if err := validateLots(i, work[i]); err != nil {
			return nil, err
		}
		out[j] = work[i]
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for start := 0; start < len(out); start += chunkSize {
		end := min(start+chunkSize, len(out))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				computeFragment(&out[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Int("fragments", len(frags)),
		zap.Int("kept", len(out)),
		zap.Int("dropped_unparceled", stats.Unparceled),
		zap.Int("dropped_unwatershed", stats.Unwatershed),
		zap.Int("dropped_below_min_lot", stats.BelowMinLot),
	}
	if e.classifier != nil {
		fields = append(fields, zap.String("jurisdiction", string(e.classifier.Jurisdiction())))
	}
	if classify {
		fields = append(fields, zap.Int("unclassified_codes", unknownCodes))
	}
	e.logger.Info("buildout: evaluated fragments", fields...)

	return out, nil
}

// computeFragment assigns the buildout counts; f.System is already resolved.
func computeFragment(f *types.ParcelFragment) {
	f.CZBuildout = CurrentZoning(f.MinLot, f.ShapeArea)
	f.NO3Buildout = Nitrate(f.MinLot, f.SepticDensity, f.ShapeArea, f.System == types.SystemSeptic, f.CZBuildout)
}

// Run produces the single-pass aggregated parcels.
func (e *Engine) Run(ctx context.Context, frags []types.ParcelFragment) ([]types.AggregatedParcel, error) {
	evaluated, err := e.Evaluate(ctx, frags)
	if err != nil {
		return nil, err
	}

	relabeled := ResolveSystems(evaluated)
	parcels := Aggregate(evaluated)
	Normalize(parcels)
	DetermineSplits(parcels)

	e.logger.Info("buildout: aggregated parcels",
		zap.Int("parcels", len(parcels)),
		zap.Int("relabeled_mixed_system", relabeled),
	)
	return parcels, nil
}

// RunPrePost evaluates the fragment tables taken before and after constrained
// area was erased and produces one record per key carrying both variants.
func (e *Engine) RunPrePost(ctx context.Context, pre, post []types.ParcelFragment) ([]types.AggregatedParcel, error) {
	preEval, err := e.Evaluate(ctx, pre)
	if err != nil {
		return nil, err
	}
	postEval, err := e.Evaluate(ctx, post)
	if err != nil {
		return nil, err
	}

	relabeled := ResolveSystems(preEval, postEval)
	parcels := AggregatePrePost(preEval, postEval)

	for _, key := range BoundViolations(parcels) {
		e.logger.Warn("buildout: post-erasure buildout exceeds pre-erasure",
			zap.String("parcel_id", key.ParcelID),
			zap.String("zone_id", key.ZoneID),
			zap.String("system", string(key.System)),
		)
	}

	Normalize(parcels)
	DetermineSplits(parcels)

	e.logger.Info("buildout: aggregated parcels",
		zap.Int("parcels", len(parcels)),
		zap.Int("relabeled_mixed_system", relabeled),
		zap.Bool("pre_post", true),
	)
	return parcels, nil
}
