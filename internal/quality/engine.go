package quality

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/dqmon/internal/dataset"
	"github.com/nao1215/dqmon/internal/history"
	"github.com/nao1215/dqmon/internal/model"
	"github.com/nao1215/dqmon/internal/rules"
	"github.com/nao1215/dqmon/internal/stats"
)

// Score weights. They sum to 1.
const (
	WeightCompleteness = 0.30
	WeightUniqueness   = 0.25
	WeightValidity     = 0.25
	WeightConsistency  = 0.20
)

// consistencyIQRMultiplier widens the range check well past the anomaly
// detector's own IQR bounds; it flags broken formatting, not outliers.
const consistencyIQRMultiplier = 3.0

// ErrEmptyDataset is returned for a dataset with zero rows.
var ErrEmptyDataset = dataset.ErrEmpty

// Engine computes quality reports. Its history is append-only; see WithHistory.
type Engine struct {
	logger      *slog.Logger
	history     *history.Log[*model.QualityReport]
	clock       func() time.Time
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHistory injects the history log reports are appended to. Share one log
// between engines, or keep it after the engine is gone, by passing it here.
func WithHistory(h *history.Log[*model.QualityReport]) Option {
	return func(e *Engine) {
		e.history = h
	}
}

// WithClock overrides the report timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithConcurrency bounds the number of columns processed at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:       time.Now,
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.history == nil {
		e.history = history.New[*model.QualityReport]()
	}
	return e
}

// History returns the engine's report history.
func (e *Engine) History() *history.Log[*model.QualityReport] {
	return e.history
}

// Options selects what Analyze checks.
type Options struct {
	// KeyColumns scopes duplicate detection. Empty means the whole record.
	KeyColumns []string

	// Rules are the validity rules. Nil synthesizes the default rules.
	Rules *rules.Set
}

// Analyze runs all four dimensions, computes the score, appends the report to
// history and returns it.
func (e *Engine) Analyze(ctx context.Context, ds *dataset.Dataset, opts Options) (*model.QualityReport, error) {
	if ds.Empty() {
		return nil, ErrEmptyDataset
	}

	e.logger.Info("starting quality analysis",
		"dataset", ds.Name(),
		"rows", ds.Len(),
		"columns", ds.Width(),
	)

	completeness, err := e.Completeness(ds)
	if err != nil {
		return nil, err
	}
	uniqueness, err := e.Uniqueness(ds, opts.KeyColumns)
	if err != nil {
		return nil, err
	}
	validity, err := e.Validity(ds, opts.Rules)
	if err != nil {
		return nil, err
	}
	consistency, err := e.Consistency(ctx, ds)
	if err != nil {
		return nil, err
	}

	report := &model.QualityReport{
		Timestamp:    e.clock().UTC(),
		DatasetName:  ds.Name(),
		RowCount:     ds.Len(),
		ColumnCount:  ds.Width(),
		Completeness: completeness.Overall,
		Uniqueness:   uniqueness.Overall,
		Validity:     validity.Overall,
		Consistency:  consistency.Overall,
		QualityScore: Score(completeness.Overall, uniqueness.Overall, validity.Overall, consistency.Overall),
		Details: model.QualityDetails{
			Completeness: completeness,
			Uniqueness:   uniqueness,
			Validity:     validity,
			Consistency:  consistency,
		},
	}

	e.history.Append(report)

	e.logger.Info("quality analysis complete",
		"dataset", ds.Name(),
		"quality_score", report.QualityScore,
	)

	return report, nil
}

// Score returns the weighted quality score rounded to two decimals.
func Score(completeness, uniqueness, validity, consistency float64) float64 {
	return stats.Round(
		completeness*WeightCompleteness+
			uniqueness*WeightUniqueness+
			validity*WeightValidity+
			consistency*WeightConsistency,
		2,
	)
}

// Completeness returns the non-null percentage overall and per column.
func (e *Engine) Completeness(ds *dataset.Dataset) (model.CompletenessDetail, error) {
	if ds.Empty() {
		return model.CompletenessDetail{}, ErrEmptyDataset
	}

	byColumn := make(map[string]float64, ds.Width())
	nonNull := 0
	for _, c := range ds.Columns() {
		n := c.NonNull()
		nonNull += n
		byColumn[c.Name()] = stats.Round(float64(n)/float64(ds.Len())*100, 2)
	}

	overall := float64(nonNull) / float64(ds.Len()*ds.Width()) * 100
	e.logger.Debug("completeness computed", "dataset", ds.Name(), "overall", overall)

	return model.CompletenessDetail{
		Overall:  stats.Round(overall, 2),
		ByColumn: byColumn,
	}, nil
}

// Uniqueness returns the share of rows that are not duplicates of an earlier
// row, over keyColumns or the whole record, plus per-column distinct ratios.
func (e *Engine) Uniqueness(ds *dataset.Dataset, keyColumns []string) (model.UniquenessDetail, error) {
	if ds.Empty() {
		return model.UniquenessDetail{}, ErrEmptyDataset
	}

	keys, err := ds.Select(keyColumns)
	if err != nil {
		return model.UniquenessDetail{}, fmt.Errorf("invalid key columns: %w", err)
	}

	seen := make(map[string]struct{}, ds.Len())
	duplicates := 0
	for i := 0; i < ds.Len(); i++ {
		k := ds.RowKey(i, keys)
		if _, ok := seen[k]; ok {
			duplicates++
			continue
		}
		seen[k] = struct{}{}
	}

	byColumn := make(map[string]float64, ds.Width())
	for _, c := range ds.Columns() {
		byColumn[c.Name()] = stats.Round(float64(c.Distinct())/float64(ds.Len())*100, 2)
	}

	overall := float64(ds.Len()-duplicates) / float64(ds.Len()) * 100
	e.logger.Debug("uniqueness computed", "dataset", ds.Name(), "overall", overall, "duplicates", duplicates)

	detail := model.UniquenessDetail{
		Overall:        stats.Round(overall, 2),
		DuplicateCount: duplicates,
		ByColumn:       byColumn,
	}
	if len(keyColumns) > 0 {
		detail.KeyColumns = append([]string(nil), keyColumns...)
	}
	return detail, nil
}

// Validity evaluates set (or the default rules when set is nil) and returns
// the mean pass percentage. Rules that fail score 0, are listed in Errors and
// are left out of the mean; with no successful rule the overall score is 0.
func (e *Engine) Validity(ds *dataset.Dataset, set *rules.Set) (model.ValidityDetail, error) {
	if ds.Empty() {
		return model.ValidityDetail{}, ErrEmptyDataset
	}
	if set == nil {
		set = rules.Defaults(ds)
	}

	detail := model.ValidityDetail{ByRule: make(map[string]float64, set.Len())}
	var sum float64
	scored := 0

	for _, res := range set.Evaluate(ds) {
		if res.Err != nil {
			e.logger.Error("validity rule failed",
				"dataset", ds.Name(),
				"rule", res.Name,
				"error", res.Err,
			)
			detail.ByRule[res.Name] = 0
			if detail.Errors == nil {
				detail.Errors = make(map[string]string)
			}
			detail.Errors[res.Name] = res.Err.Err.Error()
			continue
		}
		detail.ByRule[res.Name] = stats.Round(res.Percent, 2)
		sum += res.Percent
		scored++
	}

	if scored > 0 {
		detail.Overall = stats.Round(sum/float64(scored), 2)
	}
	e.logger.Debug("validity computed", "dataset", ds.Name(), "overall", detail.Overall, "rules", set.Len())

	return detail, nil
}

// Consistency scores each column's type homogeneity and, for numeric columns,
// the share of values inside [Q1-3*IQR, Q3+3*IQR]. Columns are processed in
// parallel. With no checks at all the score is 100.
func (e *Engine) Consistency(ctx context.Context, ds *dataset.Dataset) (model.ConsistencyDetail, error) {
	if ds.Empty() {
		return model.ConsistencyDetail{}, ErrEmptyDataset
	}

	type columnChecks struct {
		dtype     float64
		rng       float64
		hasRange  bool
		nameDtype string
		nameRange string
	}

	columns := ds.Columns()
	results := make([]columnChecks, len(columns))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, c := range columns {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := columnChecks{
				nameDtype: c.Name() + "_dtype",
				dtype:     dtypeConsistency(c),
			}
			if c.Type() == dataset.TypeNumeric {
				res.hasRange = true
				res.nameRange = c.Name() + "_range"
				res.rng = rangeConsistency(c)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.ConsistencyDetail{}, err
	}

	details := make(map[string]float64, len(columns)*2)
	var sum float64
	for _, r := range results {
		details[r.nameDtype] = stats.Round(r.dtype, 2)
		sum += r.dtype
		if r.hasRange {
			details[r.nameRange] = stats.Round(r.rng, 2)
			sum += r.rng
		}
	}

	overall := 100.0
	if len(details) > 0 {
		overall = sum / float64(len(details))
	}
	e.logger.Debug("consistency computed", "dataset", ds.Name(), "overall", overall)

	return model.ConsistencyDetail{
		Overall: stats.Round(overall, 2),
		Details: details,
	}, nil
}

// dtypeConsistency is the share of cells carrying the column's most common
// runtime kind. Typed columns are homogeneous by construction; in text and
// mixed columns a null counts as a kind of its own.
func dtypeConsistency(c *dataset.Column) float64 {
	if !c.Type().IsObject() || c.Len() == 0 {
		return 100
	}
	counts := make(map[dataset.Kind]int)
	modal := 0
	for i := 0; i < c.Len(); i++ {
		k := c.At(i).Kind()
		counts[k]++
		if counts[k] > modal {
			modal = counts[k]
		}
	}
	return float64(modal) / float64(c.Len()) * 100
}

// rangeConsistency is the share of all cells (nulls included in the
// denominator) whose value lies inside the wide IQR bounds.
func rangeConsistency(c *dataset.Column) float64 {
	values := c.Floats()
	q1, q3 := stats.Quartiles(values)
	if math.IsNaN(q1) || math.IsNaN(q3) {
		return 0
	}
	iqr := q3 - q1
	lower := q1 - consistencyIQRMultiplier*iqr
	upper := q3 + consistencyIQRMultiplier*iqr

	inRange := 0
	for _, v := range values {
		if !math.IsNaN(v) && v >= lower && v <= upper {
			inRange++
		}
	}
	return float64(inRange) / float64(len(values)) * 100
}
