package anomaly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/dqmon/internal/dataset"
	"github.com/nao1215/dqmon/internal/history"
	"github.com/nao1215/dqmon/internal/model"
	"github.com/nao1215/dqmon/internal/stats"
)

// Method names.
const (
	MethodZScore          = "zscore"
	MethodIQR             = "iqr"
	MethodIsolationForest = "isolation_forest"
)

// Defaults.
const (
	DefaultContamination  = 0.1
	DefaultZThreshold     = 3.0
	DefaultIQRMultiplier  = 1.5
	DefaultDriftThreshold = 0.1
	DefaultSeed           = 42
	DefaultTrees          = 100
	DefaultMaxSamples     = 256
)

// severityZThreshold is the |z| above which a column counts as extreme when
// grading a row.
const severityZThreshold = 3.0

var (
	// ErrEmptyDataset is returned for a dataset with zero rows.
	ErrEmptyDataset = dataset.ErrEmpty

	// ErrUnknownMethod is returned for a method name DetectAll does not know.
	ErrUnknownMethod = errors.New("unknown anomaly detection method")

	// ErrInvalidContamination is returned for a contamination outside (0, 0.5].
	ErrInvalidContamination = errors.New("contamination must be in (0, 0.5]")

	// ErrNoNumericColumns is logged, never returned, when the isolation
	// forest has no numeric input.
	ErrNoNumericColumns = errors.New("no numeric columns")
)

// AllMethods returns the method names in their default order.
func AllMethods() []string {
	return []string{MethodZScore, MethodIQR, MethodIsolationForest}
}

// Detector runs outlier detection. Its history is append-only; see WithHistory.
type Detector struct {
	logger        *slog.Logger
	history       *history.Log[*model.AnomalyReport]
	clock         func() time.Time
	contamination float64
	zThreshold    float64
	iqrMultiplier float64
	seed          uint64
	trees         int
	maxSamples    int
	concurrency   int
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// WithHistory injects the history log reports are appended to.
func WithHistory(h *history.Log[*model.AnomalyReport]) Option {
	return func(d *Detector) {
		d.history = h
	}
}

// WithClock overrides the report timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(d *Detector) {
		d.clock = clock
	}
}

// WithContamination sets the expected anomaly fraction for the isolation forest.
func WithContamination(c float64) Option {
	return func(d *Detector) {
		d.contamination = c
	}
}

// WithZThreshold sets the z-score threshold DetectAll uses.
func WithZThreshold(z float64) Option {
	return func(d *Detector) {
		if z > 0 {
			d.zThreshold = z
		}
	}
}

// WithIQRMultiplier sets the IQR multiplier DetectAll uses.
func WithIQRMultiplier(k float64) Option {
	return func(d *Detector) {
		if k > 0 {
			d.iqrMultiplier = k
		}
	}
}

// WithSeed sets the isolation forest random seed.
func WithSeed(seed uint64) Option {
	return func(d *Detector) {
		d.seed = seed
	}
}

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.trees = n
		}
	}
}

// WithConcurrency bounds parallel column and tree work.
func WithConcurrency(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// New creates a Detector. It fails only on an invalid contamination.
func New(opts ...Option) (*Detector, error) {
	d := &Detector{
		clock:         time.Now,
		contamination: DefaultContamination,
		zThreshold:    DefaultZThreshold,
		iqrMultiplier: DefaultIQRMultiplier,
		seed:          DefaultSeed,
		trees:         DefaultTrees,
		maxSamples:    DefaultMaxSamples,
		concurrency:   runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.contamination <= 0 || d.contamination > 0.5 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidContamination, d.contamination)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.history == nil {
		d.history = history.New[*model.AnomalyReport]()
	}
	return d, nil
}

// History returns the detector's report history.
func (d *Detector) History() *history.Log[*model.AnomalyReport] {
	return d.history
}

// Contamination returns the configured contamination fraction.
func (d *Detector) Contamination() float64 {
	return d.contamination
}

// columnProfile caches per-column statistics for one detection run.
type columnProfile struct {
	name   string
	values []float64
	mean   float64
	std    float64
	q1, q3 float64
}

func (d *Detector) profile(ctx context.Context, ds *dataset.Dataset) ([]columnProfile, error) {
	cols := ds.NumericColumns()
	profiles := make([]columnProfile, len(cols))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, c := range cols {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			values := c.Floats()
			mean, std := stats.MeanStdDev(values)
			q1, q3 := stats.Quartiles(values)
			profiles[i] = columnProfile{name: c.Name(), values: values, mean: mean, std: std, q1: q1, q3: q3}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return profiles, nil
}

// byColumn maps column name to flagged row indices.
type byColumn map[string][]int

func (b byColumn) union() []int {
	seen := make(map[int]struct{})
	for _, rows := range b {
		for _, r := range rows {
			seen[r] = struct{}{}
		}
	}
	return sortedRows(seen)
}

func sortedRows(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}

// DetectZScore flags rows where any numeric column has |z| > threshold.
// Zero-variance columns are skipped. Returns sorted row indices.
func (d *Detector) DetectZScore(ds *dataset.Dataset, threshold float64) ([]int, error) {
	if ds.Empty() {
		return nil, ErrEmptyDataset
	}
	profiles, err := d.profile(context.Background(), ds)
	if err != nil {
		return nil, err
	}
	return zscoreByColumn(profiles, threshold).union(), nil
}

func zscoreByColumn(profiles []columnProfile, threshold float64) byColumn {
	out := make(byColumn)
	for _, p := range profiles {
		if p.std == 0 || math.IsNaN(p.std) {
			continue
		}
		for i, v := range p.values {
			if math.IsNaN(v) {
				continue
			}
			if math.Abs(v-p.mean)/p.std > threshold {
				out[p.name] = append(out[p.name], i)
			}
		}
	}
	return out
}

// DetectIQR flags rows where any numeric column falls outside
// [Q1 - multiplier*IQR, Q3 + multiplier*IQR]. Returns sorted row indices.
func (d *Detector) DetectIQR(ds *dataset.Dataset, multiplier float64) ([]int, error) {
	if ds.Empty() {
		return nil, ErrEmptyDataset
	}
	profiles, err := d.profile(context.Background(), ds)
	if err != nil {
		return nil, err
	}
	return iqrByColumn(profiles, multiplier).union(), nil
}

func iqrByColumn(profiles []columnProfile, multiplier float64) byColumn {
	out := make(byColumn)
	for _, p := range profiles {
		if math.IsNaN(p.q1) || math.IsNaN(p.q3) {
			continue
		}
		iqr := p.q3 - p.q1
		lower := p.q1 - multiplier*iqr
		upper := p.q3 + multiplier*iqr
		for i, v := range p.values {
			if math.IsNaN(v) {
				continue
			}
			if v < lower || v > upper {
				out[p.name] = append(out[p.name], i)
			}
		}
	}
	return out
}

// DetectIsolationForest fills missing numeric values with the column mean,
// standardizes each numeric column, fits a seeded isolation forest and flags
// the rows whose anomaly score is above the (1 - contamination) quantile.
// With no numeric columns it logs a warning and returns no rows.
func (d *Detector) DetectIsolationForest(ctx context.Context, ds *dataset.Dataset) ([]int, error) {
	if ds.Empty() {
		return nil, ErrEmptyDataset
	}

	var features [][]float64
	for _, c := range ds.NumericColumns() {
		values := c.Floats()
		mean := stats.Mean(values)
		if math.IsNaN(mean) {
			continue // all null
		}
		filled := stats.FillNaN(values, mean)
		_, popStd := stats.PopMeanStdDev(filled)
		features = append(features, stats.Standardize(filled, mean, popStd))
	}

	if len(features) == 0 {
		d.logger.Warn("isolation forest skipped",
			"dataset", ds.Name(),
			"reason", ErrNoNumericColumns,
		)
		return []int{}, nil
	}
	if ds.Len() < 2 {
		return []int{}, nil
	}

	x := make([][]float64, ds.Len())
	for i := range x {
		row := make([]float64, len(features))
		for j, f := range features {
			row[j] = f[i]
		}
		x[i] = row
	}

	forest, err := fitForest(ctx, x, d.trees, d.maxSamples, d.seed, d.concurrency)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(x))
	for i, row := range x {
		scores[i] = forest.score(row)
	}
	cutoff := stats.Quantile(scores, 1-d.contamination)

	flagged := []int{}
	for i, s := range scores {
		if s > cutoff {
			flagged = append(flagged, i)
		}
	}
	return flagged, nil
}

// DetectAll runs methods (all three when empty), merges the flagged rows,
// grades their severity and appends the report to history.
func (d *Detector) DetectAll(ctx context.Context, ds *dataset.Dataset, methods ...string) (*model.AnomalyReport, error) {
	if ds.Empty() {
		return nil, ErrEmptyDataset
	}
	methods, err := normalizeMethods(methods)
	if err != nil {
		return nil, err
	}

	d.logger.Info("starting anomaly detection",
		"dataset", ds.Name(),
		"rows", ds.Len(),
		"methods", methods,
	)

	profiles, err := d.profile(ctx, ds)
	if err != nil {
		return nil, err
	}

	report := &model.AnomalyReport{
		Timestamp:         d.clock().UTC(),
		DatasetName:       ds.Name(),
		RowCount:          ds.Len(),
		MethodsUsed:       methods,
		AnomaliesByMethod: make(map[string]int, len(methods)),
		AnomaliesByColumn: make(map[string]int),
	}

	all := make(map[int]struct{})
	for _, m := range methods {
		var rows []int
		switch m {
		case MethodZScore:
			cols := zscoreByColumn(profiles, d.zThreshold)
			addColumnCounts(report.AnomaliesByColumn, cols, m)
			rows = cols.union()
		case MethodIQR:
			cols := iqrByColumn(profiles, d.iqrMultiplier)
			addColumnCounts(report.AnomaliesByColumn, cols, m)
			rows = cols.union()
		case MethodIsolationForest:
			rows, err = d.DetectIsolationForest(ctx, ds)
			if err != nil {
				return nil, fmt.Errorf("isolation forest: %w", err)
			}
		}

		report.AnomaliesByMethod[m] = len(rows)
		for _, r := range rows {
			all[r] = struct{}{}
		}
		d.logger.Debug("method complete", "dataset", ds.Name(), "method", m, "anomalies", len(rows))
	}

	report.AnomalyRowIndices = sortedRows(all)
	report.TotalAnomalies = len(report.AnomalyRowIndices)
	report.AnomalyPercentage = stats.Round(float64(report.TotalAnomalies)/float64(ds.Len())*100, 2)
	for _, r := range report.AnomalyRowIndices {
		report.SeverityDistribution.Add(rowSeverity(profiles, r))
	}

	d.history.Append(report)

	d.logger.Info("anomaly detection complete",
		"dataset", ds.Name(),
		"total_anomalies", report.TotalAnomalies,
		"percentage", report.AnomalyPercentage,
	)

	return report, nil
}

func normalizeMethods(methods []string) ([]string, error) {
	if len(methods) == 0 {
		return AllMethods(), nil
	}
	seen := make(map[string]bool, len(methods))
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		switch m {
		case MethodZScore, MethodIQR, MethodIsolationForest:
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, m)
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// addColumnCounts records <column>_<method> counts.
func addColumnCounts(dst map[string]int, cols byColumn, method string) {
	for col, rows := range cols {
		if len(rows) > 0 {
			dst[col+"_"+method] = len(rows)
		}
	}
}

// rowSeverity grades row r by the share of numeric columns where its
// |z| exceeds 3. The std is padded by a tiny epsilon so zero-variance columns
// contribute z = 0.
func rowSeverity(profiles []columnProfile, r int) model.AnomalySeverity {
	if len(profiles) == 0 {
		return model.AnomalyLow
	}
	affected := 0
	for _, p := range profiles {
		v := p.values[r]
		if math.IsNaN(v) || math.IsNaN(p.mean) {
			continue
		}
		if math.Abs(v-p.mean)/(p.std+stats.Epsilon) > severityZThreshold {
			affected++
		}
	}
	n := float64(len(profiles))
	switch {
	case float64(affected) >= n*0.5:
		return model.AnomalyHigh
	case float64(affected) >= n*0.2:
		return model.AnomalyMedium
	default:
		return model.AnomalyLow
	}
}

// Severity grades each of rows and returns the distribution.
func (d *Detector) Severity(ctx context.Context, ds *dataset.Dataset, rows []int) (model.SeverityDistribution, error) {
	var dist model.SeverityDistribution
	if ds.Empty() {
		return dist, ErrEmptyDataset
	}
	profiles, err := d.profile(ctx, ds)
	if err != nil {
		return dist, err
	}
	for _, r := range rows {
		if r < 0 || r >= ds.Len() {
			return dist, fmt.Errorf("row %d out of range [0, %d)", r, ds.Len())
		}
		dist.Add(rowSeverity(profiles, r))
	}
	return dist, nil
}

// Details returns up to limit flagged rows of report with their values and
// severity. A limit <= 0 returns every row.
func (d *Detector) Details(ctx context.Context, ds *dataset.Dataset, report *model.AnomalyReport, limit int) ([]model.AnomalyDetail, error) {
	profiles, err := d.profile(ctx, ds)
	if err != nil {
		return nil, err
	}
	rows := report.AnomalyRowIndices
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]model.AnomalyDetail, 0, len(rows))
	for _, r := range rows {
		if r < 0 || r >= ds.Len() {
			continue
		}
		values := make(map[string]any, ds.Width())
		for k, v := range ds.Row(r) {
			values[k] = v.Interface()
		}
		out = append(out, model.AnomalyDetail{
			Row:      r,
			Severity: rowSeverity(profiles, r).String(),
			Values:   values,
		})
	}
	return out, nil
}
