// Package anomaly flags outlier rows in a dataset and measures drift against
// a reference dataset.
//
// Three methods are available and can be combined:
//   - zscore: univariate, |x - mean| / std above a threshold (default 3)
//   - iqr: univariate, outside [Q1 - k*IQR, Q3 + k*IQR] (default k = 1.5)
//   - isolation_forest: multivariate tree ensemble over standardized numeric
//     columns, flagging the expected contamination fraction
//
// DetectAll unions the rows flagged by each method. A row found by two
// methods counts once in the total and once for each method.
//
// Design decision: every method skips non-numeric columns silently, and the
// isolation forest returns no rows (with a warning) when there is nothing
// numeric to look at. Only an empty dataset is an error.
package anomaly
