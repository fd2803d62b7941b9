// Package quality scores a dataset on four independent dimensions and
// combines them into a single quality score.
//
//   - completeness: share of non-null cells
//   - uniqueness: share of non-duplicate rows, optionally over key columns
//   - validity: mean pass rate of the validity rules
//   - consistency: type homogeneity per column plus a wide IQR range check
//     on numeric columns
//
// The score weights are fixed (0.30, 0.25, 0.25, 0.20). Thresholds that turn
// scores into alerts belong to the decision layer, not here.
package quality
