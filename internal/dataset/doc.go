// Package dataset holds the immutable in-memory table every analysis runs on.
//
// A Dataset is column oriented: each Column carries a name, an inferred Type
// and one Value per row. Values are typed scalars (number, text, bool, time)
// or null. Nothing in this package mutates a Dataset after construction, so
// one Dataset can be shared by the quality engine and the anomaly detector
// running side by side.
//
// Loaders read CSV and JSON record arrays. CSV columns are typed as a whole:
// a column is numeric only when every non-null cell parses as a number,
// otherwise every cell keeps its raw text.
package dataset
