// Package core holds the algorithms behind grouped shuffles: key partitioning,
// k-way merging of sorted runs, and pre-shuffle hash aggregation.
package core
