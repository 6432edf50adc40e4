// Package api contains the per-worker execution Context and the operators which
// run on it: source nodes which feed records into a job, and GroupByIndexNode,
// which shuffles records by a dense integer index and groups them.
package api
