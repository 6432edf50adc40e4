// Package dataflow contains the core contracts of a distributed dataflow engine which
// redistributes records across workers by key, spills and merges them in key order, and
// drives user grouping functions over a dense index space. This root package defines the
// types supplied by users of the engine (serializers, key extractors, grouping and reduction
// functions); implementations live in the api, cluster and internal packages.
package dataflow
