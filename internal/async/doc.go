// Package async provides the concurrency primitives used by channels and tests:
// a one-shot Future and a fixed-size ThreadPool.
package async
