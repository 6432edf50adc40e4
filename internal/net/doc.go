// Package net provides Transports which carry Channel Blocks between workers:
// an in-process group for single-process jobs and tests, and a gRPC transport
// for jobs spanning several processes.
package net
