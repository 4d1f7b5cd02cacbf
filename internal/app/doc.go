// Package app provides the application service layer.
//
// Orchestrates the analysis use cases: synchronous analysis, asynchronous job
// submission, out-of-band job processing and job status lookups. Depends on domain
// ports and the analysis, cache and job packages, never on concrete adapters.
package app
