// Package domain defines the core types and ports of the analysis service.
//
// Concept-oriented files (analysis.go, job.go, store.go, errors.go) hold shared types and
// the interfaces adapters implement. No implementation code beyond small value helpers.
package domain
