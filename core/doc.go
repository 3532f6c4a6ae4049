// Package core defines the shared data model of the research pipeline:
// the recursive ResearchTask tree, generated sub-queries, extraction results,
// progress snapshots and the error taxonomy every component reports through.
// It has no dependencies on the concrete pipeline packages so that leaf
// components (splitter, cache, batch, extract) can share types without
// import cycles.
package core
