// Package engine implements the recursion controller: the state machine that
// expands one ResearchTask into sub-queries, dispatches them through the
// batch executor, extracts learnings from each response and recurses with a
// reduced depth/breadth budget until the task is terminal.
//
// Failure policy: every per-worker failure is contained at the worker
// boundary and converted to an empty partial result. A failing branch
// degrades coverage; it never aborts the tree. Only construction-time
// configuration errors abort a run.
//
// Concurrency: each batch invocation owns its own semaphore sized by the
// configured ceiling, so a worker awaiting its descendants never holds a
// slot those descendants need and recursion cannot deadlock on the limiter.
package engine
