package core

// MaxVisitedSources is the hard ceiling on the number of distinct sources a
// research tree may accumulate before expansion stops. The terminal check in
// the engine treats crossing this ceiling the same as an exhausted depth
// budget: a base case, not an error.
const MaxVisitedSources = 20

// ResearchTask is one node of the recursive exploration tree. It carries the
// query under investigation, the remaining depth/breadth budget and the
// findings accumulated so far. A task owns its Learnings and VisitedSources
// slices exclusively; results from child tasks are merged upward via
// MergeLearnings / MergeSources, never by mutating a child's state in place.
type ResearchTask struct {
	Query          string   `json:"query"`
	ResearchGoal   string   `json:"researchGoal"`
	Depth          int      `json:"depth"`
	Breadth        int      `json:"breadth"`
	Learnings      []string `json:"learnings,omitempty"`
	VisitedSources []string `json:"visitedSources,omitempty"`
}

// IsTerminal reports whether the task has exhausted its budget. Both limits
// are hard ceilings.
func (t ResearchTask) IsTerminal() bool {
	return t.Depth <= 0 || len(t.VisitedSources) > MaxVisitedSources
}

// Child derives the task for the next recursion level: depth shrinks by one,
// breadth halves (rounded up), and the accumulated state is copied so the
// child never aliases the parent's slices.
func (t ResearchTask) Child(query, researchGoal string, learnings, sources []string) ResearchTask {
	return ResearchTask{
		Query:          query,
		ResearchGoal:   researchGoal,
		Depth:          t.Depth - 1,
		Breadth:        (t.Breadth + 1) / 2,
		Learnings:      append([]string(nil), learnings...),
		VisitedSources: append([]string(nil), sources...),
	}
}

// MergeLearnings appends the given learnings, skipping duplicates while
// preserving first-seen order.
func (t *ResearchTask) MergeLearnings(learnings []string) {
	t.Learnings = AppendUnique(t.Learnings, learnings...)
}

// MergeSources appends the given source identifiers, skipping duplicates
// while preserving first-seen order.
func (t *ResearchTask) MergeSources(sources []string) {
	t.VisitedSources = AppendUnique(t.VisitedSources, sources...)
}

// AppendUnique appends values to dst, dropping entries already present.
// First-seen order is preserved.
func AppendUnique(dst []string, values ...string) []string {
	seen := make(map[string]struct{}, len(dst)+len(values))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

// SubQuery is one generated follow-up query together with the goal it is
// meant to advance. Produced in batches of size breadth and consumed exactly
// once by the batch executor.
type SubQuery struct {
	Query        string `json:"query" description:"The search query to run"`
	ResearchGoal string `json:"researchGoal" description:"What this query should uncover and how to advance the research once answered"`
}

// Citation is a bracketed numeric reference recovered from raw model output
// together with the sentence fragment surrounding it.
type Citation struct {
	Reference int    `json:"reference"`
	Context   string `json:"context"`
}

// ExtractionResult is the structured value distilled from one generative
// response. It lives only as long as the task that produced it; learnings and
// source URLs are merged into the task's accumulated state.
type ExtractionResult struct {
	Learnings  []string   `json:"learnings"`
	SourceURLs []string   `json:"sourceUrls,omitempty"`
	Citations  []Citation `json:"citations,omitempty"`
}

// MaxLearningsPerExtraction caps how many learnings a single extraction may
// contribute.
const MaxLearningsPerExtraction = 10

// Clamp drops learnings beyond MaxLearningsPerExtraction and empty entries.
func (r ExtractionResult) Clamp() ExtractionResult {
	out := ExtractionResult{SourceURLs: r.SourceURLs, Citations: r.Citations}
	for _, l := range r.Learnings {
		if l == "" {
			continue
		}
		out.Learnings = append(out.Learnings, l)
		if len(out.Learnings) == MaxLearningsPerExtraction {
			break
		}
	}
	return out
}

// ProgressSnapshot is the read-only view of the engine's progress handed to
// observers after every completed sub-query. Consumers must not mutate it.
type ProgressSnapshot struct {
	CurrentDepth     int    `json:"currentDepth"`
	TotalDepth       int    `json:"totalDepth"`
	CurrentBreadth   int    `json:"currentBreadth"`
	TotalBreadth     int    `json:"totalBreadth"`
	CompletedQueries int    `json:"completedQueries"`
	TotalQueries     int    `json:"totalQueries"`
	CurrentQuery     string `json:"currentQuery,omitempty"`
}
