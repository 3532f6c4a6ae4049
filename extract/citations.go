package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/deepresearch/core"
)

// citationPattern matches bracket-enclosed numeric references like [3].
var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// contextRadius is how many bytes of surrounding text are kept per citation.
const contextRadius = 60

// ScanCitations runs the deterministic pattern scan for bracketed numeric
// references over raw text. It is independent of structural parsing so
// citations survive even when the response body is malformed.
func ScanCitations(raw string) []core.Citation {
	matches := citationPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return nil
	}

	citations := make([]core.Citation, 0, len(matches))
	for _, m := range matches {
		ref, err := strconv.Atoi(raw[m[2]:m[3]])
		if err != nil {
			continue
		}

		start := m[0] - contextRadius
		if start < 0 {
			start = 0
		}
		end := m[1] + contextRadius
		if end > len(raw) {
			end = len(raw)
		}

		citations = append(citations, core.Citation{
			Reference: ref,
			Context:   strings.TrimSpace(raw[start:end]),
		})
	}
	return citations
}
