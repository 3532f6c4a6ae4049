package engine

// systemPrompt frames every generative call issued by the controller.
const systemPrompt = `You are an expert researcher. Be precise, cite sources where available and respond in the exact JSON shape you are asked for.`

// subQueriesPrompt asks for the fan-out of one task into breadth sub-queries.
const subQueriesPrompt = `Given the following research query, generate up to {{.breadth}} distinct search queries that together advance the research. Each entry needs a "query" and a "researchGoal" describing what the query should uncover and how to go deeper once answered.

Query: {{.query}}
{{- if .goal}}
Research goal: {{.goal}}
{{- end}}
{{- if .learnings}}

Prior learnings to build on, not repeat:
{{bullet .learnings}}
{{- end}}
Respond with a JSON object {"queries": [{"query": "...", "researchGoal": "..."}]}.`

// analysisPrompt asks for learnings extracted from retrieved content (or,
// without sources, from the model's own knowledge).
const analysisPrompt = `Analyze the following material for the search query "{{.query}}"{{if .goal}} (goal: {{.goal}}){{end}} and distill it into at most {{.maxLearnings}} dense, factual learnings. Include exact figures, names and dates where present.
{{- if .contents}}

Material:
{{- range .contents}}
<content>
{{.}}
</content>
{{- end}}
{{- else}}

No retrieved material is available; answer from established knowledge only and keep claims conservative.
{{- end}}
Respond with a JSON object {"learnings": ["..."], "sourceUrls": ["..."]}.`
