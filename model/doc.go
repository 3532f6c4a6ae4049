// Package model defines the generation and embedding capability boundaries
// of the research pipeline together with in-memory mocks for tests.
//
// Concrete providers live in subpackages (model/openai, model/anthropic) and
// adapt the normalized Request/Response structures to the vendor SDKs,
// including schema-constrained structured output.
package model
