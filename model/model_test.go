package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModel_RuleOrder(t *testing.T) {
	m := NewMockModel("mock", "test")
	m.AddResponse("alpha", "first")
	m.AddResponse("alpha beta", "second")

	// First registered hit wins even when a later rule also matches.
	resp, err := m.Generate(context.Background(), Request{Prompt: "alpha beta gamma"})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)
}

func TestMockModel_FallbackAndRecording(t *testing.T) {
	m := NewMockModel("mock", "test")

	resp, err := m.Generate(context.Background(), Request{Prompt: "unmatched"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "unmatched")

	require.Equal(t, 1, m.CallCount())
	assert.Equal(t, "unmatched", m.Requests()[0].Prompt)
}

func TestMockModel_Error(t *testing.T) {
	m := NewMockModel("mock", "test")
	m.SetError(errors.New("down"))

	_, err := m.Generate(context.Background(), Request{Prompt: "q"})
	assert.Error(t, err)

	m.SetError(nil)
	_, err = m.Generate(context.Background(), Request{Prompt: "q"})
	assert.NoError(t, err)
}

func TestMockModel_ContextCancelled(t *testing.T) {
	m := NewMockModel("mock", "test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, Request{Prompt: "q"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder()
	e.AddVector("known", []float32{0, 1, 0})

	v, err := e.Embed(context.Background(), "known")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, v)

	// Unknown inputs get a deterministic unit vector.
	v, err = e.Embed(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, v)

	assert.Equal(t, 2, e.CallCount())
}
