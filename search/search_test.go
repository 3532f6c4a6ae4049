package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/deepresearch/core"
)

func TestNoOpProvider(t *testing.T) {
	results, err := NoOpProvider{}.Search(context.Background(), "anything")
	assert.NoError(t, err)
	assert.Empty(t, results)
}

func TestInMemoryProvider_Search(t *testing.T) {
	p := NewInMemoryProvider(10)
	p.Add(
		Document{URL: "https://example.com/solar", Title: "Solar power", Content: "Photovoltaic cells convert sunlight."},
		Document{URL: "https://example.com/wind", Title: "Wind power", Content: "Turbines convert kinetic energy."},
	)

	results, err := p.Search(context.Background(), "solar sunlight")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com/solar", results[0].URL)

	results, err = p.Search(context.Background(), "convert")
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = p.Search(context.Background(), "nuclear")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInMemoryProvider_Limit(t *testing.T) {
	p := NewInMemoryProvider(1)
	p.Add(
		Document{URL: "a", Content: "shared term"},
		Document{URL: "b", Content: "shared term"},
	)

	results, err := p.Search(context.Background(), "shared")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestHTTPProvider_Search(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"url":"https://example.com","title":"Example","markdown":"Example content"},{"url":"","markdown":"dropped"}]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, func(o *HTTPOptions) { o.APIKey = "secret" })
	results, err := p.Search(context.Background(), "example")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com", results[0].URL)
	assert.Equal(t, "Example content", results[0].Content)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestHTTPProvider_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	_, err := p.Search(context.Background(), "q")
	require.Error(t, err)

	var transient *core.TransientError
	assert.ErrorAs(t, err, &transient)
}

func TestHTTPProvider_ClientErrorIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	_, err := p.Search(context.Background(), "q")
	require.Error(t, err)

	var transient *core.TransientError
	assert.False(t, errors.As(err, &transient))
}
