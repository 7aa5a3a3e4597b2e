package generate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/compliance-agent/internal/errors"
)

func TestRenderPrompt_Deterministic(t *testing.T) {
	c := Context{
		ProjectKey:  "alpha",
		ProjectName: "Alpha",
		Phase:       "planning",
		Params:      map[string]string{"artifact_name": "charter.md", "artifact_type": "charter"},
	}
	a := RenderPrompt("generate-artifact", c)
	b := RenderPrompt("generate-artifact", c)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "Alpha")
	assert.Contains(t, a, `"charter.md"`)
	assert.Contains(t, a, "artifact_type: charter")
}

func TestRenderPrompt_Commands(t *testing.T) {
	c := Context{ProjectKey: "alpha", ProjectName: "Alpha"}
	assert.Contains(t, RenderPrompt("assess-gaps", c), "gap assessment")
	assert.Contains(t, RenderPrompt("generate-plan", Context{ProjectName: "Alpha", Params: map[string]string{"plan_type": "stage"}}), "stage plan")
}

func TestAnthropicGenerator_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"# Charter\n\nBody."}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":20}}`))
	}))
	defer srv.Close()

	g := NewAnthropicGenerator("test-key", WithBaseURL(srv.URL))
	text, err := g.Generate(context.Background(), "generate-artifact", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "# Charter\n\nBody.", text)
}

func TestAnthropicGenerator_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	g := NewAnthropicGenerator("test-key", WithBaseURL(srv.URL))
	_, err := g.Generate(context.Background(), "assess-gaps", "prompt")
	assert.ErrorIs(t, err, perrors.ErrGeneratorUnavailable)
	assert.Contains(t, err.Error(), "rate_limit_error")
}

func TestAnthropicGenerator_Unreachable(t *testing.T) {
	g := NewAnthropicGenerator("test-key", WithBaseURL("http://127.0.0.1:1"))
	_, err := g.Generate(context.Background(), "assess-gaps", "prompt")
	assert.ErrorIs(t, err, perrors.ErrGeneratorUnavailable)
}

func TestAnthropicGenerator_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	g := NewAnthropicGenerator("test-key", WithBaseURL(srv.URL))
	_, err := g.Generate(ctx, "assess-gaps", "prompt")
	assert.ErrorIs(t, err, perrors.ErrTimeout)
}

func TestAnthropicGenerator_EmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	g := NewAnthropicGenerator("test-key", WithBaseURL(srv.URL))
	_, err := g.Generate(context.Background(), "assess-gaps", "prompt")
	assert.ErrorIs(t, err, perrors.ErrGeneratorUnavailable)
}

func TestRenderFallback(t *testing.T) {
	c := Context{
		ProjectKey:  "alpha",
		ProjectName: "Alpha",
		Description: "ISO 27001 readiness",
		Params:      map[string]string{"artifact_name": "charter.md", "artifact_type": "charter"},
	}

	gap := RenderFallback("assess-gaps", c)
	assert.Contains(t, gap, "# Gap Assessment: Alpha")
	assert.Contains(t, gap, "Remediation Priorities")

	artifact := RenderFallback("generate-artifact", c)
	assert.Contains(t, artifact, "# charter")
	assert.Contains(t, artifact, "## Purpose")

	plan := RenderFallback("generate-plan", Context{ProjectName: "Alpha", Params: map[string]string{"plan_type": "project"}})
	assert.Contains(t, plan, "# Project Plan: Alpha")

	// Deterministic.
	assert.Equal(t, gap, RenderFallback("assess-gaps", c))
}
