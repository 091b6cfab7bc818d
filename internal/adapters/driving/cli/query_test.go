package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCmd_Use(t *testing.T) {
	assert.Equal(t, "query [prompt]", queryCmd.Use)
}

func TestQueryCmd_RequiresPrompt(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"query"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestQueryCmd_HasFlags(t *testing.T) {
	for _, name := range []string{"collection", "threshold", "history", "json", "no-neighbors"} {
		assert.NotNil(t, queryCmd.Flags().Lookup(name), "flag %s should exist", name)
	}
}

func TestQueryCmd_PrintsResults(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"query", "billing runbook"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "runbook.md #2 (0.82)")
	assert.Contains(t, out, "runbook.md #3 (context)")
	assert.Contains(t, out, "Freeze writes")
	assert.Equal(t, "billing runbook", queryService.(*mockQueryService).lastPrompt)
}

func TestQueryCmd_PassesOptions(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{
		"query", "-c", "research", "-t", "0.6",
		"--history", "earlier chat", "--no-neighbors", "billing",
	})
	defer func() {
		rootCmd.SetArgs(nil)
		queryCollection = ""
		queryThreshold = 0
		queryHistory = ""
		queryNoNeighbors = false
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	opts := queryService.(*mockQueryService).lastOpts
	assert.Equal(t, "research", opts.Collection)
	assert.InDelta(t, 0.6, opts.Threshold, 1e-9)
	assert.Equal(t, "earlier chat", opts.History)
	assert.False(t, opts.ExpandNeighbors)
}

func TestQueryCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"query", "--json", "billing runbook"})
	defer func() {
		rootCmd.SetArgs(nil)
		queryJSON = false
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "\"expanded_query\"")
	assert.Contains(t, out, "\"chunk_index\"")
	assert.Contains(t, out, "\"implicated\"")
}

func TestQueryCmd_NoResults(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	resp := sampleResponse()
	resp.Results = nil
	resp.Count = 0
	queryService = &mockQueryService{resp: resp}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"query", "nothing matches this"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "No results found")
}

func TestQueryCmd_ServiceNotConfigured(t *testing.T) {
	oldService := queryService
	queryService = nil
	defer func() {
		queryService = oldService
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"query", "billing"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "query service not configured")
}

func TestQueryCmd_ServiceError(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	queryService = &mockQueryService{err: errMock}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"query", "billing"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "query failed")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short text", snippet("short text", 200))
	assert.Equal(t, "line one line two", snippet("line one\nline two", 200))

	assert.Equal(t, "aaaaa...", snippet("aaaaaaaaaa", 5))
}
