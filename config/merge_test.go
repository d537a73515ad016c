package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestResolve_S5Precedence is spec.md §8 scenario S5, verbatim.
func TestResolve_S5Precedence(t *testing.T) {
	adapterDefaults := map[string]any{
		"host": "www.deribit.com",
		"port": 443,
		"path": "/ws/api/v2",
	}
	clientDefaults := map[string]any{
		"host":      "client.example.com",
		"timeout":   "15s",
		"log_level": "warn",
	}
	user := map[string]any{
		"timeout": "35s",
		"custom":  "x",
	}

	opts, err := Resolve(adapterDefaults, clientDefaults, user)
	require.NoError(t, err)

	assert.Equal(t, "client.example.com", opts.Host)
	assert.EqualValues(t, 443, opts.Port)
	assert.Equal(t, "/ws/api/v2", opts.Path)
	assert.Equal(t, 35*time.Second, opts.Timeout)
	assert.Equal(t, "warn", opts.LogLevel)
	assert.Equal(t, "x", opts.Extra["custom"])
}

func TestDeepMerge_NilUserValueDoesNotOverride(t *testing.T) {
	dst := map[string]any{"host": "adapter.example.com"}
	src := map[string]any{"host": nil}

	got := DeepMerge(dst, src)
	assert.Equal(t, "adapter.example.com", got["host"])
}

func TestDeepMerge_NestedMapsMergeKeyByKey(t *testing.T) {
	dst := map[string]any{
		"ws_opts": map[string]any{"compress": false, "max_frame_size": 1024},
	}
	src := map[string]any{
		"ws_opts": map[string]any{"compress": true},
	}

	got := DeepMerge(dst, src)
	ws := got["ws_opts"].(map[string]any)
	assert.Equal(t, true, ws["compress"])
	assert.Equal(t, 1024, ws["max_frame_size"])
}

func TestDeepMerge_ListsReplaceWholesale(t *testing.T) {
	dst := map[string]any{"protocols": []string{"a", "b"}}
	src := map[string]any{"protocols": []string{"c"}}

	got := DeepMerge(dst, src)
	assert.Equal(t, []string{"c"}, got["protocols"])
}

func TestDeepMerge_CredentialsReplaceWholesale(t *testing.T) {
	dst := map[string]any{
		"credentials": map[string]any{"api_key": "old", "secret": "old-secret"},
	}
	src := map[string]any{
		"credentials": map[string]any{"api_key": "new"},
	}

	got := DeepMerge(dst, src)
	creds := got["credentials"].(map[string]any)
	assert.Equal(t, "new", creds["api_key"])
	_, hasSecret := creds["secret"]
	assert.False(t, hasSecret, "credentials must replace wholesale, not deep-merge")
}

func TestValidate_RejectsMissingHost(t *testing.T) {
	opts := Default()
	opts.Port = 443
	err := Validate(opts)
	require.Error(t, err)
}

func TestValidate_AcceptsFullyResolvedOptions(t *testing.T) {
	opts := Default()
	opts.Host = "example.com"
	opts.Port = 443
	err := Validate(opts)
	require.NoError(t, err)
}
