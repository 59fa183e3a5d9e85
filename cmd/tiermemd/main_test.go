package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/config"
	"github.com/fyrsmithlabs/tiermem/internal/memory"
	"github.com/fyrsmithlabs/tiermem/internal/services"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func waitHealthy(t *testing.T, base string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)
}

func TestMainIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	home := t.TempDir()
	port := freePort(t)
	t.Setenv("HOME", home)
	t.Setenv("TIERMEM_SERVER_HTTP_PORT", fmt.Sprint(port))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, options{})
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitHealthy(t, base)

	body := strings.NewReader(`{"content":"the bridge washed out","type":"event","importance":0.8}`)
	resp, err := http.Post(base+"/api/v1/agents/alice/memories", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(base + "/api/v1/agents/alice/context")
	require.NoError(t, err)
	var rendered struct {
		Context string `json:"context"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rendered))
	resp.Body.Close()
	assert.Contains(t, rendered.Context, "the bridge washed out")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shutdown in time")
	}

	// Shutdown saves a final snapshot.
	_, err = os.Stat(filepath.Join(home, ".config", "tiermem", "snapshots", "alice.json"))
	assert.NoError(t, err)
}

func TestRun_ResumesFromSnapshots(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := config.Load("")
	require.NoError(t, err)

	ctx := context.Background()
	first, err := newApp(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	first.runner.Advance(ctx, 500)
	_, err = first.memory.Add(ctx, "bob", services.AddRequest{Content: "mined copper all day"})
	require.NoError(t, err)
	first.Close()

	second, err := newApp(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, []string{"bob"}, second.registry.Agents())
	assert.Equal(t, int64(500), second.runner.Now(), "clock resumes at the newest restored entry")
}

func TestNewTagger(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()

	t.Run("no path", func(t *testing.T) {
		tg, err := newTagger(config.TagRulesConfig{}, logger)
		require.NoError(t, err)
		assert.Equal(t, memory.DefaultRules()[0].Tag, tg.Rules()[0].Tag)
	})

	t.Run("missing file", func(t *testing.T) {
		tg, err := newTagger(config.TagRulesConfig{Path: filepath.Join(dir, "absent.toml")}, logger)
		require.NoError(t, err)
		assert.Len(t, tg.Rules(), len(memory.DefaultRules()))
	})

	t.Run("file replaces rules", func(t *testing.T) {
		path := filepath.Join(dir, "rules.toml")
		require.NoError(t, os.WriteFile(path, []byte("replace = true\n\n[[rule]]\ntag = \"harvest\"\nkeywords = [\"harvest\"]\n"), 0o600))
		tg, err := newTagger(config.TagRulesConfig{Path: path}, logger)
		require.NoError(t, err)
		require.Len(t, tg.Rules(), 1)
		assert.Equal(t, "harvest", tg.Rules()[0].Tag)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("[[rule]\n"), 0o600))
		_, err := newTagger(config.TagRulesConfig{Path: path}, logger)
		assert.ErrorContains(t, err, "failed to load tag rules")
	})
}
