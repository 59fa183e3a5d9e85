package tagrules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func tags(rules []memory.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Tag
	}
	return out
}

func TestLoad(t *testing.T) {
	defaults := len(memory.DefaultRules())

	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, rules []memory.Rule)
		wantErr error
	}{
		{
			name: "extends defaults",
			content: `
[[rule]]
tag = "harvest"
keywords = ["harvest", "收获"]
min_importance = 0.4
`,
			check: func(t *testing.T, rules []memory.Rule) {
				require.Len(t, rules, defaults+1)
				last := rules[len(rules)-1]
				assert.Equal(t, "harvest", last.Tag)
				assert.Equal(t, []string{"harvest", "收获"}, last.Keywords)
				assert.Equal(t, 0.4, last.MinImportance)
			},
		},
		{
			name: "overrides a default by tag",
			content: `
[[rule]]
tag = "cooking"
keywords = ["bake"]
`,
			check: func(t *testing.T, rules []memory.Rule) {
				require.Len(t, rules, defaults)
				for _, r := range rules {
					if r.Tag == memory.TagCooking {
						assert.Equal(t, []string{"bake"}, r.Keywords)
						return
					}
				}
				t.Fatal("cooking rule missing")
			},
		},
		{
			name: "replace drops defaults",
			content: `
replace = true

[[rule]]
tag = "alarm"
keywords = ["siren"]
also = ["important"]
`,
			check: func(t *testing.T, rules []memory.Rule) {
				assert.Equal(t, []string{"alarm"}, tags(rules))
				assert.Equal(t, []string{"important"}, rules[0].Also)
			},
		},
		{name: "bad toml", content: `[[rule]`, wantErr: ErrInvalidTOML},
		{name: "unknown key", content: "[[rule]]\ntag = \"x\"\nkeywords = [\"y\"]\nweight = 2\n", wantErr: ErrInvalidTOML},
		{name: "missing tag", content: "[[rule]]\nkeywords = [\"y\"]\n", wantErr: ErrInvalidRule},
		{name: "blank keywords", content: "[[rule]]\ntag = \"x\"\nkeywords = [\" \"]\n", wantErr: ErrInvalidRule},
		{name: "importance out of range", content: "[[rule]]\ntag = \"x\"\nkeywords = [\"y\"]\nmin_importance = 1.5\n", wantErr: ErrInvalidRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rules.toml")
			writeFile(t, path, tt.content)

			rules, err := Load(path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, rules)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.True(t, os.IsNotExist(err))
}

func TestMerge(t *testing.T) {
	base := []memory.Rule{{Tag: "a"}, {Tag: "b"}}
	extra := []memory.Rule{{Tag: "c"}, {Tag: "a", Keywords: []string{"new"}}}

	got := Merge(base, extra)

	assert.Equal(t, []string{"a", "b", "c"}, tags(got))
	assert.Equal(t, []string{"new"}, got[0].Keywords)
	assert.Nil(t, base[0].Keywords, "base is not modified")
}

func TestRulesDriveTagger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	writeFile(t, path, "[[rule]]\ntag = \"harvest\"\nkeywords = [\"Harvest\"]\nmin_importance = 0.7\n")

	rules, err := Load(path)
	require.NoError(t, err)
	tagger := memory.NewTagger(rules)

	e := memory.NewEntry("Finished the harvest early", memory.TypeAction, 0.2, "", 0)
	tagger.Tag(e)

	assert.True(t, e.HasTag("harvest"))
	assert.True(t, e.HasTag(memory.TagTaskComplete), "defaults still apply")
	assert.Equal(t, 0.7, e.Importance)
}

func waitReload(t *testing.T, w *Watcher) error {
	t.Helper()
	select {
	case err := <-w.reloaded:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
		return nil
	}
}

func TestWatcher_HotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.toml")
	writeFile(t, path, "replace = true\n[[rule]]\ntag = \"first\"\nkeywords = [\"one\"]\n")

	tagger := memory.NewTagger(nil)
	w, err := NewWatcher(path, tagger, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	require.NoError(t, w.Reload())
	assert.Equal(t, []string{"first"}, tags(tagger.Rules()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	t.Run("valid change applies", func(t *testing.T) {
		writeFile(t, path, "replace = true\n[[rule]]\ntag = \"second\"\nkeywords = [\"two\"]\n")
		require.NoError(t, waitReload(t, w))
		assert.Equal(t, []string{"second"}, tags(tagger.Rules()))
	})

	t.Run("invalid change keeps rules", func(t *testing.T) {
		writeFile(t, path, "[[rule]\n")
		assert.ErrorIs(t, waitReload(t, w), ErrInvalidTOML)
		assert.Equal(t, []string{"second"}, tags(tagger.Rules()))
	})

	t.Run("other files are ignored", func(t *testing.T) {
		writeFile(t, filepath.Join(dir, "other.toml"), "junk")
		select {
		case err := <-w.reloaded:
			t.Fatalf("unexpected reload: %v", err)
		case <-time.After(3 * reloadDelay):
		}
	})

	t.Run("removal restores defaults", func(t *testing.T) {
		require.NoError(t, os.Remove(path))
		require.NoError(t, waitReload(t, w))
		assert.Len(t, tagger.Rules(), len(memory.DefaultRules()))
	})
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher("", memory.NewTagger(nil), nil)
	assert.Error(t, err)

	_, err = NewWatcher(filepath.Join(t.TempDir(), "r.toml"), nil, nil)
	assert.Error(t, err)

	_, err = NewWatcher(filepath.Join(t.TempDir(), "missing-dir", "r.toml"), memory.NewTagger(nil), nil)
	assert.Error(t, err)
}
