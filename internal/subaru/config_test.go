package subaru

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigKeyValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subaru.conf")
	data := `# comment
SUBARU_MIRROR="https://mirror.example.org/subaru"
SUBARU_DEBUG = 1

malformed line
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://mirror.example.org/subaru", cfg.Values["SUBARU_MIRROR"])
	assert.Equal(t, "1", cfg.Values["SUBARU_DEBUG"])
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.conf"))
	require.NoError(t, err)
	assert.NotNil(t, cfg.Values)
}

func TestMergeEnvOverrides(t *testing.T) {
	t.Setenv("SUBARU_MIRROR", "https://override.example.org")
	cfg := &Config{Values: map[string]string{"SUBARU_MIRROR": "from-file"}}
	MergeEnvOverrides(cfg)
	assert.Equal(t, "https://override.example.org", cfg.Values["SUBARU_MIRROR"])
}

func TestLoadRepos(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.toml")
	data := `
[[repo]]
name = "core"
url = "https://mirror.example.org/core/index.json.zst"

[[repo]]
name = "extra"
path = "/srv/repos/extra/index.json"

[[repo]]
name = "testing"
url = "https://mirror.example.org/testing/index.json.zst"
enabled = false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	repos, err := LoadRepos(path)
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "core", repos[0].Name)
	assert.Equal(t, "extra", repos[1].Name)
}

func TestLoadReposValidation(t *testing.T) {
	dir := t.TempDir()

	noName := filepath.Join(dir, "noname.toml")
	require.NoError(t, os.WriteFile(noName, []byte("[[repo]]\nurl = \"x\"\n"), 0o644))
	_, err := LoadRepos(noName)
	assert.Error(t, err)

	noSource := filepath.Join(dir, "nosource.toml")
	require.NoError(t, os.WriteFile(noSource, []byte("[[repo]]\nname = \"x\"\n"), 0o644))
	_, err = LoadRepos(noSource)
	assert.Error(t, err)
}

func TestRefreshInterval(t *testing.T) {
	cfg := &Config{Values: map[string]string{}}
	assert.Equal(t, 2*time.Minute, cfg.RefreshInterval())

	cfg.Values["SUBARU_REFRESH_INTERVAL"] = "30s"
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval())

	cfg.Values["SUBARU_REFRESH_INTERVAL"] = "garbage"
	assert.Equal(t, 2*time.Minute, cfg.RefreshInterval())
}
