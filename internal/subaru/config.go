package subaru

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config struct
type Config struct {
	Values map[string]string
	Repos  []Repo
}

// Repo describes one configured package repository. The index is fetched
// from URL when set, otherwise read from Path.
type Repo struct {
	Name    string `toml:"name"`
	URL     string `toml:"url"`
	Path    string `toml:"path"`
	Enabled *bool  `toml:"enabled"`
}

type repoFile struct {
	Repos []Repo `toml:"repo"`
}

// LoadConfig reads /etc/subaru.conf and applies defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	MergeEnvOverrides(cfg)

	return cfg, nil
}

// MergeEnvOverrides applies SUBARU_* environment variables on top of the
// config file.
func MergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "SUBARU_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

// LoadRepos parses the repository list from repos.toml. Disabled entries are
// skipped.
func LoadRepos(path string) ([]Repo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read repo list %s: %w", path, err)
	}

	var rf repoFile
	if err := toml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse repo list %s: %w", path, err)
	}

	var repos []Repo
	for _, r := range rf.Repos {
		if r.Name == "" {
			return nil, fmt.Errorf("repo list %s: entry without a name", path)
		}
		if r.URL == "" && r.Path == "" {
			return nil, fmt.Errorf("repo %q: needs either url or path", r.Name)
		}
		if r.Enabled != nil && !*r.Enabled {
			continue
		}
		repos = append(repos, r)
	}
	return repos, nil
}

// InitConfig resolves global paths from the loaded configuration.
func InitConfig(cfg *Config) error {
	rootDir = cfg.Values["SUBARU_ROOT"]
	if rootDir == "" {
		rootDir = "/"
	}

	CacheDir = filepath.Join(rootDir, "var/cache/subaru")
	IndexCache = filepath.Join(CacheDir, "index")
	Installed = filepath.Join(rootDir, "var/db/subaru/installed")

	MirrorURL = cfg.Values["SUBARU_MIRROR"]

	if cfg.Values["SUBARU_DEBUG"] == "1" {
		Debug = true
	}
	if cfg.Values["SUBARU_VERBOSE"] == "1" {
		Verbose = true
	}

	reposPath := cfg.Values["SUBARU_REPOS"]
	if reposPath == "" {
		reposPath = filepath.Join(rootDir, strings.TrimPrefix(ReposFile, "/"))
	}
	repos, err := LoadRepos(reposPath)
	if err != nil {
		return err
	}
	cfg.Repos = repos
	return nil
}

// RefreshInterval returns the background installed-set refresh interval,
// defaulting to two minutes.
func (c *Config) RefreshInterval() time.Duration {
	if raw := c.Values["SUBARU_REFRESH_INTERVAL"]; raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return 2 * time.Minute
}
