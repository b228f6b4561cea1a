package subaru

import (
	"encoding/json"
	"os"
)

// RepoEntry represents a single available package in a repository index.
type RepoEntry struct {
	Name        string   `json:"name"`
	Epoch       int      `json:"epoch,omitempty"`
	Version     string   `json:"version"`
	Release     string   `json:"release"`
	Arch        string   `json:"arch"`
	Repo        string   `json:"repo,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Filename    string   `json:"filename,omitempty"`
	Size        int64    `json:"size,omitempty"`
	B3Sum       string   `json:"b3sum,omitempty"`
	Depends     []string `json:"depends,omitempty"`
	Provides    []string `json:"provides,omitempty"`
	Conflicts   []string `json:"conflicts,omitempty"`
	Obsoletes   []string `json:"obsoletes,omitempty"`
	Files       []string `json:"files,omitempty"`

	Changelog []ChangelogEntry `json:"changelog,omitempty"`
}

// Spec returns the entry's NEVRA identifier.
func (e RepoEntry) Spec() PackageSpec {
	return PackageSpec{
		Name:    e.Name,
		Epoch:   e.Epoch,
		Version: e.Version,
		Release: e.Release,
		Arch:    e.Arch,
	}
}

// ChangelogEntry is one dated changelog record for a package.
type ChangelogEntry struct {
	Date   string `json:"date"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// PackageInfo is the detail view for a single package.
type PackageInfo struct {
	Spec        PackageSpec
	Repo        string
	Summary     string
	Description string
	Installed   bool
}

// DependencyInfo groups the relationship lists for a package.
type DependencyInfo struct {
	Requires  []string
	Provides  []string
	Conflicts []string
	Obsoletes []string
}

// SearchMode selects how QueryAvailable matches the term.
type SearchMode struct {
	InDescription bool
	ExactMatch    bool
}

// Resolution is the computed change set for a requested transaction.
// Problems is non-empty when the request is unsatisfiable or conflicting;
// such a resolution must not be applied.
type Resolution struct {
	Installs []PackageSpec
	Removes  []PackageSpec
	Problems []string
}

// Affected returns the number of packages the resolution would touch.
func (r Resolution) Affected() int {
	return len(r.Installs) + len(r.Removes)
}

// ParseRepoIndex reads a repository index from JSON data.
func ParseRepoIndex(data []byte) ([]RepoEntry, error) {
	var index []RepoEntry
	if len(data) == 0 {
		return index, nil
	}
	err := json.Unmarshal(data, &index)
	return index, err
}

// SaveRepoIndex writes a repository index to a JSON file.
func SaveRepoIndex(path string, index []RepoEntry) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
