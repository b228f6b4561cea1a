package subaru

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Handle is the in-memory package index: every configured repository's
// entries plus the local installed database, merged at build time. A handle
// is immutable once built; concurrent access is arbitrated by IndexManager,
// which replaces the whole handle on rebuild.
type Handle struct {
	available []RepoEntry
	installed []RepoEntry

	availByName map[string][]int
	availBySpec map[string]int
	instByName  map[string][]int
	instBySpec  map[string]int
}

// BuildIndex constructs a fresh handle: all repository indexes are fetched
// in parallel, then the installed database is read. This is the expensive
// operation the manager serializes; it can take seconds and can fail on
// network or metadata errors.
func BuildIndex(ctx context.Context, cfg *Config) (*Handle, error) {
	h := &Handle{
		availByName: make(map[string][]int),
		availBySpec: make(map[string]int),
		instByName:  make(map[string][]int),
		instBySpec:  make(map[string]int),
	}

	perRepo := make([][]RepoEntry, len(cfg.Repos))
	g, gctx := errgroup.WithContext(ctx)
	for i, repo := range cfg.Repos {
		g.Go(func() error {
			entries, err := fetchRepoIndex(gctx, repo, cfg)
			if err != nil {
				return err
			}
			perRepo[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, entries := range perRepo {
		for _, e := range entries {
			h.availByName[e.Name] = append(h.availByName[e.Name], len(h.available))
			h.availBySpec[e.Spec().String()] = len(h.available)
			h.available = append(h.available, e)
		}
	}

	installed, err := readInstalledDB(Installed)
	if err != nil {
		return nil, err
	}
	for _, e := range installed {
		h.instByName[e.Name] = append(h.instByName[e.Name], len(h.installed))
		h.instBySpec[e.Spec().String()] = len(h.installed)
		h.installed = append(h.installed, e)
	}

	debugf("Index built: %d available, %d installed\n", len(h.available), len(h.installed))
	return h, nil
}

// QueryInstalled returns every installed package, sorted by name.
func (h *Handle) QueryInstalled() []PackageSpec {
	specs := make([]PackageSpec, 0, len(h.installed))
	for _, e := range h.installed {
		specs = append(specs, e.Spec())
	}
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Name != specs[j].Name {
			return specs[i].Name < specs[j].Name
		}
		return compareEVR(specs[i], specs[j]) < 0
	})
	return specs
}

// QueryAvailable searches the available packages for a term. Name-only
// matching is case-sensitive (exact or substring); description mode matches
// the lowercased term against name or description, and with exact match set
// compares the lowercased name only.
func (h *Handle) QueryAvailable(term string, mode SearchMode) []PackageSpec {
	var specs []PackageSpec

	if mode.InDescription {
		lower := strings.ToLower(term)
		for _, e := range h.available {
			name := strings.ToLower(e.Name)
			if mode.ExactMatch {
				if name == lower {
					specs = append(specs, e.Spec())
				}
				continue
			}
			desc := strings.ToLower(e.Description)
			if strings.Contains(name, lower) || strings.Contains(desc, lower) {
				specs = append(specs, e.Spec())
			}
		}
		return specs
	}

	for _, e := range h.available {
		if mode.ExactMatch {
			if e.Name == term {
				specs = append(specs, e.Spec())
			}
			continue
		}
		if strings.Contains(e.Name, term) {
			specs = append(specs, e.Spec())
		}
	}
	return specs
}

// bestCandidate finds the entry for a spec's name, preferring an installed
// candidate and otherwise the latest available EVR.
func (h *Handle) bestCandidate(spec PackageSpec) (RepoEntry, bool, bool) {
	if idxs := h.instByName[spec.Name]; len(idxs) > 0 {
		best := h.installed[idxs[0]]
		for _, i := range idxs[1:] {
			if compareEVR(h.installed[i].Spec(), best.Spec()) > 0 {
				best = h.installed[i]
			}
		}
		return best, true, true
	}
	if idxs := h.availByName[spec.Name]; len(idxs) > 0 {
		best := h.available[idxs[0]]
		for _, i := range idxs[1:] {
			if compareEVR(h.available[i].Spec(), best.Spec()) > 0 {
				best = h.available[i]
			}
		}
		return best, false, true
	}
	return RepoEntry{}, false, false
}

// Detail returns the package info for a spec, preferring the installed
// candidate and otherwise the latest available version of the same name.
func (h *Handle) Detail(spec PackageSpec) (PackageInfo, error) {
	entry, installed, ok := h.bestCandidate(spec)
	if !ok {
		return PackageInfo{}, fmt.Errorf("no details found for %s: %w", spec.Name, errNotFound)
	}
	return PackageInfo{
		Spec:        entry.Spec(),
		Repo:        entry.Repo,
		Summary:     entry.Summary,
		Description: entry.Description,
		Installed:   installed,
	}, nil
}

// Files returns the recorded file list for an installed package. File lists
// exist only for installed packages.
func (h *Handle) Files(spec PackageSpec) ([]string, error) {
	idxs := h.instByName[spec.Name]
	if len(idxs) == 0 {
		return nil, fmt.Errorf("file list available only for installed packages: %w", errUnavailable)
	}
	best := h.installed[idxs[0]]
	for _, i := range idxs[1:] {
		if compareEVR(h.installed[i].Spec(), best.Spec()) > 0 {
			best = h.installed[i]
		}
	}
	return best.Files, nil
}

// Dependencies returns the relationship lists for a spec.
func (h *Handle) Dependencies(spec PackageSpec) (DependencyInfo, error) {
	entry, _, ok := h.bestCandidate(spec)
	if !ok {
		return DependencyInfo{}, fmt.Errorf("no dependency info for %s: %w", spec.Name, errNotFound)
	}
	return DependencyInfo{
		Requires:  entry.Depends,
		Provides:  entry.Provides,
		Conflicts: entry.Conflicts,
		Obsoletes: entry.Obsoletes,
	}, nil
}

// Changelog returns the changelog entries for a spec.
func (h *Handle) Changelog(spec PackageSpec) ([]ChangelogEntry, error) {
	entry, _, ok := h.bestCandidate(spec)
	if !ok {
		return nil, fmt.Errorf("no changelog for %s: %w", spec.Name, errNotFound)
	}
	return entry.Changelog, nil
}

// ResolveTransaction computes the full change set for the requested installs
// and removes: missing dependencies are pulled in by a breadth-first walk
// over declared depends, conflicts and broken reverse dependencies are
// reported as problems. Requests that are already satisfied resolve to
// nothing (the caller decides whether an empty resolution is an error).
func (h *Handle) ResolveTransaction(installs, removes []PackageSpec) Resolution {
	var res Resolution

	removing := make(map[string]bool)    // by name
	removedSpec := make(map[string]bool) // by NEVRA
	for _, spec := range removes {
		var targets []PackageSpec
		if _, ok := h.instBySpec[spec.String()]; ok {
			targets = append(targets, spec)
		} else {
			// A remove naming a different build resolves to whatever builds
			// of that name are actually installed. Nothing installed means
			// nothing to remove.
			for _, i := range h.instByName[spec.Name] {
				targets = append(targets, h.installed[i].Spec())
			}
		}
		for _, target := range targets {
			if !removedSpec[target.String()] {
				removedSpec[target.String()] = true
				removing[target.Name] = true
				res.Removes = append(res.Removes, target)
			}
		}
	}

	planned := make(map[string]bool) // by name
	queue := make([]PackageSpec, 0, len(installs))
	for _, spec := range installs {
		if _, ok := h.instBySpec[spec.String()]; ok && !removing[spec.Name] {
			// Exact NEVRA already installed: nothing to do.
			continue
		}
		queue = append(queue, spec)
	}

	for len(queue) > 0 {
		spec := queue[0]
		queue = queue[1:]
		if planned[spec.Name] {
			continue
		}

		var entry RepoEntry
		if i, ok := h.availBySpec[spec.String()]; ok {
			entry = h.available[i]
		} else if idxs := h.availByName[spec.Name]; len(idxs) > 0 {
			entry = h.available[idxs[0]]
			for _, i := range idxs[1:] {
				if compareEVR(h.available[i].Spec(), entry.Spec()) > 0 {
					entry = h.available[i]
				}
			}
		} else {
			res.Problems = append(res.Problems,
				fmt.Sprintf("nothing provides %s", spec.Name))
			continue
		}

		planned[spec.Name] = true
		res.Installs = append(res.Installs, entry.Spec())

		for _, dep := range entry.Depends {
			if planned[dep] {
				continue
			}
			if len(h.instByName[dep]) > 0 && !removing[dep] {
				continue
			}
			if len(h.availByName[dep]) == 0 {
				res.Problems = append(res.Problems,
					fmt.Sprintf("nothing provides %s, required by %s", dep, entry.Name))
				continue
			}
			queue = append(queue, PackageSpec{Name: dep})
		}

		for _, conflict := range entry.Conflicts {
			if planned[conflict] {
				res.Problems = append(res.Problems,
					fmt.Sprintf("%s conflicts with %s", entry.Name, conflict))
				continue
			}
			if len(h.instByName[conflict]) > 0 && !removing[conflict] {
				res.Problems = append(res.Problems,
					fmt.Sprintf("%s conflicts with installed package %s", entry.Name, conflict))
			}
		}
	}

	// Removing a package that something still installed depends on is a
	// problem unless a planned install satisfies it.
	for name := range removing {
		for _, e := range h.installed {
			if removing[e.Name] {
				continue
			}
			for _, dep := range e.Depends {
				if dep == name && !planned[name] {
					res.Problems = append(res.Problems,
						fmt.Sprintf("%s is required by installed package %s", name, e.Name))
				}
			}
		}
	}

	return res
}

// Apply executes a resolution against the installed database: removed
// packages lose their DB directory, installed ones gain a fresh directory
// written from the repository entry. Failures are itemized; a resolution
// with problems is rejected outright.
func (h *Handle) Apply(res Resolution) error {
	if len(res.Problems) > 0 {
		return &ResolutionError{Problems: res.Problems}
	}

	var messages []string

	for _, spec := range res.Removes {
		dir := filepath.Join(Installed, spec.String())
		if err := os.RemoveAll(dir); err != nil {
			messages = append(messages, fmt.Sprintf("remove %s: %v", spec, err))
		}
	}

	for _, spec := range res.Installs {
		i, ok := h.availBySpec[spec.String()]
		if !ok {
			messages = append(messages, fmt.Sprintf("install %s: entry vanished from index", spec))
			continue
		}
		if err := writeInstalledEntry(Installed, h.available[i]); err != nil {
			messages = append(messages, fmt.Sprintf("install %s: %v", spec, err))
		}
	}

	if len(messages) > 0 {
		return &RunError{Messages: messages}
	}
	return nil
}

// installedDBMu serializes writes to the installed database directory.
var installedDBMu sync.Mutex

// readInstalledDB loads the installed database: one directory per NEVRA
// containing pkginfo, depends, manifest and changelog.json.
func readInstalledDB(dbDir string) ([]RepoEntry, error) {
	entries, err := os.ReadDir(dbDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read installed db: %w", err)
	}

	var pkgs []RepoEntry
	for _, dirent := range entries {
		if !dirent.IsDir() {
			continue
		}
		nevra := dirent.Name()
		spec, err := ParseSpec(nevra)
		if err != nil {
			debugf("Skipping malformed installed entry %s: %v\n", nevra, err)
			continue
		}

		pkg := RepoEntry{
			Name:    spec.Name,
			Epoch:   spec.Epoch,
			Version: spec.Version,
			Release: spec.Release,
			Arch:    spec.Arch,
		}

		dir := filepath.Join(dbDir, nevra)
		if data, err := os.ReadFile(filepath.Join(dir, "pkginfo")); err == nil {
			meta := ParsePkgInfo(data)
			pkg.Repo = meta["repo"]
			pkg.Summary = meta["summary"]
			pkg.Description = meta["description"]
		}
		if data, err := os.ReadFile(filepath.Join(dir, "depends")); err == nil {
			pkg.Depends = readLines(data)
		}
		if data, err := os.ReadFile(filepath.Join(dir, "manifest")); err == nil {
			pkg.Files = readLines(data)
		}
		if data, err := os.ReadFile(filepath.Join(dir, "changelog.json")); err == nil {
			_ = json.Unmarshal(data, &pkg.Changelog)
		}

		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

// writeInstalledEntry records a package in the installed database.
func writeInstalledEntry(dbDir string, entry RepoEntry) error {
	installedDBMu.Lock()
	defer installedDBMu.Unlock()

	dir := filepath.Join(dbDir, entry.Spec().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var info strings.Builder
	info.WriteString("name=" + entry.Name + "\n")
	if entry.Epoch > 0 {
		info.WriteString("epoch=" + strconv.Itoa(entry.Epoch) + "\n")
	}
	info.WriteString("version=" + entry.Version + "\n")
	info.WriteString("release=" + entry.Release + "\n")
	info.WriteString("arch=" + entry.Arch + "\n")
	if entry.Repo != "" {
		info.WriteString("repo=" + entry.Repo + "\n")
	}
	if entry.Summary != "" {
		info.WriteString("summary=" + entry.Summary + "\n")
	}
	if entry.Description != "" {
		info.WriteString("description=" + entry.Description + "\n")
	}
	if err := os.WriteFile(filepath.Join(dir, "pkginfo"), []byte(info.String()), 0o644); err != nil {
		return err
	}

	if len(entry.Depends) > 0 {
		data := strings.Join(entry.Depends, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(dir, "depends"), []byte(data), 0o644); err != nil {
			return err
		}
	}
	if len(entry.Files) > 0 {
		data := strings.Join(entry.Files, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(dir, "manifest"), []byte(data), 0o644); err != nil {
			return err
		}
	}
	if len(entry.Changelog) > 0 {
		data, err := json.MarshalIndent(entry.Changelog, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, "changelog.json"), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// ParsePkgInfo parses the key=value pkginfo format.
func ParsePkgInfo(data []byte) map[string]string {
	meta := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			meta[parts[0]] = parts[1]
		}
	}
	return meta
}

func readLines(data []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
