package subaru

import (
	"context"
	"fmt"
)

// ListInstalled prints the installed packages, paged when the list is long.
func ListInstalled(ctx context.Context, cfg *Config) error {
	mgr := NewIndexManager(cfg)
	guard, err := mgr.AcquireRead(ctx)
	if err != nil {
		return err
	}
	defer guard.Release()

	specs := guard.Handle.QueryInstalled()
	lines := make([]string, 0, len(specs))
	for _, spec := range specs {
		lines = append(lines, spec.String())
	}
	if err := RunPager("Installed packages", lines); err != nil {
		return err
	}
	colInfo.Printf("%d packages installed\n", len(specs))
	return nil
}

// Search prints the packages matching a term.
func Search(ctx context.Context, cfg *Config, term string, mode SearchMode) error {
	mgr := NewIndexManager(cfg)
	guard, err := mgr.AcquireRead(ctx)
	if err != nil {
		return err
	}
	specs := guard.Handle.QueryAvailable(term, mode)
	guard.Release()

	if len(specs) == 0 {
		colWarn.Printf("No packages match %q\n", term)
		return nil
	}
	lines := make([]string, 0, len(specs))
	for _, spec := range specs {
		lines = append(lines, spec.String())
	}
	return RunPager(fmt.Sprintf("Search: %s", term), lines)
}

// Info prints the detail view for a package name or NEVRA.
func Info(ctx context.Context, cfg *Config, arg string) error {
	spec, err := ParseSpec(arg)
	if err != nil {
		spec = PackageSpec{Name: arg}
	}

	mgr := NewIndexManager(cfg)
	guard, err := mgr.AcquireRead(ctx)
	if err != nil {
		return err
	}
	defer guard.Release()

	info, err := guard.Handle.Detail(spec)
	if err != nil {
		return err
	}

	state := "available"
	if info.Installed {
		state = "installed"
	}
	colSuccess.Println(info.Spec.String())
	fmt.Printf("Repo:    %s\n", info.Repo)
	fmt.Printf("Status:  %s\n", state)
	fmt.Printf("Summary: %s\n", info.Summary)
	if info.Description != "" {
		fmt.Printf("\n%s\n", info.Description)
	}
	return nil
}

// Files prints the recorded file list for an installed package.
func Files(ctx context.Context, cfg *Config, arg string) error {
	spec, err := ParseSpec(arg)
	if err != nil {
		spec = PackageSpec{Name: arg}
	}

	mgr := NewIndexManager(cfg)
	guard, err := mgr.AcquireRead(ctx)
	if err != nil {
		return err
	}
	files, err := guard.Handle.Files(spec)
	guard.Release()
	if err != nil {
		return err
	}
	return RunPager(fmt.Sprintf("Files: %s", spec.Name), files)
}

// Dependencies prints the relationship lists for a package.
func Dependencies(ctx context.Context, cfg *Config, arg string) error {
	spec, err := ParseSpec(arg)
	if err != nil {
		spec = PackageSpec{Name: arg}
	}

	mgr := NewIndexManager(cfg)
	guard, err := mgr.AcquireRead(ctx)
	if err != nil {
		return err
	}
	defer guard.Release()

	deps, err := guard.Handle.Dependencies(spec)
	if err != nil {
		return err
	}

	printDepList := func(title string, items []string) {
		colArrow.Printf("%s:\n", title)
		if len(items) == 0 {
			fmt.Println("  (none)")
			return
		}
		for _, item := range items {
			fmt.Printf("  %s\n", item)
		}
	}
	printDepList("Requires", deps.Requires)
	printDepList("Provides", deps.Provides)
	printDepList("Conflicts", deps.Conflicts)
	printDepList("Obsoletes", deps.Obsoletes)
	return nil
}

// Changelog prints the changelog entries for a package.
func Changelog(ctx context.Context, cfg *Config, arg string) error {
	spec, err := ParseSpec(arg)
	if err != nil {
		spec = PackageSpec{Name: arg}
	}

	mgr := NewIndexManager(cfg)
	guard, err := mgr.AcquireRead(ctx)
	if err != nil {
		return err
	}
	entries, err := guard.Handle.Changelog(spec)
	guard.Release()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		colWarn.Printf("No changelog recorded for %s\n", spec.Name)
		return nil
	}
	lines := make([]string, 0, len(entries)*3)
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s %s", e.Date, e.Author))
		lines = append(lines, e.Text, "")
	}
	return RunPager(fmt.Sprintf("Changelog: %s", spec.Name), lines)
}

// RunTransaction marks the named packages for one action and applies them as
// a single batch. Names without a full NEVRA resolve to the preferred
// candidate at apply time.
func RunTransaction(ctx context.Context, cfg *Config, args []string, action Action) error {
	mgr := NewIndexManager(cfg)
	pending := NewPendingSet()

	guard, err := mgr.AcquireRead(ctx)
	if err != nil {
		return err
	}
	for _, arg := range args {
		spec, err := ParseSpec(arg)
		if err != nil {
			spec = PackageSpec{Name: arg}
		}
		info, err := guard.Handle.Detail(spec)
		if err != nil {
			guard.Release()
			return err
		}
		pending.Toggle(info.Spec, action)
	}
	guard.Release()

	colNote.Println("The following actions will be performed:")
	for _, a := range pending.List() {
		colArrow.Printf("-> %s %s\n", a.Action, a.Spec)
	}
	if err := pending.Apply(ctx, mgr); err != nil {
		return err
	}
	colSuccess.Println("Transaction applied")
	return nil
}

// Refresh rebuilds the index from the configured repositories.
func Refresh(ctx context.Context, cfg *Config) error {
	mgr := NewIndexManager(cfg)
	if err := mgr.Rebuild(ctx); err != nil {
		return err
	}
	guard, err := mgr.AcquireRead(ctx)
	if err != nil {
		return err
	}
	defer guard.Release()
	colSuccess.Printf("Index refreshed: %d packages available, %d installed\n",
		len(guard.Handle.available), len(guard.Handle.installed))
	return nil
}

// Version prints the build identification.
func Version() {
	fmt.Printf("subaru %s (built %s)\n", version, buildDate)
}
