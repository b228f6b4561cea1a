package subaru

import (
	"context"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

var (
	uiApp         *tview.Application
	uiSearchInput *tview.InputField
	uiDescCheck   *tview.Checkbox
	uiExactCheck  *tview.Checkbox
	uiResults     *tview.List
	uiDetails     *tview.TextView
	uiStatus      *tview.TextView
	uiCount       *tview.TextView
	uiHistory     *tview.List
	uiPendingView *tview.TextView
	uiFlex        *tview.Flex

	uiCtx       context.Context
	uiMgr       *IndexManager
	uiRunner    *TaskRunner
	uiScope     *Scope
	uiInstalled *InstalledSet
	uiCache     *SearchCache
	uiPending   *PendingSet

	uiSpecs     []PackageSpec // rows currently shown in the results list
	uiSearching bool          // search controls disabled while true
)

// RunBrowser starts the interactive package browser. Blocks until quit.
func RunBrowser(ctx context.Context, cfg *Config) int {
	uiCtx = ctx
	uiMgr = NewIndexManager(cfg)
	uiScope = &Scope{}
	uiInstalled = NewInstalledSet()
	uiCache = NewSearchCache()
	uiPending = NewPendingSet()

	uiApp = tview.NewApplication()

	uiSearchInput = tview.NewInputField().
		SetLabel("Search: ").
		SetFieldWidth(30)
	uiSearchInput.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			runSearch(uiSearchInput.GetText())
		}
	})

	uiDescCheck = tview.NewCheckbox().SetLabel("Descriptions ")
	uiExactCheck = tview.NewCheckbox().SetLabel("Exact ")

	uiResults = tview.NewList().ShowSecondaryText(false)
	uiResults.SetBorder(true).SetTitle(" Packages ")
	uiResults.SetChangedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		if index >= 0 && index < len(uiSpecs) {
			showDetail(uiSpecs[index])
		}
	})

	uiDetails = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetScrollable(true)
	uiDetails.SetBorder(true).SetTitle(" Details ")

	uiStatus = tview.NewTextView().SetDynamicColors(true)
	uiCount = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignRight)

	uiRunner = NewTaskRunner(uiMgr, func(f func()) { uiApp.QueueUpdateDraw(f) }, newStatusBusy(uiStatus))

	uiHistory = tview.NewList().ShowSecondaryText(false)
	uiHistory.SetBorder(true).SetTitle(" History ")
	uiHistory.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		uiSearchInput.SetText(mainText)
		runSearch(mainText)
	})

	uiPendingView = tview.NewTextView().SetDynamicColors(true)
	uiPendingView.SetBorder(true).SetTitle(" Pending ")

	searchRow := tview.NewFlex().
		AddItem(uiSearchInput, 0, 1, true).
		AddItem(uiDescCheck, 16, 0, false).
		AddItem(uiExactCheck, 10, 0, false)

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(uiResults, 0, 3, false).
		AddItem(uiHistory, 0, 1, false)

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(uiDetails, 0, 3, false).
		AddItem(uiPendingView, 0, 1, false)

	statusRow := tview.NewFlex().
		AddItem(uiStatus, 0, 3, false).
		AddItem(uiCount, 0, 1, false)

	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetText("[gray]Tab focus | i/r mark | a apply | f files | d deps | g changelog | l installed | c clear list | x clear marks | C clear cache | R refresh | q quit[white]")

	uiFlex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(searchRow, 1, 0, true).
		AddItem(tview.NewFlex().
			AddItem(left, 0, 1, false).
			AddItem(right, 0, 1, false), 0, 1, false).
		AddItem(statusRow, 1, 0, false).
		AddItem(footer, 1, 0, false)

	uiFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlQ:
			uiScope.Cancel()
			uiApp.Stop()
			return nil
		case tcell.KeyTab:
			cycleFocus()
			return nil
		case tcell.KeyRune:
			if uiApp.GetFocus() == uiSearchInput {
				return event
			}
			switch event.Rune() {
			case 'q':
				uiScope.Cancel()
				uiApp.Stop()
				return nil
			case 'i':
				toggleSelected(ActionInstall)
				return nil
			case 'r':
				toggleSelected(ActionRemove)
				return nil
			case 'f':
				showSelectedFiles()
				return nil
			case 'd':
				showSelectedDeps()
				return nil
			case 'g':
				showSelectedChangelog()
				return nil
			case 'a':
				applyPending()
				return nil
			case 'x':
				uiPending.Clear()
				renderPending()
				setStatus("Pending actions cleared")
				return nil
			case 'c':
				uiSpecs = nil
				renderResults()
				setStatus("List cleared")
				return nil
			case 'C':
				uiCache.Clear()
				setStatus("Search cache cleared")
				return nil
			case 'R':
				rebuildIndex()
				return nil
			case 'l':
				listInstalled()
				return nil
			}
		}
		return event
	})

	// Installed set refresher: interval plus filesystem events on the DB.
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	go func() {
		_ = uiInstalled.Watch(watchCtx, uiMgr, cfg.RefreshInterval(), func() {
			uiApp.QueueUpdateDraw(renderResults)
		})
	}()

	uiApp.SetRoot(uiFlex, true).SetFocus(uiSearchInput)

	// The first view is the installed package list; tview has no loop running
	// yet, so queue it for after startup.
	go uiApp.QueueUpdateDraw(listInstalled)

	if err := uiApp.Run(); err != nil {
		fmt.Println("browser:", err)
		return 1
	}
	uiScope.Cancel()
	return 0
}

// newStatusBusy ties the busy refcount to a status line: visible while any
// task is outstanding, cleared when the last one finishes — delivered,
// dropped or cancelled. Completion callbacks run after the release, so a
// delivered result's message replaces the idle text.
func newStatusBusy(status *tview.TextView) *BusyIndicator {
	return &BusyIndicator{
		Show: func() { status.SetText("[yellow]Working...[white]") },
		Hide: func() { status.SetText("Ready") },
	}
}

func cycleFocus() {
	switch uiApp.GetFocus() {
	case uiSearchInput:
		uiApp.SetFocus(uiResults)
	case uiResults:
		uiApp.SetFocus(uiHistory)
	case uiHistory:
		uiApp.SetFocus(uiDetails)
	default:
		uiApp.SetFocus(uiSearchInput)
	}
}

func setStatus(msg string) {
	uiStatus.SetText(msg)
}

func setSearchEnabled(enabled bool) {
	uiSearching = !enabled
	uiSearchInput.SetDisabled(!enabled)
	uiDescCheck.SetDisabled(!enabled)
	uiExactCheck.SetDisabled(!enabled)
}

// runSearch serves the query from the cache when possible and otherwise
// dispatches it against the index, disabling the search controls until the
// result lands.
func runSearch(term string) {
	if term == "" || uiSearching {
		return
	}

	mode := SearchMode{
		InDescription: uiDescCheck.IsChecked(),
		ExactMatch:    uiExactCheck.IsChecked(),
	}
	key := SearchKey{InDescription: mode.InDescription, ExactMatch: mode.ExactMatch, Term: term}

	addHistory(term)

	if specs, ok := uiCache.Lookup(key); ok {
		uiSpecs = specs
		renderResults()
		setStatus(fmt.Sprintf("Results for %q (cached)", term))
		return
	}

	setSearchEnabled(false)
	setStatus(fmt.Sprintf("Searching for %q...", term))

	Dispatch(uiRunner, uiCtx, uiScope, func(h *Handle) ([]PackageSpec, error) {
		return h.QueryAvailable(term, mode), nil
	}, func(specs []PackageSpec, err error) {
		setSearchEnabled(true)
		if err != nil {
			setStatus(fmt.Sprintf("[red]Search failed: %v[white]", err))
			return
		}
		uiCache.Store(key, specs)
		uiSpecs = specs
		renderResults()
		setStatus(fmt.Sprintf("Results for %q", term))
	})
}

func listInstalled() {
	Dispatch(uiRunner, uiCtx, uiScope, func(h *Handle) ([]PackageSpec, error) {
		return h.QueryInstalled(), nil
	}, func(specs []PackageSpec, err error) {
		if err != nil {
			setStatus(fmt.Sprintf("[red]Cannot list installed packages: %v[white]", err))
			return
		}
		uiSpecs = specs
		renderResults()
		setStatus("Installed packages")
	})
	// Prime the highlight set alongside the listing.
	go func() { _ = uiInstalled.Refresh(uiCtx, uiMgr) }()
}

func addHistory(term string) {
	for i := 0; i < uiHistory.GetItemCount(); i++ {
		text, _ := uiHistory.GetItemText(i)
		if text == term {
			return
		}
	}
	uiHistory.InsertItem(0, term, "", 0, nil)
}

func renderResults() {
	current := uiResults.GetCurrentItem()
	uiResults.Clear()
	for _, spec := range uiSpecs {
		label := spec.String()
		if action, ok := uiPending.Pending(spec); ok {
			if action == ActionRemove {
				label = "[red]- " + label + "[white]"
			} else {
				label = "[green]+ " + label + "[white]"
			}
		} else if uiInstalled.ContainsName(spec.Name) {
			label = "[blue]" + label + "[white]"
		}
		uiResults.AddItem(label, "", 0, nil)
	}
	if current >= 0 && current < len(uiSpecs) {
		uiResults.SetCurrentItem(current)
	}
	uiCount.SetText(fmt.Sprintf("Items: %d", len(uiSpecs)))
	renderPending()
}

func renderPending() {
	actions := uiPending.List()
	if len(actions) == 0 {
		uiPendingView.SetText("[gray]Nothing marked[white]")
		return
	}
	var b strings.Builder
	for _, a := range actions {
		if a.Action == ActionRemove {
			fmt.Fprintf(&b, "[red]- %s[white]\n", a.Spec)
		} else {
			fmt.Fprintf(&b, "[green]+ %s[white]\n", a.Spec)
		}
	}
	uiPendingView.SetText(b.String())
}

func selectedSpec() (PackageSpec, bool) {
	i := uiResults.GetCurrentItem()
	if i < 0 || i >= len(uiSpecs) {
		return PackageSpec{}, false
	}
	return uiSpecs[i], true
}

func toggleSelected(action Action) {
	spec, ok := selectedSpec()
	if !ok {
		return
	}
	if uiPending.Toggle(spec, action) {
		setStatus(fmt.Sprintf("Marked %s for %s", spec, action))
	} else {
		setStatus(fmt.Sprintf("Unmarked %s", spec))
	}
	renderResults()
}

func showDetail(spec PackageSpec) {
	Dispatch(uiRunner, uiCtx, uiScope, func(h *Handle) (PackageInfo, error) {
		return h.Detail(spec)
	}, func(info PackageInfo, err error) {
		if err != nil {
			uiDetails.SetText(fmt.Sprintf("[red]%v[white]", err))
			return
		}
		state := "available"
		if info.Installed {
			state = "installed"
		}
		uiDetails.SetText(fmt.Sprintf(
			"[yellow]%s[white]\n\nRepo: %s\nStatus: %s\n\n%s\n\n%s",
			info.Spec, info.Repo, state, info.Summary, info.Description))
	})
}

func showSelectedFiles() {
	spec, ok := selectedSpec()
	if !ok {
		return
	}
	Dispatch(uiRunner, uiCtx, uiScope, func(h *Handle) ([]string, error) {
		return h.Files(spec)
	}, func(files []string, err error) {
		if err != nil {
			uiDetails.SetText("File list available only for installed packages.")
			return
		}
		uiDetails.SetText(fmt.Sprintf("[yellow]Files in %s[white]\n\n%s",
			spec, strings.Join(files, "\n")))
	})
}

func showSelectedDeps() {
	spec, ok := selectedSpec()
	if !ok {
		return
	}
	Dispatch(uiRunner, uiCtx, uiScope, func(h *Handle) (DependencyInfo, error) {
		return h.Dependencies(spec)
	}, func(deps DependencyInfo, err error) {
		if err != nil {
			uiDetails.SetText(fmt.Sprintf("[red]%v[white]", err))
			return
		}
		var b strings.Builder
		fmt.Fprintf(&b, "[yellow]Dependencies of %s[white]\n", spec)
		writeDepSection(&b, "Requires", deps.Requires)
		writeDepSection(&b, "Provides", deps.Provides)
		writeDepSection(&b, "Conflicts", deps.Conflicts)
		writeDepSection(&b, "Obsoletes", deps.Obsoletes)
		uiDetails.SetText(b.String())
	})
}

func writeDepSection(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "\n%s:\n", title)
	if len(items) == 0 {
		b.WriteString("  (none)\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "  %s\n", item)
	}
}

func showSelectedChangelog() {
	spec, ok := selectedSpec()
	if !ok {
		return
	}
	Dispatch(uiRunner, uiCtx, uiScope, func(h *Handle) ([]ChangelogEntry, error) {
		return h.Changelog(spec)
	}, func(entries []ChangelogEntry, err error) {
		if err != nil {
			uiDetails.SetText(fmt.Sprintf("[red]%v[white]", err))
			return
		}
		if len(entries) == 0 {
			uiDetails.SetText(fmt.Sprintf("No changelog recorded for %s.", spec))
			return
		}
		var b strings.Builder
		fmt.Fprintf(&b, "[yellow]Changelog for %s[white]\n", spec)
		for _, e := range entries {
			fmt.Fprintf(&b, "\n[green]%s[white] %s\n%s\n", e.Date, e.Author, e.Text)
		}
		uiDetails.SetText(b.String())
	})
}

// applyPending resolves and executes the marked actions, then refreshes the
// installed set and redraws. Failures are shown in the status line; the
// marks survive so the user can adjust and retry.
func applyPending() {
	if uiPending.Len() == 0 {
		setStatus("Nothing to apply")
		return
	}
	setStatus("Applying transaction...")

	DispatchExclusive(uiRunner, uiCtx, uiScope, func(mgr *IndexManager) (struct{}, error) {
		if err := uiPending.Apply(uiCtx, mgr); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, uiInstalled.Refresh(uiCtx, mgr)
	}, func(_ struct{}, err error) {
		if err != nil {
			setStatus(fmt.Sprintf("[red]%v[white]", err))
			renderPending()
			return
		}
		renderResults()
		setStatus("[green]Transaction applied[white]")
	})
}

func rebuildIndex() {
	setStatus("Rebuilding index...")
	DispatchExclusive(uiRunner, uiCtx, uiScope, func(mgr *IndexManager) (struct{}, error) {
		if err := mgr.Rebuild(uiCtx); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, uiInstalled.Refresh(uiCtx, mgr)
	}, func(_ struct{}, err error) {
		if err != nil {
			setStatus(fmt.Sprintf("[red]%v[white]", err))
			return
		}
		renderResults()
		setStatus("Index rebuilt")
	})
}
