package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"subaru/internal/subaru"
)

// isCriticalAtomic is 1 while a transaction is being applied. The first
// interrupt during that window is held back; a second one forces exit.
var isCriticalAtomic atomic.Int32

func usage() {
	fmt.Println(`Usage: subaru <command> [args...]

Commands:
  browse                    interactive package browser (default)
  list                      list installed packages
  search <term>             search available packages (-d descriptions, -e exact)
  info <package>            show package details
  files <package>           show the file list of an installed package
  deps <package>            show dependency information
  changelog <package>       show the package changelog
  install <package>...      install packages
  remove <package>...       remove packages
  refresh                   rebuild the package index
  version                   print version`)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-sigs:
				if isCriticalAtomic.Load() == 1 {
					fmt.Printf("\n[WARNING] Transaction in progress. Press Ctrl+C AGAIN to force exit NOW.\n")
					select {
					case <-sigs:
						fmt.Println("\n[FATAL] Forced immediate exit.")
						os.Exit(130)
					case <-time.After(5 * time.Second):
						continue
					case <-ctx.Done():
						return
					}
				} else {
					fmt.Printf("\n[INFO] Received %v. Cancelling gracefully...\n", sig)
					cancel()
					select {
					case <-sigs:
						fmt.Println("\n[FATAL] Second interrupt received. Forcing immediate exit.")
						os.Exit(130)
					case <-ctx.Done():
						return
					case <-time.After(500 * time.Millisecond):
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	cfg, err := subaru.LoadConfig(subaru.ConfigFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error reading configuration:", err)
		os.Exit(1)
	}
	if err := subaru.InitConfig(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	cmd := "browse"
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "browse", "tui":
		os.Exit(subaru.RunBrowser(ctx, cfg))

	case "list":
		if err := subaru.ListInstalled(ctx, cfg); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case "search":
		args := os.Args[2:]
		var mode subaru.SearchMode
		var term string
		for _, a := range args {
			switch a {
			case "-d", "--descriptions":
				mode.InDescription = true
			case "-e", "--exact":
				mode.ExactMatch = true
			default:
				term = a
			}
		}
		if term == "" {
			fmt.Println("Usage: subaru search [-d] [-e] <term>")
			os.Exit(1)
		}
		if err := subaru.Search(ctx, cfg, term, mode); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case "info":
		if len(os.Args) < 3 {
			fmt.Println("Usage: subaru info <package>")
			os.Exit(1)
		}
		if err := subaru.Info(ctx, cfg, os.Args[2]); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case "files":
		if len(os.Args) < 3 {
			fmt.Println("Usage: subaru files <package>")
			os.Exit(1)
		}
		if err := subaru.Files(ctx, cfg, os.Args[2]); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case "deps":
		if len(os.Args) < 3 {
			fmt.Println("Usage: subaru deps <package>")
			os.Exit(1)
		}
		if err := subaru.Dependencies(ctx, cfg, os.Args[2]); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case "changelog":
		if len(os.Args) < 3 {
			fmt.Println("Usage: subaru changelog <package>")
			os.Exit(1)
		}
		if err := subaru.Changelog(ctx, cfg, os.Args[2]); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case "install", "remove":
		if len(os.Args) < 3 {
			fmt.Printf("Usage: subaru %s <package>...\n", cmd)
			os.Exit(1)
		}
		action := subaru.ActionInstall
		if cmd == "remove" {
			action = subaru.ActionRemove
		}

		isCriticalAtomic.Store(1)
		err := subaru.RunTransaction(ctx, cfg, os.Args[2:], action)
		isCriticalAtomic.Store(0)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case "refresh":
		if err := subaru.Refresh(ctx, cfg); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case "version":
		subaru.Version()

	default:
		usage()
		os.Exit(1)
	}
}
