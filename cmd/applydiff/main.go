// Command applydiff is a small CLI front end over the engine package: the
// six session/patch operations spec.md §6 defines, callable from a shell or
// wired into an agent's tool loop.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/junovhs/applydiff/engine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "applydiff: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dir := flag.String("C", ".", "project root directory")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		return fmt.Errorf("usage: applydiff [-C dir] <init|briefing|refresh|resolve|preview|apply> [patch-or-request-file]")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "init":
		return cmdInit(*dir)
	case "briefing":
		return cmdBriefing(*dir)
	case "refresh":
		return cmdRefresh(*dir)
	case "resolve":
		return cmdResolve(*dir, rest)
	case "preview":
		return cmdPreview(*dir, rest)
	case "apply":
		return cmdApply(*dir, rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdInit(dir string) error {
	_, st, err := engine.InitSession(dir)
	if err != nil {
		return err
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s session initialized for %s\n", green("✔"), dir)
	fmt.Printf("  tracking %s files\n", humanize.Comma(int64(len(st.FileMetrics))))
	return nil
}

func cmdBriefing(dir string) error {
	e, _, err := engine.LoadSession(dir)
	if err != nil {
		return err
	}
	fmt.Println(e.GetSessionBriefing())
	return nil
}

func cmdRefresh(dir string) error {
	e, _, err := engine.LoadSession(dir)
	if err != nil {
		return err
	}
	st, err := e.RefreshSession()
	if err != nil {
		return err
	}
	fmt.Printf("session refreshed: exchange_count=%d total_errors=%d\n", st.ExchangeCount, st.TotalErrors)
	return nil
}

func cmdResolve(dir string, args []string) error {
	doc, err := readInput(args)
	if err != nil {
		return err
	}
	e, _, err := engine.LoadSession(dir)
	if err != nil {
		return err
	}
	out, err := e.ResolveFileRequest(doc)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func cmdPreview(dir string, args []string) error {
	patchText, err := readInput(args)
	if err != nil {
		return err
	}
	e, _, err := engine.LoadSession(dir)
	if err != nil {
		return err
	}
	out, err := e.PreviewPatch(patchText)
	if err != nil {
		return err
	}
	printOutcome(out.Log)
	if out.Diff != "" {
		fmt.Println(out.Diff)
	}
	return nil
}

func cmdApply(dir string, args []string) error {
	patchText, err := readInput(args)
	if err != nil {
		return err
	}
	e, _, err := engine.LoadSession(dir)
	if err != nil {
		return err
	}
	out, err := e.ApplyPatch(patchText)
	if err != nil {
		return err
	}
	printOutcome(out.Log)
	fmt.Printf("exchange_count=%d total_errors=%d\n", out.State.ExchangeCount, out.State.TotalErrors)
	return nil
}

func printOutcome(lines []string) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	for _, l := range lines {
		if strings.HasPrefix(l, "✔") {
			fmt.Println(green(l))
		} else {
			fmt.Println(red(l))
		}
	}
}

// readInput reads the patch or request document from a named file, or from
// stdin when args is empty.
func readInput(args []string) (string, error) {
	if len(args) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(b), nil
}
