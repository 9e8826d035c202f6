package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/Sternrassler/pagedlist/pkg/pager"
	"github.com/Sternrassler/pagedlist/pkg/source"
	"github.com/spf13/cobra"
)

const browseHelp = `commands: n (next)  p (prev)  g <page> (go to)  r (retry)  c (cancel)  q (quit)`

func newBrowseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "browse [page]",
		Short:   "Page through the list interactively",
		Long:    "Reads commands from stdin and prints every page state change.\n" + browseHelp,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: a.preRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()

			pagerCfg := a.cfg.Pager()
			if len(args) == 1 {
				page, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid page %q: %w", args[0], err)
				}
				pagerCfg.StartPage = page
			}

			src, err := a.source()
			if err != nil {
				return err
			}
			return runBrowse(cmd.Context(), src, pagerCfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runBrowse drives a fetcher from line commands on in until q, EOF or ctx is
// done. On EOF it waits for the fetch in flight before returning.
//
// A Read on in that is still blocked when runBrowse returns keeps the line
// reader alive until it completes; callers reusing runBrowse should pass a
// reader they can close.
func runBrowse(ctx context.Context, src source.ItemSource, cfg pager.Config, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := newRenderer(out)
	cfg.OnChange = w.render

	f, err := pager.New(src, cfg)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintln(w, browseHelp)
	f.Fetch(f.State().Page)

	lines := readLines(ctx, in)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				st, err := f.Wait(ctx)
				if err != nil {
					return nil
				}
				w.waitRendered(ctx, st)
				return nil
			}
			if quit := handleCommand(f, w, line); quit {
				return nil
			}
		}
	}
}

// readLines sends the lines of in until EOF, a read error or ctx is done,
// then closes the channel.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func handleCommand(f *pager.Fetcher, w io.Writer, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "n", "next":
		f.Next()
	case "p", "prev":
		f.Prev()
	case "g", "go":
		if len(fields) != 2 {
			fmt.Fprintln(w, "usage: g <page>")
			return false
		}
		page, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Fprintf(w, "invalid page %q\n", fields[1])
			return false
		}
		f.SetPage(page)
	case "r", "retry":
		f.Retry()
	case "c", "cancel":
		if !f.Cancel() {
			fmt.Fprintln(w, "nothing to cancel")
		}
	case "q", "quit":
		return true
	default:
		fmt.Fprintln(w, browseHelp)
	}
	return false
}

// renderer prints fetcher states and command feedback to one writer.
type renderer struct {
	mu      sync.Mutex
	w       io.Writer
	last    pager.State
	updated chan struct{}
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, updated: make(chan struct{})}
}

func (r *renderer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Write(p)
}

func (r *renderer) render(st pager.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	renderState(r.w, st)
	r.last = st
	close(r.updated)
	r.updated = make(chan struct{})
}

// waitRendered blocks until st (same generation and status) has been printed.
func (r *renderer) waitRendered(ctx context.Context, st pager.State) {
	for {
		r.mu.Lock()
		done := r.last.Generation == st.Generation && r.last.Status == st.Status
		updated := r.updated
		r.mu.Unlock()
		if done {
			return
		}
		select {
		case <-updated:
		case <-ctx.Done():
			return
		}
	}
}

func renderState(w io.Writer, st pager.State) {
	switch st.Status {
	case pager.StatusLoading:
		fmt.Fprintf(w, "page %d: loading...\n", st.Page)
	case pager.StatusFailed:
		fmt.Fprintf(w, "page %d: failed: %s\n", st.Page, st.Message())
	case pager.StatusLoaded:
		if len(st.Items) == 0 {
			fmt.Fprintf(w, "page %d: no items\n", st.Page)
			return
		}
		var b strings.Builder
		fmt.Fprintf(&b, "page %d: %d items\n", st.Page, len(st.Items))
		for _, item := range st.Items {
			fmt.Fprintf(&b, "  %-8s %s\n", item.ID, item.Title)
		}
		io.WriteString(w, b.String())
	}
}
