package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sternrassler/pagedlist/pkg/pagination"
	"github.com/Sternrassler/pagedlist/pkg/source"
	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	var from, to int

	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Write items as JSON lines",
		Long:    "Reads pages --from..--to in parallel, or every page when --to is 0, and writes one JSON object per item.",
		Args:    cobra.NoArgs,
		PreRunE: a.preRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()

			src, err := a.source()
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), src, a.cfg.Export(), from, to, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&from, "from", 1, "first page")
	cmd.Flags().IntVar(&to, "to", 0, "last page (0 reads until the list ends)")
	return cmd
}

// runExport writes the items of pages from..to, or of all pages when to is 0.
// Items already read are written even when a later page fails.
func runExport(ctx context.Context, src source.ItemSource, cfg pagination.Config, from, to int, out io.Writer) error {
	bf := pagination.NewBatchFetcher(src, cfg)
	enc := json.NewEncoder(out)

	if to == 0 {
		if from > 1 {
			return fmt.Errorf("--from requires --to")
		}
		items, readErr := bf.ReadAll(ctx)
		if err := writeItems(enc, items); err != nil {
			return err
		}
		return readErr
	}

	from = pagination.ClampPage(from)
	pages, readErr := bf.FetchPages(ctx, from, to)
	for page := from; page <= to; page++ {
		items, ok := pages[page]
		if !ok {
			// Stop at the first gap so the output stays in list order
			break
		}
		if err := writeItems(enc, items); err != nil {
			return err
		}
	}
	return readErr
}

func writeItems(enc *json.Encoder, items []source.Item) error {
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("write item %s: %w", item.ID, err)
		}
	}
	return nil
}
