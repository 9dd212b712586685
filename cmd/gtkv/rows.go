package main

import (
	"encoding/json"
	"fmt"

	"github.com/gtkv/gtkv/kv/row"
	"github.com/gtkv/gtkv/kv/server"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/studyconfig"
	"github.com/gtkv/gtkv/rowcodec"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

type rowsOptions struct {
	region  server.Region
	summary bool
}

func newRowsCommand(a *app) *cobra.Command {
	opts := new(rowsOptions)
	cmd := &cobra.Command{
		Use:   "rows",
		Short: "Print the stored rows, optionally restricted to a study and a region",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.region.Chromosome == "" && (opts.region.Start > 0 || opts.region.End > 0) {
				return errors.New("--start and --end need --chrom")
			}
			return a.withStore(func(store storage.Store, _ *studyconfig.Manager) error {
				return runRows(cmd, a, store, opts)
			})
		},
	}
	cmd.Flags().Int64Var(&opts.region.StudyID, "study-id", server.AllStudies, "only print this study, -1 prints all")
	cmd.Flags().StringVar(&opts.region.Chromosome, "chrom", "", "only print this chromosome")
	cmd.Flags().Uint32Var(&opts.region.Start, "start", 0, "first position, needs --chrom")
	cmd.Flags().Uint32Var(&opts.region.End, "end", 0, "position after the last one, 0 means the chromosome end")
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "print summary statistics instead of the rows")
	return cmd
}

func runRows(cmd *cobra.Command, a *app, store storage.Store, opts *rowsOptions) error {
	decoder := &rowcodec.Decoder{Strict: a.conf.Loader.StrictCodec}
	out := cmd.OutOrStdout()
	var summarizer row.Summarizer
	err := server.ScanRows(store, decoder, opts.region, func(r *row.Row) bool {
		if opts.summary {
			summarizer.Add(r)
		} else {
			fmt.Fprintln(out, r)
		}
		return true
	})
	if err != nil || !opts.summary {
		return err
	}
	summary, err := summarizer.Summary()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintln(out, string(b))
	return nil
}
