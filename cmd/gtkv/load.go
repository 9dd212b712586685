package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gtkv/gtkv/kv/loader"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/studyconfig"
	"github.com/gtkv/gtkv/kv/util"
	"github.com/gtkv/gtkv/kv/variant"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

const loadOperation = "load"

type loadOptions struct {
	studyID   uint32
	studyName string
	fileID    int
	force     bool
}

func newLoadCommand(a *app) *cobra.Command {
	opts := new(loadOptions)
	cmd := &cobra.Command{
		Use:   "load <file.vcf>",
		Short: "Aggregate a VCF file into the rows of a study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store storage.Store, mgr *studyconfig.Manager) error {
				return runLoad(cmd, a, store, mgr, opts, args[0])
			})
		},
	}
	cmd.Flags().Uint32Var(&opts.studyID, "study-id", 0, "id of the study")
	cmd.Flags().StringVar(&opts.studyName, "study-name", "", "name of the study, required the first time")
	cmd.Flags().IntVar(&opts.fileID, "file-id", 1, "id recorded for the file in the batch history")
	cmd.Flags().BoolVar(&opts.force, "force", false, "load the file even if it was loaded before")
	a.loader.DefineFlags(cmd.Flags())
	return cmd
}

func runLoad(cmd *cobra.Command, a *app, store storage.Store, mgr *studyconfig.Manager, opts *loadOptions, path string) error {
	checksum, err := util.CalcCRC32(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	r, err := variant.NewReader(f, strconv.FormatUint(uint64(opts.studyID), 10), path)
	if err != nil {
		return errors.Annotatef(err, "read %s", path)
	}

	var batch int
	cfg, err := mgr.UpdateLocked(opts.studyID, func(cfg *studyconfig.StudyConfiguration) error {
		switch {
		case cfg.StudyName == "" && opts.studyName == "":
			return errors.Errorf("study %d is not registered, --study-name is required", opts.studyID)
		case cfg.StudyName == "":
			cfg.StudyName = opts.studyName
		case opts.studyName != "" && opts.studyName != cfg.StudyName:
			return errors.Errorf("study %d is registered as %s, not %s", opts.studyID, cfg.StudyName, opts.studyName)
		}
		if !opts.force && cfg.LoadedChecksum(checksum) {
			return errors.Errorf("%s was already loaded into study %d, use --force to load it again", path, opts.studyID)
		}
		cfg.RegisterSamples(r.Samples())
		studyconfig.NewBatch(cfg, loadOperation, []int{opts.fileID}, time.Now()).Checksum = checksum
		batch = len(cfg.Batches) - 1
		return nil
	})
	if err != nil {
		return err
	}
	log.Infof("%s: loading %s with %d samples", cfg, path, len(r.Samples()))
	if a.conf.StatusAddr != "" {
		serveStatus(a.conf.StatusAddr)
	}

	stats, loadErr := loader.NewLoader(store, a.conf.Loader, opts.studyID, cfg.SampleIDs).Load(r)
	status := studyconfig.BatchReady
	if loadErr != nil {
		status = studyconfig.BatchError
	}
	_, err = mgr.UpdateLocked(opts.studyID, func(cfg *studyconfig.StudyConfiguration) error {
		if batch >= len(cfg.Batches) {
			return errors.Errorf("%s lost batch %d", cfg, batch)
		}
		cfg.Batches[batch].Status = status
		return nil
	})
	if loadErr != nil {
		return loadErr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "variants: %d, rows: %d\n", stats.Variants, stats.Rows)
	return nil
}
