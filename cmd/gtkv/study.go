package main

import (
	"encoding/json"
	"fmt"

	"github.com/ghodss/yaml"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/studyconfig"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func newStudyCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "study",
		Short: "Inspect study configurations",
	}
	cmd.AddCommand(newStudyListCommand(a), newStudyGetCommand(a))
	return cmd
}

func newStudyListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered studies as id and name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(_ storage.Store, mgr *studyconfig.Manager) error {
				summary, err := mgr.Summary()
				if err != nil {
					return err
				}
				for _, name := range summary.Names() {
					id, _ := summary.ID(name)
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", id, name)
				}
				return nil
			})
		},
	}
}

func newStudyGetCommand(a *app) *cobra.Command {
	var (
		id         uint32
		minVersion int64
		output     string
	)
	cmd := &cobra.Command{
		Use:   "get [name]",
		Short: "Print the latest configuration of a study, by name or by --study-id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(_ storage.Store, mgr *studyconfig.Manager) error {
				var (
					cfg *studyconfig.StudyConfiguration
					err error
				)
				if len(args) == 1 {
					cfg, err = mgr.GetByName(args[0], minVersion)
				} else {
					cfg, err = mgr.GetByID(id, minVersion)
				}
				if err != nil {
					return err
				}
				if cfg == nil {
					return errors.New("study not found")
				}
				b, err := marshal(cfg, output)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			})
		},
	}
	cmd.Flags().Uint32Var(&id, "study-id", 0, "id of the study when no name is given")
	cmd.Flags().Int64Var(&minVersion, "min-version", 0, "only accept versions newer than this")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format, json or yaml")
	return cmd
}

// marshal renders v in the given format. YAML keeps the JSON field names.
func marshal(v interface{}, format string) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	switch format {
	case "json":
		b, err = json.MarshalIndent(v, "", "  ")
	case "yaml":
		b, err = yaml.Marshal(v)
	default:
		return nil, errors.Errorf("unknown output format %q", format)
	}
	return b, errors.Trace(err)
}
