package main

import (
	"net/http"
	"os"

	"github.com/gtkv/gtkv/kv/config"
	"github.com/ngaut/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var gitHash = "None"

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what the persistent flags resolve to into every subcommand.
type app struct {
	configPath string
	engine     string
	dbPath     string
	statusAddr string
	// loader holds the loader settings given as flags, they win over the config file.
	loader config.Loader

	conf *config.Config
}

// NewRootCommand builds the gtkv command tree.
func NewRootCommand() *cobra.Command {
	a := new(app)
	root := &cobra.Command{
		Use:          "gtkv",
		Short:        "Aggregated genotype rows over a local wide-column store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file path")
	root.PersistentFlags().StringVar(&a.engine, "engine", "", "storage engine, one of mem, badger, leveldb")
	root.PersistentFlags().StringVar(&a.dbPath, "db-path", "", "directory of the storage engine")
	root.PersistentFlags().StringVar(&a.statusAddr, "status-addr", "", "address serving metrics and status")

	root.AddCommand(
		newLoadCommand(a),
		newRowsCommand(a),
		newStudyCommand(a),
		newLockCommand(a),
		newUnlockCommand(a),
		newServeCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	conf := config.NewDefaultConfig()
	if a.configPath != "" {
		var err error
		if conf, err = config.LoadFile(a.configPath); err != nil {
			return err
		}
	}
	if a.engine != "" {
		conf.Engine.Name = a.engine
	}
	if a.dbPath != "" {
		conf.Engine.DBPath = a.dbPath
	}
	if cmd.Flags().Changed("status-addr") {
		conf.StatusAddr = a.statusAddr
	}
	conf.Loader.ApplyFlags(cmd.Flags(), &a.loader)
	if err := conf.Validate(); err != nil {
		return err
	}
	log.SetLevelByString(conf.LogLevel)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	log.Debugf("gitHash: %s, conf %+v", gitHash, conf)
	a.conf = conf
	return nil
}

// serveStatus exposes metrics while a long running command works.
func serveStatus(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
	})
	go func() {
		log.Infof("status listening on %v", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("status server stopped: %v", err)
		}
	}()
}
