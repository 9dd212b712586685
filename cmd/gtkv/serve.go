package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gtkv/gtkv/kv/server"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/studyconfig"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve studies, rows and metrics over HTTP on the status address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.conf.StatusAddr == "" {
				return errors.New("serve needs a status address")
			}
			return a.withStore(func(store storage.Store, mgr *studyconfig.Manager) error {
				srv := &http.Server{
					Addr:    a.conf.StatusAddr,
					Handler: server.NewServer(store, mgr, a.conf).Handler(),
				}
				handleSignal(srv)
				log.Infof("listening on %v", a.conf.StatusAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return errors.Trace(err)
				}
				log.Info("Server stopped.")
				return nil
			})
		},
	}
}

func handleSignal(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		sig := <-sigCh
		log.Infof("Got signal [%s] to exit.", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()
}
