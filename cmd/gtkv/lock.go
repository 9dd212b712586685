package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/studyconfig"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

func newLockCommand(a *app) *cobra.Command {
	var id uint32
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Take the lock of a study and print its token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(_ storage.Store, mgr *studyconfig.Manager) error {
				token, err := mgr.LockStudy(id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().Uint32Var(&id, "study-id", 0, "id of the study")
	return cmd
}

func newUnlockCommand(a *app) *cobra.Command {
	var (
		id    uint32
		token string
	)
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Release the lock of a study taken with token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := uuid.Parse(token)
			if err != nil {
				return errors.Annotatef(err, "parse token %q", token)
			}
			return a.withStore(func(_ storage.Store, mgr *studyconfig.Manager) error {
				return mgr.UnlockStudy(id, parsed)
			})
		},
	}
	cmd.Flags().Uint32Var(&id, "study-id", 0, "id of the study")
	cmd.Flags().StringVar(&token, "token", "", "token printed by lock")
	return cmd
}
