package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zstreet87/TopoModelX/internal/checkpoint"
)

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Save a checkpoint whose weights and biases are all zero",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			model, err := e.newModel()
			if err != nil {
				return err
			}
			if err := model.ResetParameters(); err != nil {
				return err
			}
			store, err := checkpoint.Open(e.cfg.Checkpoint.Path, e.logger)
			if err != nil {
				return err
			}
			defer store.Close()
			meta, err := store.Save(cmd.Context(), model)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s\n", meta.ID)
			return nil
		},
	}
}
