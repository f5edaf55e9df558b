package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zstreet87/TopoModelX/internal/checkpoint"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored checkpoints, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			store, err := checkpoint.Open(e.cfg.Checkpoint.Path, e.logger)
			if err != nil {
				return err
			}
			defer store.Close()
			metas, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(metas)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCHANNELS\tMAX RANK\tLAYERS\tOUT\tCREATED")
			for _, m := range metas {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
					m.ID, m.Channels, m.MaxRank, m.Layers, m.OutChannels, m.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}
