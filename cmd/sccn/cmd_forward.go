package main

import (
	"fmt"
	"math/rand/v2"

	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	"github.com/spf13/cobra"

	"github.com/zstreet87/TopoModelX/internal/checkpoint"
	"github.com/zstreet87/TopoModelX/simplicial"
)

func newForwardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Run the model on random features over the configured complex",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			model, err := e.newModel()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			loadID, _ := cmd.Flags().GetString("load")
			save, _ := cmd.Flags().GetBool("save")
			if loadID != "" || save {
				store, err := checkpoint.Open(e.cfg.Checkpoint.Path, e.logger)
				if err != nil {
					return err
				}
				defer store.Close()
				if loadID == "latest" {
					latest, err := store.Latest(ctx)
					if err != nil {
						return err
					}
					loadID = latest.ID
				}
				if loadID != "" {
					if _, err := store.Load(ctx, loadID, model); err != nil {
						return err
					}
				}
				if save {
					meta, err := store.Save(ctx, model)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s\n", meta.ID)
				}
			}

			cx, err := simplicial.NewComplex(e.cfg.Complex.Simplices)
			if err != nil {
				return bosherr.WrapError(err, "Building complex")
			}
			incidences, adjacencies, err := cx.Neighborhoods(e.cfg.Model.MaxRank, e.cfg.Complex.SelfLoops)
			if err != nil {
				return bosherr.WrapError(err, "Building neighborhoods")
			}
			counts := make([]int, e.cfg.Model.MaxRank+1)
			for r := range counts {
				counts[r] = cx.NumCells(r)
			}
			featureSeed, _ := cmd.Flags().GetUint64("feature-seed")
			x, err := simplicial.RandomFeatures(rand.New(rand.NewPCG(featureSeed, featureSeed)), counts, e.cfg.Model.Channels)
			if err != nil {
				return err
			}
			e.logger.Info(cliTag, "Running %d layer(s) over cell counts %v", len(model.Layers), counts)

			out, err := model.ForwardContext(ctx, x, incidences, adjacencies)
			if err != nil {
				return bosherr.WrapError(err, "Running forward pass")
			}
			for _, r := range out.Ranks() {
				t, _ := out.At(r)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", simplicial.RankKey(r), t.Shape)
			}
			return nil
		},
	}
	cmd.Flags().String("load", "", "Checkpoint id to load before running (\"latest\" for the newest)")
	cmd.Flags().Bool("save", false, "Save the model parameters as a new checkpoint")
	cmd.Flags().Uint64("feature-seed", 0, "Seed for the random input features")
	return cmd
}
