package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/YuminosukeSato/landstack/config"
	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"github.com/YuminosukeSato/landstack/store"
	"github.com/spf13/cobra"
)

var predictStage string

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Rebuild probability rasters from the models of a previous run",
	Long: `Loads the persisted *.model files of the output directory and predicts the
rasters of one stage again, or of every stage in order with --stage all. The
base stage reads the configured feature rasters, the ensemble stage reads
base_learner/<label>.bil and the stack stage reads results/ensemble.bil.
Nothing is refitted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		stages := []string{log.StageBase, log.StageEnsemble, log.StageStack}
		if predictStage != "all" {
			if !slices.Contains(stages, predictStage) {
				return errors.NewValidationError("stage", "expected base, ensemble, stack or all", predictStage)
			}
			stages = []string{predictStage}
		}
		st := &store.ArtifactStore{Root: cfg.Output}
		for _, stage := range stages {
			if err := predictStageRasters(cmd.OutOrStdout(), cfg, st, stage); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	predictCmd.Flags().StringVar(&predictStage, "stage", "all", "stage to rebuild: base, ensemble, stack or all")
}

// predictStageRasters rebuilds and saves the rasters of stage.
func predictStageRasters(out io.Writer, cfg *config.Config, st *store.ArtifactStore, stage string) error {
	var input *geo.Stack
	var err error
	switch stage {
	case log.StageBase:
		input, err = cfg.LoadStack()
	case log.StageStack:
		input, err = st.LoadRaster(log.StageEnsemble, "")
	}
	if err != nil {
		return err
	}

	rasters := make([]*geo.Stack, 0, len(cfg.Labels))
	for _, label := range cfg.Labels {
		in := input
		if stage == log.StageEnsemble {
			if in, err = st.LoadRaster(log.StageBase, label); err != nil {
				return err
			}
		}
		r, err := st.PredictLabel(stage, label, cfg.Learners, in, nil)
		if err != nil {
			return err
		}
		if stage == log.StageBase {
			if err := st.SaveRaster(stage, label, r); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s: %v\n", stage, label, r.Names)
			continue
		}
		rasters = append(rasters, r)
	}
	if stage == log.StageBase {
		return nil
	}
	merged, err := geo.Merge(rasters...)
	if err != nil {
		return err
	}
	if err := st.SaveRaster(stage, "", merged); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %v\n", stage, merged.Names)
	return nil
}
