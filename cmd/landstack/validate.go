package main

import (
	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"github.com/YuminosukeSato/landstack/report"
	"github.com/YuminosukeSato/landstack/stacking"
	"github.com/YuminosukeSato/landstack/store"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Re-score the rasters of a previous run against the validation points",
	Long: `Reads base_learner/<label>.bil, results/ensemble.bil and results/stack.bil
from the output directory, redraws the calibration/validation split from the
configured seed and prints the AUC of every band. The ROC plots are rewritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, _, link, err := linkInputs(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		st := &store.ArtifactStore{Root: cfg.Output}
		ens, err := st.LoadRaster(log.StageEnsemble, "")
		if err != nil {
			return err
		}
		final, err := st.LoadRaster(log.StageStack, "")
		if err != nil {
			return err
		}

		parts, err := stacking.Partitions(link.Samples, cfg.Labels, cfg.CalibrationFraction, cfg.Seed)
		if err != nil {
			return err
		}
		v := stacking.NewValidator(nil)
		var results []stacking.ValidationResult
		for _, label := range cfg.Labels {
			part := parts[label]
			base, err := st.LoadRaster(log.StageBase, label)
			if err != nil {
				return err
			}
			targets := []struct {
				stage  string
				raster *geo.Stack
				bands  []string
			}{
				{log.StageBase, base, base.Names},
				{log.StageEnsemble, ens, []string{label}},
				{log.StageStack, final, []string{label}},
			}
			for _, t := range targets {
				for _, band := range t.bands {
					r, err := v.Validate(t.stage, t.raster, band, link.Samples, part)
					if err != nil {
						return err
					}
					results = append(results, *r)
				}
			}
			if err := report.PlotROC(st.ROCPath(label), label, results); err != nil {
				return err
			}
		}
		return report.WriteAUCTable(cmd.OutOrStdout(), results)
	},
}
