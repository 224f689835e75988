package main

import (
	"fmt"

	"github.com/YuminosukeSato/landstack/dataset"
	"github.com/YuminosukeSato/landstack/report"
	"github.com/YuminosukeSato/landstack/stacking"
	"github.com/YuminosukeSato/landstack/store"
	"github.com/spf13/cobra"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link the points to the feature stack and report what was dropped",
	Long: `Samples the configured feature set at every survey point, draws the
calibration/validation split a run with the same seed would use and
writes results/samples.geojson and results/samples.png. No model is fitted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, points, link, err := linkInputs(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		parts, err := stacking.Partitions(link.Samples, cfg.Labels, cfg.CalibrationFraction, cfg.Seed)
		if err != nil {
			return err
		}

		st, err := store.NewArtifactStore(cfg.Output)
		if err != nil {
			return err
		}
		if err := report.WriteGeoJSON(st.SamplesGeoJSONPath(), report.SamplesCollection(points, link, parts)); err != nil {
			return err
		}
		if err := report.PlotSamples(st.SamplesPNGPath(), cfg.Labels[0], points, link); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "points:        %d\n", len(points))
		fmt.Fprintf(out, "linked:        %d\n", len(link.Samples))
		fmt.Fprintf(out, "incomplete:    %d\n", len(link.Incomplete))
		fmt.Fprintf(out, "out of extent: %d\n", len(link.OutOfExtent))
		for _, label := range cfg.Labels {
			p := parts[label]
			fmt.Fprintf(out, "%s: calibration %d (prevalence %.3f), validation %d (prevalence %.3f)\n",
				label,
				len(p.Calibration), dataset.Prevalence(link.Samples, p.Calibration, label),
				len(p.Validation), dataset.Prevalence(link.Samples, p.Validation, label))
		}
		return nil
	},
}
