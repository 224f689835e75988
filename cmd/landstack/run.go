package main

import (
	"context"
	"io"

	"github.com/YuminosukeSato/landstack/config"
	"github.com/YuminosukeSato/landstack/dataset"
	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"github.com/YuminosukeSato/landstack/report"
	"github.com/YuminosukeSato/landstack/stacking"
	"github.com/YuminosukeSato/landstack/store"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full workflow: link, base learners, ensemble, stack, validate",
	Long: `Fits every stage for every configured label and writes under the output
directory:
  base_learner/<label>/<learner>.model, base_learner/<label>.bil
  results/<label>_ensemble.model, results/ensemble.bil
  results/<label>_stack.model, results/stack.bil
  results/roc_<label>.png, results/samples.png, results/samples.geojson
  results/ledger.db`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runWorkflow(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

func runWorkflow(ctx context.Context, cfg *config.Config, out io.Writer) (err error) {
	logger := log.GetLogger()
	st, err := store.NewArtifactStore(cfg.Output)
	if err != nil {
		return err
	}
	ledger, err := store.OpenLedger(ctx, st.LedgerPath())
	if err != nil {
		return err
	}
	defer ledger.Close()

	cfgText, err := cfg.Marshal()
	if err != nil {
		return err
	}
	runID, err := ledger.BeginRun(ctx, cfg.Seed, cfgText)
	if err != nil {
		return err
	}
	logger = logger.With("run_id", runID)
	defer func() {
		// キャンセル後でも台帳は閉じる
		if ferr := ledger.FinishRun(context.WithoutCancel(ctx), runID, err); ferr != nil && err == nil {
			err = ferr
		}
	}()

	stack, points, link, err := linkInputs(ctx, cfg)
	if err != nil {
		return err
	}

	var extra []stacking.StageOption
	if !noProgress {
		extra = append(extra, stacking.WithProgress(progressBars(stack.Def)))
	}
	p := stacking.NewPipeline(cfg.PipelineConfig(),
		stacking.NewBaseLearnerBank(cfg.StageOptions(log.StageBase, extra...)...),
		stacking.NewEnsembler(cfg.StageOptions(log.StageEnsemble, extra...)...),
		stacking.NewMultilabelStacker(cfg.StageOptions(log.StageStack, extra...)...),
		stacking.WithSink(st),
		stacking.WithPipelineLogger(logger),
	)
	res, runErr := p.Run(ctx, stack, link.Samples)
	if res == nil {
		return runErr
	}

	if len(res.Validation) > 0 {
		if err := ledger.RecordValidation(ctx, runID, res.Validation); err != nil {
			return errors.CombineErrors(runErr, err)
		}
	}
	if err := writeReports(st, cfg.Labels, points, link, res); err != nil {
		return errors.CombineErrors(runErr, err)
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("run finished", "output", cfg.Output)
	return report.WriteAUCTable(out, res.Validation)
}

// linkInputs loads the feature stack and the points and links them.
func linkInputs(ctx context.Context, cfg *config.Config) (*geo.Stack, []dataset.Point, *dataset.LinkResult, error) {
	stack, err := cfg.LoadStack()
	if err != nil {
		return nil, nil, nil, err
	}
	points, err := cfg.LoadPoints()
	if err != nil {
		return nil, nil, nil, err
	}
	linker, err := dataset.NewLinker(stack, cfg.Features, dataset.WithAllowOutOfExtent(cfg.AllowOutOfExtent))
	if err != nil {
		return nil, nil, nil, err
	}
	link, err := linker.Link(ctx, points)
	if err != nil {
		return nil, nil, nil, err
	}
	return stack, points, link, nil
}

func writeReports(st *store.ArtifactStore, labels []string, points []dataset.Point, link *dataset.LinkResult, res *stacking.Result) error {
	if len(labels) > 0 {
		if err := report.PlotSamples(st.SamplesPNGPath(), labels[0], points, link); err != nil {
			return err
		}
	}
	fc := report.SamplesCollection(points, link, res.Partitions)
	if err := report.WriteGeoJSON(st.SamplesGeoJSONPath(), fc); err != nil {
		return err
	}
	for _, label := range labels {
		if res.ValidationFor(label, log.StageStack, label) == nil {
			continue
		}
		if err := report.PlotROC(st.ROCPath(label), label, res.Validation); err != nil {
			return err
		}
	}
	return nil
}

// progressBars draws one bar per predicted band.
func progressBars(def geo.Definition) func(stage, label, band string) stacking.ProgressFunc {
	return func(stage, label, band string) stacking.ProgressFunc {
		bar := progressbar.Default(int64(def.NRows), stage+" "+band)
		return func(rows int) { _ = bar.Add(rows) }
	}
}
