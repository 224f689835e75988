// Package log defines standard attribute keys for pipeline logging.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples")
// so that logs from every stage can be filtered the same way.
package log

// Model and Operation Context
const (
	// ModelNameKey identifies the classifier family, e.g. "glmStepAIC", "rf".
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"
)

// Land-cover pipeline context.
const (
	// LabelKey is the presence/absence label being modelled ("BP", "CP", "WP").
	LabelKey = "label"

	// StageKey is the pipeline stage ("link", "base", "ensemble", "stack", "validate").
	StageKey = "stage"

	// LearnerKey names a learner within the base-learner bank.
	LearnerKey = "learner"

	// StateKey records a pipeline state transition.
	StateKey = "state"

	// AUCKey records an area under the ROC curve.
	AUCKey = "metrics.auc"

	// LogLossKey records a binary log-loss.
	LogLossKey = "metrics.log_loss"

	// FoldKey identifies a cross-validation fold.
	FoldKey = "cv.fold"

	// RunIDKey identifies a pipeline run in the ledger.
	RunIDKey = "run.id"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows).
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns).
	FeaturesKey = "data.features"

	// CellsKey is the number of raster cells processed.
	CellsKey = "data.cells"

	// DroppedKey is the number of samples excluded during linking.
	DroppedKey = "data.dropped"
)

// Performance and configuration
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// IterationKey records the current iteration number.
	IterationKey = "training.iteration"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// WorkerIDKey identifies a pool worker.
	WorkerIDKey = "infra.worker_id"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseInference  = "inference"

	StageLink     = "link"
	StageBase     = "base"
	StageEnsemble = "ensemble"
	StageStack    = "stack"
	StageValidate = "validate"
)
