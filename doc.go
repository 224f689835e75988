// Package landstack maps land-cover probabilities with a stacked ensemble.
//
// Survey points labelled with the presence of each land-cover class (BP, CP
// and WP by default) are linked to a stack of co-registered feature rasters.
// For every label a bank of base learners is tuned by cross-validation and
// each learner predicts a probability raster. A stepwise logistic ensembler
// combines those rasters per label, and a multilabel stacker then combines
// the ensemble rasters of all labels so that correlated classes inform each
// other. Every stage is validated by ROC analysis on held-out points.
//
// # Workflow
//
//	points.csv ─┐
//	            ├─ dataset.Linker ─ stacking.BaseLearnerBank ─ stacking.Ensembler ─┐
//	rasters ────┘        (per label: glmStepAIC, rf, gbm, nnet)                    │
//	                                                                               ▼
//	                       stacking.Validator ◀─ stacking.MultilabelStacker (all labels)
//
// # Quick Start
//
//	landstack run -c run.yaml
//
// A minimal configuration:
//
//	seed: 42
//	points: {path: points.csv, id_column: pid}
//	raster:
//	  crs: UTM:36S
//	  layers:
//	    - {name: elev, path: elev.asc}
//	    - {name: ndvi, path: ndvi.asc}
//	features: {name: base, features: [elev, ndvi]}
//
// # Packages
//
//   - geo: grid definitions, feature stacks, ESRI ASCII and BIL I/O, UTM reprojection
//   - dataset: survey points, linking, stratified partitions
//   - stacking: base-learner bank, ensembler, multilabel stacker, validator, pipeline
//   - sklearn/...: the learners (stepwise logistic, random forest, gradient boosting, MLP), tuning and resampling
//   - metrics: ROC curve, AUC and log-loss
//   - store: artifact layout, prediction from saved models and the SQLite run ledger
//   - report: ROC plots, sample maps, GeoJSON export
//   - config: YAML run configuration
//   - cmd/landstack: the command line
package landstack
