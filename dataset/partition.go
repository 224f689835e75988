package dataset

import (
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/sklearn/model_selection"
)

// Partition is the calibration/validation split of one label. Indices refer
// to the linked sample slice. It is the shared sample split restricted to the
// samples whose label is known, and every stage of that label uses it.
type Partition struct {
	Label       string
	Seed        uint64
	Calibration []int
	Validation  []int
}

// NewPartitions draws one calibration/validation split of the samples and
// derives each label's partition from it. The split is stratified on the joint
// label pattern (unknown counts as its own value), and each pattern contributes
// round(fraction * size) samples to calibration. A sample is therefore held out
// for every label or for none; a label only drops its unknown samples.
func NewPartitions(samples []Sample, labels []string, fraction float64, seed uint64) (map[string]*Partition, error) {
	if len(labels) == 0 {
		return nil, errors.NewValidationError("labels", "at least one label is required", labels)
	}
	if len(samples) == 0 {
		return nil, errors.ErrEmptyData
	}
	pattern := make([]float64, len(samples))
	for i, s := range samples {
		code := 0
		for _, label := range labels {
			v, ok := s.Labels[label]
			if !ok || v == Unknown {
				v = 2
			}
			code = code*3 + v
		}
		pattern[i] = float64(code)
	}
	train, test, err := model_selection.StratifiedSplit(pattern, fraction, seed)
	if err != nil {
		return nil, errors.Wrap(err, "partition")
	}

	parts := make(map[string]*Partition, len(labels))
	for _, label := range labels {
		p := &Partition{Label: label, Seed: seed}
		p.Calibration = knownOnly(samples, train, label)
		p.Validation = knownOnly(samples, test, label)
		if len(p.Calibration)+len(p.Validation) == 0 {
			return nil, errors.Wrapf(errors.ErrEmptyData, "label %s", label)
		}
		parts[label] = p
	}
	return parts, nil
}

// NewPartition draws the split of a single label; it is NewPartitions with
// one label.
func NewPartition(samples []Sample, label string, fraction float64, seed uint64) (*Partition, error) {
	parts, err := NewPartitions(samples, []string{label}, fraction, seed)
	if err != nil {
		return nil, err
	}
	return parts[label], nil
}

func knownOnly(samples []Sample, idx []int, label string) []int {
	var out []int
	for _, i := range idx {
		if v, ok := samples[i].Labels[label]; ok && v != Unknown {
			out = append(out, i)
		}
	}
	return out
}

// Prevalence returns the share of positives in idx.
func Prevalence(samples []Sample, idx []int, label string) float64 {
	if len(idx) == 0 {
		return 0
	}
	pos := 0
	for _, i := range idx {
		if samples[i].Labels[label] == 1 {
			pos++
		}
	}
	return float64(pos) / float64(len(idx))
}
