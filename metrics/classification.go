// Package metrics implements the binary classification scores used to tune
// and validate the stacked models.
package metrics

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/landstack/pkg/errors"
)

// AUCSlice computes the area under the ROC curve for binary labels (0/1)
// from the Mann-Whitney U statistic over mid-ranks, which handles ties in
// O(n log n). A tie between a positive and a negative score counts as half a
// correctly ordered pair. When yTrue contains a single class the AUC is
// undefined; 0.5 is returned and an UndefinedMetricWarning is emitted.
func AUCSlice(yTrue, score []float64) (float64, error) {
	if err := checkBinary("AUC", yTrue, score); err != nil {
		return 0, err
	}

	n := len(yTrue)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return score[idx[a]] < score[idx[b]] })

	var nPos, nNeg, rankSumPos float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && score[idx[j+1]] == score[idx[i]] {
			j++
		}
		// ranks are 1-based; tied block i..j shares the mean rank
		midRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue[idx[k]] == 1 {
				nPos++
				rankSumPos += midRank
			} else {
				nNeg++
			}
		}
		i = j + 1
	}

	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in y_true", 0.5))
		return 0.5, nil
	}
	u := rankSumPos - nPos*(nPos+1)/2
	return u / (nPos * nNeg), nil
}

// ROCCurve returns the false positive rates, true positive rates and the
// decreasing score thresholds at which they are reached. The first point is
// (0, 0) at threshold +Inf and the last is (1, 1).
func ROCCurve(yTrue, score []float64) (fpr, tpr, thresholds []float64, err error) {
	if err := checkBinary("ROCCurve", yTrue, score); err != nil {
		return nil, nil, nil, err
	}

	n := len(yTrue)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return score[idx[a]] > score[idx[b]] })

	var nPos, nNeg float64
	for _, y := range yTrue {
		if y == 1 {
			nPos++
		} else {
			nNeg++
		}
	}

	fpr = []float64{0}
	tpr = []float64{0}
	thresholds = []float64{math.Inf(1)}
	var tp, fp float64
	for i := 0; i < n; i++ {
		if yTrue[idx[i]] == 1 {
			tp++
		} else {
			fp++
		}
		if i+1 < n && score[idx[i+1]] == score[idx[i]] {
			continue
		}
		fpr = append(fpr, safeRate(fp, nNeg))
		tpr = append(tpr, safeRate(tp, nPos))
		thresholds = append(thresholds, score[idx[i]])
	}
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("ROCCurve", "only one class present in y_true", 0))
	}
	return fpr, tpr, thresholds, nil
}

// TrapezoidAUC integrates a ROC curve with the trapezoid rule.
func TrapezoidAUC(fpr, tpr []float64) float64 {
	var area float64
	for i := 1; i < len(fpr) && i < len(tpr); i++ {
		area += (fpr[i] - fpr[i-1]) * (tpr[i] + tpr[i-1]) / 2
	}
	return area
}

// LogLoss computes the mean negative log-likelihood of binary labels under
// the predicted probabilities. A certain miss costs -log(1e-15).
func LogLoss(yTrue, prob []float64) (float64, error) {
	if err := checkBinary("LogLoss", yTrue, prob); err != nil {
		return 0, err
	}
	var loss float64
	for i, y := range yTrue {
		loss -= y*errors.StabilizeLog(prob[i]) + (1-y)*errors.StabilizeLog(1-prob[i])
	}
	return loss / float64(len(yTrue)), nil
}

func checkBinary(op string, yTrue, score []float64) error {
	if len(yTrue) != len(score) {
		return errors.NewDimensionError(op, len(yTrue), len(score), 0)
	}
	if len(yTrue) == 0 {
		return errors.NewValueError(op, "empty input")
	}
	for _, y := range yTrue {
		if y != 0 && y != 1 {
			return errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	for _, s := range score {
		if math.IsNaN(s) {
			return errors.NewValueError(op, "scores contain NaN")
		}
	}
	return nil
}

func safeRate(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
