// Package neural_network provides a single-hidden-layer binary network
// classifier on github.com/patrikeh/go-deep.
package neural_network

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/patrikeh/go-deep"
	"github.com/patrikeh/go-deep/training"
	"gonum.org/v1/gonum/mat"
)

// KindMLP is the registered model kind of MLPClassifier.
const KindMLP = "nnet"

// MLPClassifier is a feed-forward network with one sigmoid hidden layer and
// a sigmoid output unit trained with Adam on the binary cross-entropy.
type MLPClassifier struct {
	state *model.StateManager

	HiddenSize   int
	Epochs       int
	LearningRate float64

	// go-deep keeps activations on the network, so a forward pass is not
	// safe for concurrent use.
	mu  sync.Mutex
	net *deep.Neural
}

// MLPOption configures an MLPClassifier.
type MLPOption func(*MLPClassifier)

// WithHiddenSize sets the number of hidden units.
func WithHiddenSize(n int) MLPOption {
	return func(m *MLPClassifier) { m.HiddenSize = n }
}

// WithEpochs sets the number of passes over the training data.
func WithEpochs(n int) MLPOption {
	return func(m *MLPClassifier) { m.Epochs = n }
}

// WithLearningRate sets the Adam step size.
func WithLearningRate(lr float64) MLPOption {
	return func(m *MLPClassifier) { m.LearningRate = lr }
}

// NewMLPClassifier creates an unfitted network.
func NewMLPClassifier(opts ...MLPOption) *MLPClassifier {
	m := &MLPClassifier{
		state:        model.NewStateManager(),
		HiddenSize:   3,
		Epochs:       100,
		LearningRate: 0.01,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Kind implements model.Persistent.
func (m *MLPClassifier) Kind() string { return KindMLP }

// Fit trains the network on standardized features and 0/1 targets.
func (m *MLPClassifier) Fit(X, y mat.Matrix) error {
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.NewModelError("MLPClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if m.HiddenSize <= 0 {
		return errors.NewValidationError("size", "must be positive", m.HiddenSize)
	}
	if m.Epochs <= 0 {
		return errors.NewValidationError("epochs", "must be positive", m.Epochs)
	}
	yr, _ := y.Dims()
	if yr != n {
		return errors.NewDimensionError("MLPClassifier.Fit", n, yr, 0)
	}

	examples := make(training.Examples, 0, n)
	var pos int
	for i := 0; i < n; i++ {
		v := y.At(i, 0)
		if v != 0 && v != 1 {
			return errors.NewValueError("MLPClassifier.Fit", fmt.Sprintf("target must be 0 or 1, got %v at row %d", v, i))
		}
		pos += int(v)
		examples = append(examples, training.Example{
			Input:    mat.Row(nil, i, X),
			Response: []float64{v},
		})
	}
	if pos == 0 || pos == n {
		return errors.NewModelError("MLPClassifier.Fit", "single class", errors.ErrSingleClass)
	}

	net := deep.NewNeural(&deep.Config{
		Inputs:     p,
		Layout:     []int{m.HiddenSize, 1},
		Activation: deep.ActivationSigmoid,
		Mode:       deep.ModeBinary,
		Weight:     deep.NewNormal(0.5, 0.0),
		Bias:       true,
	})
	optimizer := training.NewAdam(m.LearningRate, 0.9, 0.999, 1e-8)
	trainer := training.NewTrainer(optimizer, 0)
	err := errors.SafeExecute("MLPClassifier.Fit", func() error {
		trainer.Train(net, examples, nil, m.Epochs)
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.net = net
	m.mu.Unlock()
	m.state.SetFitted(p, n)
	return nil
}

// PredictProba returns the network output as P(y=1).
func (m *MLPClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, p := X.Dims()
	if err := m.state.CheckPredict("MLPClassifier", p); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	row := make([]float64, p)

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		out[i] = errors.ClipValue(m.net.Predict(row)[0], 0, 1)
	}
	return model.BinaryProba(out), nil
}

// IsFitted reports whether Fit has completed.
func (m *MLPClassifier) IsFitted() bool { return m.state.IsFitted() }

func (m *MLPClassifier) String() string {
	return fmt.Sprintf("MLPClassifier(size=%d, epochs=%d, lr=%g)", m.HiddenSize, m.Epochs, m.LearningRate)
}

type mlpSnapshot struct {
	HiddenSize   int              `json:"size"`
	Epochs       int              `json:"epochs"`
	LearningRate float64          `json:"learning_rate"`
	State        model.ModelState `json:"state"`
	Network      *deep.Dump       `json:"network"`
}

// MarshalBinary stores the network through go-deep's Dump.
func (m *MLPClassifier) MarshalBinary() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.net == nil {
		return nil, errors.NewNotFittedError("MLPClassifier", "MarshalBinary")
	}
	return json.Marshal(mlpSnapshot{
		HiddenSize: m.HiddenSize, Epochs: m.Epochs, LearningRate: m.LearningRate,
		State: m.state.GetState(), Network: m.net.Dump(),
	})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *MLPClassifier) UnmarshalBinary(data []byte) error {
	var snap mlpSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errors.Wrap(err, "failed to decode network")
	}
	if snap.Network == nil {
		return errors.New("network dump missing")
	}
	if m.state == nil {
		m.state = model.NewStateManager()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HiddenSize, m.Epochs, m.LearningRate = snap.HiddenSize, snap.Epochs, snap.LearningRate
	m.net = deep.FromDump(snap.Network)
	m.state.SetState(snap.State)
	return nil
}

func init() {
	model.Register(KindMLP, func() model.Persistent { return NewMLPClassifier() })
}
