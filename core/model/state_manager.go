package model

import (
	"sync"

	"github.com/YuminosukeSato/landstack/pkg/errors"
)

// StateManager tracks the fitted state of a classifier in a thread-safe manner.
// Learners embed it by composition; exported fields survive gob encoding.
type StateManager struct {
	Fitted    bool
	NFeatures int
	NSamples  int
	mu        sync.RWMutex
}

// NewStateManager creates a new StateManager instance.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

// SetFitted marks the model as fitted with the dimensions it saw.
func (s *StateManager) SetFitted(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = true
	s.NFeatures = nFeatures
	s.NSamples = nSamples
}

// Reset resets the fitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = false
	s.NFeatures = 0
	s.NSamples = 0
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples
}

// RequireFitted returns a NotFittedError if the model has not been fitted.
func (s *StateManager) RequireFitted(modelName, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(modelName, method)
	}
	return nil
}

// CheckPredict combines RequireFitted with a feature-count check on X.
func (s *StateManager) CheckPredict(modelName string, nFeatures int) error {
	if err := s.RequireFitted(modelName, "PredictProba"); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if nFeatures != s.NFeatures {
		return errors.NewDimensionError(modelName+".PredictProba", s.NFeatures, nFeatures, 1)
	}
	return nil
}

// ModelState is a snapshot of StateManager used for serialization and debugging.
type ModelState struct {
	Fitted    bool `json:"fitted" msgpack:"fitted"`
	NFeatures int  `json:"n_features,omitempty" msgpack:"n_features"`
	NSamples  int  `json:"n_samples,omitempty" msgpack:"n_samples"`
}

// GetState returns the current state as a ModelState struct.
func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelState{Fitted: s.Fitted, NFeatures: s.NFeatures, NSamples: s.NSamples}
}

// SetState restores the state from a ModelState struct.
func (s *StateManager) SetState(state ModelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = state.Fitted
	s.NFeatures = state.NFeatures
	s.NSamples = state.NSamples
}
