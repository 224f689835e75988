package model

import (
	"bytes"
	"encoding"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// EnvelopeVersion is bumped when the envelope layout changes incompatibly.
const EnvelopeVersion = 1

// Persistent is a classifier that can be written into an Envelope.
type Persistent interface {
	Classifier
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
	// Kind names the learner implementation; it selects the registered factory on load.
	Kind() string
}

// Envelope is the on-disk form of a fitted classifier: the learner payload
// plus the metadata needed to apply it to the right features.
type Envelope struct {
	Version  int      `msgpack:"version"`
	Kind     string   `msgpack:"kind"`
	Label    string   `msgpack:"label"`
	Stage    string   `msgpack:"stage"`
	Learner  string   `msgpack:"learner"`
	Features []string `msgpack:"features"`
	Seed     int64    `msgpack:"seed"`
	CVAUC    float64  `msgpack:"cv_auc"`
	Payload  []byte   `msgpack:"payload"`
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Persistent{}
)

// Register makes a learner kind loadable. Learner packages call it from init.
func Register(kind string, factory func() Persistent) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// New returns an unfitted learner of the registered kind.
func New(kind string) (Persistent, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.NewValueError("model.New", "unknown learner kind "+kind)
	}
	return factory(), nil
}

// RegisteredKinds lists the learner kinds available for decoding.
func RegisteredKinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Encode writes c into w using meta for everything but Kind, Version and Payload.
func Encode(w io.Writer, meta Envelope, c Persistent) error {
	if !c.IsFitted() {
		return errors.NewNotFittedError(c.Kind(), "Encode")
	}
	payload, err := c.MarshalBinary()
	if err != nil {
		return errors.Wrapf(err, "marshal %s", c.Kind())
	}
	meta.Version = EnvelopeVersion
	meta.Kind = c.Kind()
	meta.Payload = payload
	if err := msgpack.NewEncoder(w).Encode(&meta); err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	return nil
}

// Decode reads an envelope from r and restores its classifier.
func Decode(r io.Reader) (Envelope, Persistent, error) {
	var env Envelope
	if err := msgpack.NewDecoder(r).Decode(&env); err != nil {
		return env, nil, errors.Wrap(err, "decode envelope")
	}
	if env.Version != EnvelopeVersion {
		return env, nil, errors.Newf("envelope version %d not supported (want %d)", env.Version, EnvelopeVersion)
	}
	c, err := New(env.Kind)
	if err != nil {
		return env, nil, err
	}
	if err := c.UnmarshalBinary(env.Payload); err != nil {
		return env, nil, errors.Wrapf(err, "unmarshal %s", env.Kind)
	}
	env.Payload = nil
	return env, c, nil
}

// SaveModel はモデルをファイルに保存する
func SaveModel(filename string, meta Envelope, c Persistent) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return errors.Wrap(err, "failed to create model directory")
	}
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	if err := Encode(file, meta, c); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// LoadModel はファイルからモデルを読み込む
func LoadModel(filename string) (Envelope, Persistent, error) {
	file, err := os.Open(filename)
	if err != nil {
		return Envelope{}, nil, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()
	return Decode(file)
}

// GobMarshal encodes v with gob. Learners whose state is plain Go values use
// it inside MarshalBinary.
func GobMarshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.Wrap(err, "failed to encode model")
	}
	return buf.Bytes(), nil
}

// GobUnmarshal decodes data produced by GobMarshal into v.
func GobUnmarshal(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
