// Package checkpoint reads serialized parameter mappings and applies them to
// loaded models, tolerating naming and shape differences.
package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ekisa-team/flamingo/internal/tensor"
	"github.com/vmihailenco/msgpack/v5"
)

// StateDictKey is the top-level key under which training checkpoints nest
// their parameters.
const StateDictKey = "state_dict"

// Record is the top-level content of a checkpoint file. Values are
// *tensor.Tensor, the nested state dict as map[string]*tensor.Tensor, or
// arbitrary metadata.
type Record map[string]any

// Read loads the checkpoint at path. Files ending in .safetensors use the
// safetensors layout, everything else is read as msgpack.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".safetensors":
		return readSafetensors(data)
	default:
		return readMsgpack(data)
	}
}

func readMsgpack(data []byte) (Record, error) {
	var raw map[string]msgpack.RawMessage
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	rec := make(Record, len(raw))
	for key, value := range raw {
		if key == StateDictKey {
			var state map[string]*tensor.Tensor
			if err := msgpack.Unmarshal(value, &state); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, StateDictKey, err)
			}
			for name, t := range state {
				if t == nil {
					return nil, fmt.Errorf("%w: %s: null tensor", ErrCorrupt, name)
				}
				if err := t.Validate(); err != nil {
					return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
				}
			}
			rec[key] = state
			continue
		}

		if t, ok := decodeTensor(value); ok {
			rec[key] = t
			continue
		}

		var meta any
		if err := msgpack.Unmarshal(value, &meta); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
		}
		rec[key] = meta
	}

	return rec, nil
}

func decodeTensor(raw msgpack.RawMessage) (*tensor.Tensor, bool) {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields(true)

	var t tensor.Tensor
	if err := dec.Decode(&t); err != nil || t.Shape == nil {
		return nil, false
	}
	if t.Validate() != nil {
		return nil, false
	}
	return &t, true
}

// Unwrap returns the parameter mapping of rec: the nested state dict when
// present, otherwise every top-level tensor.
func Unwrap(rec Record) map[string]*tensor.Tensor {
	if state, ok := rec[StateDictKey].(map[string]*tensor.Tensor); ok {
		return state
	}

	out := make(map[string]*tensor.Tensor, len(rec))
	for key, value := range rec {
		if t, ok := value.(*tensor.Tensor); ok {
			out[key] = t
		}
	}
	return out
}

// Write stores mapping at path as a msgpack checkpoint nested under state_dict.
func Write(path string, mapping map[string]*tensor.Tensor) error {
	data, err := msgpack.Marshal(map[string]any{StateDictKey: mapping})
	if err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
