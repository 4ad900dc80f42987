package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/ekisa-team/flamingo/internal/tensor"
	"github.com/x448/float16"
)

const safetensorsMetadataKey = "__metadata__"

type safetensorsEntry struct {
	DType       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

func readSafetensors(data []byte) (Record, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: safetensors file too short", ErrCorrupt)
	}

	n := binary.LittleEndian.Uint64(data[:8])
	if n > uint64(len(data)-8) {
		return nil, fmt.Errorf("%w: safetensors header length %d exceeds file", ErrCorrupt, n)
	}
	header := data[8 : 8+n]
	body := data[8+n:]

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(header, &entries); err != nil {
		return nil, fmt.Errorf("%w: safetensors header: %v", ErrCorrupt, err)
	}

	rec := make(Record, len(entries))
	for name, raw := range entries {
		if name == safetensorsMetadataKey {
			var meta map[string]string
			if err := json.Unmarshal(raw, &meta); err == nil {
				rec[name] = meta
			}
			continue
		}

		var e safetensorsEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
		}

		begin, end := e.DataOffsets[0], e.DataOffsets[1]
		if begin < 0 || end < begin || end > len(body) {
			return nil, fmt.Errorf("%w: %s: offsets %v out of range", ErrCorrupt, name, e.DataOffsets)
		}

		values, err := decodeValues(e.DType, body[begin:end])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		t, err := tensor.FromData(values, e.Shape...)
		if err == nil {
			err = t.Validate()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
		}
		rec[name] = t
	}

	return rec, nil
}

func decodeValues(dtype string, b []byte) ([]float32, error) {
	var size int
	switch dtype {
	case "F32":
		size = 4
	case "F16", "BF16":
		size = 2
	case "F64":
		size = 8
	default:
		return nil, fmt.Errorf("%w: dtype %s", ErrFormat, dtype)
	}
	if len(b)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %s", ErrCorrupt, len(b), dtype)
	}

	out := make([]float32, len(b)/size)
	for i := range out {
		chunk := b[i*size : (i+1)*size]
		switch dtype {
		case "F32":
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(chunk))
		case "F16":
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(chunk)).Float32()
		case "BF16":
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(chunk)) << 16)
		case "F64":
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(chunk)))
		}
	}
	return out, nil
}
