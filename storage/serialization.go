// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/poiesic/ragstore/core"
)

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

func unmarshal[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &v, nil
}

// MarshalCollection serializes a Collection to bytes.
func MarshalCollection(c *core.Collection) ([]byte, error) {
	return marshal(c)
}

// UnmarshalCollection deserializes a Collection from bytes.
func UnmarshalCollection(data []byte) (*core.Collection, error) {
	return unmarshal[core.Collection](data)
}

// vectorBlob stores a vector as little-endian float32 bits instead of
// decimal text.
type vectorBlob []float32

func (v vectorBlob) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return json.Marshal(buf)
}

func (v *vectorBlob) UnmarshalJSON(data []byte) error {
	var buf []byte
	if err := json.Unmarshal(data, &buf); err != nil {
		return err
	}
	if buf == nil {
		*v = nil
		return nil
	}
	if len(buf)%4 != 0 {
		return fmt.Errorf("vector blob of %d bytes", len(buf))
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	*v = out
	return nil
}

// recordEnvelope shadows the embedding with its binary form.
type recordEnvelope struct {
	*core.EmbeddingRecord
	Embedding vectorBlob
}

// MarshalRecord serializes an EmbeddingRecord to bytes.
func MarshalRecord(r *core.EmbeddingRecord) ([]byte, error) {
	return marshal(recordEnvelope{EmbeddingRecord: r, Embedding: r.Embedding})
}

// UnmarshalRecord deserializes an EmbeddingRecord from bytes.
func UnmarshalRecord(data []byte) (*core.EmbeddingRecord, error) {
	env, err := unmarshal[recordEnvelope](data)
	if err != nil {
		return nil, err
	}
	if env.EmbeddingRecord == nil {
		env.EmbeddingRecord = &core.EmbeddingRecord{}
	}
	env.EmbeddingRecord.Embedding = env.Embedding
	return env.EmbeddingRecord, nil
}

// MarshalSourceFile serializes a SourceFile to bytes.
func MarshalSourceFile(f *core.SourceFile) ([]byte, error) {
	return marshal(f)
}

// UnmarshalSourceFile deserializes a SourceFile from bytes.
func UnmarshalSourceFile(data []byte) (*core.SourceFile, error) {
	return unmarshal[core.SourceFile](data)
}
