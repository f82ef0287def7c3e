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
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/answerbank/core"
)

// encoder appends MUS-encoded fields into a presized buffer.
type encoder struct {
	bs []byte
	n  int
}

func (e *encoder) uint64(v uint64) { e.n += varint.Uint64.Marshal(v, e.bs[e.n:]) }
func (e *encoder) int(v int)       { e.n += varint.Int.Marshal(v, e.bs[e.n:]) }
func (e *encoder) string(v string) { e.n += ord.String.Marshal(v, e.bs[e.n:]) }
func (e *encoder) time(v time.Time) {
	e.n += varint.Int64.Marshal(timeToMicros(v), e.bs[e.n:])
}

// decoder reads MUS-encoded fields, remembering the first error.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) time() time.Time {
	if d.err != nil {
		return time.Time{}
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return microsToTime(v)
}

func (d *decoder) finish(what string) error {
	if d.err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, what, d.err)
	}
	if d.n != len(d.bs) {
		return fmt.Errorf("%w: %s: %d trailing bytes", ErrSerializationFailed, what, len(d.bs)-d.n)
	}
	return nil
}

func timeToMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func microsToTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	d := decoder{bs: data}
	id := core.ID(d.uint64())
	return id, d.finish("id")
}

// MarshalManifest serializes a Manifest to bytes.
func MarshalManifest(m *core.Manifest) []byte {
	size := varint.Int.Size(m.FormatVersion) +
		ord.String.Size(m.ModelID) +
		varint.Int.Size(m.Dimension) +
		varint.Uint64.Size(m.Build) +
		varint.Int.Size(m.RecordCount) +
		varint.Int.Size(m.CategoryCount) +
		varint.Int.Size(m.ValidCount) +
		varint.Int64.Size(timeToMicros(m.BuiltAt)) +
		ord.String.Size(m.RunID)

	e := encoder{bs: make([]byte, size)}
	e.int(m.FormatVersion)
	e.string(m.ModelID)
	e.int(m.Dimension)
	e.uint64(m.Build)
	e.int(m.RecordCount)
	e.int(m.CategoryCount)
	e.int(m.ValidCount)
	e.time(m.BuiltAt)
	e.string(m.RunID)
	return e.bs
}

// UnmarshalManifest deserializes a Manifest from bytes.
func UnmarshalManifest(data []byte) (*core.Manifest, error) {
	d := decoder{bs: data}
	m := &core.Manifest{
		FormatVersion: d.int(),
		ModelID:       d.string(),
		Dimension:     d.int(),
		Build:         d.uint64(),
		RecordCount:   d.int(),
		CategoryCount: d.int(),
		ValidCount:    d.int(),
		BuiltAt:       d.time(),
		RunID:         d.string(),
	}
	if err := d.finish("manifest"); err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalCategory serializes a Category to bytes.
func MarshalCategory(c *core.Category) []byte {
	size := varint.Uint64.Size(uint64(c.Id)) +
		varint.Uint64.Size(uint64(c.ParentId)) +
		ord.String.Size(c.Label) +
		varint.Int.Size(int(c.Level))

	e := encoder{bs: make([]byte, size)}
	e.uint64(uint64(c.Id))
	e.uint64(uint64(c.ParentId))
	e.string(c.Label)
	e.int(int(c.Level))
	return e.bs
}

// UnmarshalCategory deserializes a Category from bytes.
func UnmarshalCategory(data []byte) (*core.Category, error) {
	d := decoder{bs: data}
	c := &core.Category{
		Id:       core.ID(d.uint64()),
		ParentId: core.ID(d.uint64()),
		Label:    d.string(),
		Level:    core.Level(d.int()),
	}
	if err := d.finish("category"); err != nil {
		return nil, err
	}
	return c, nil
}

// MarshalAnswerRecord serializes an AnswerRecord to bytes. The vector is
// stored separately (see EncodeVector). Metadata keys are written in sorted
// order so equal records encode identically.
func MarshalAnswerRecord(r *core.AnswerRecord) []byte {
	keys := slices.Sorted(maps.Keys(r.Metadata))

	size := varint.Uint64.Size(uint64(r.Id)) +
		varint.Uint64.Size(uint64(r.CategoryId)) +
		ord.String.Size(r.Code) +
		ord.String.Size(r.Question) +
		ord.String.Size(r.Answer) +
		varint.Int.Size(len(keys)) +
		ord.String.Size(r.ContentHash) +
		varint.Int.Size(int(r.VectorState)) +
		ord.String.Size(r.VectorNote) +
		varint.Int64.Size(timeToMicros(r.CreatedAt)) +
		varint.Int64.Size(timeToMicros(r.UpdatedAt))
	for _, k := range keys {
		size += ord.String.Size(k) + ord.String.Size(r.Metadata[k])
	}

	e := encoder{bs: make([]byte, size)}
	e.uint64(uint64(r.Id))
	e.uint64(uint64(r.CategoryId))
	e.string(r.Code)
	e.string(r.Question)
	e.string(r.Answer)
	e.int(len(keys))
	for _, k := range keys {
		e.string(k)
		e.string(r.Metadata[k])
	}
	e.string(r.ContentHash)
	e.int(int(r.VectorState))
	e.string(r.VectorNote)
	e.time(r.CreatedAt)
	e.time(r.UpdatedAt)
	return e.bs
}

// UnmarshalAnswerRecord deserializes an AnswerRecord from bytes.
func UnmarshalAnswerRecord(data []byte) (*core.AnswerRecord, error) {
	d := decoder{bs: data}
	r := &core.AnswerRecord{
		Id:         core.ID(d.uint64()),
		CategoryId: core.ID(d.uint64()),
		Code:       d.string(),
		Question:   d.string(),
		Answer:     d.string(),
	}

	count := d.int()
	if count < 0 || count > len(data) {
		return nil, fmt.Errorf("%w: answer record: metadata count %d", ErrSerializationFailed, count)
	}
	if count > 0 {
		r.Metadata = make(map[string]string, count)
		for range count {
			k := d.string()
			r.Metadata[k] = d.string()
		}
	}

	r.ContentHash = d.string()
	r.VectorState = core.VectorState(d.int())
	r.VectorNote = d.string()
	r.CreatedAt = d.time()
	r.UpdatedAt = d.time()
	if err := d.finish("answer record"); err != nil {
		return nil, err
	}
	return r, nil
}

// EncodeVector encodes a vector as little-endian float32 values.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector decodes a little-endian float32 vector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: vector length %d is not a multiple of 4", ErrTruncatedData, len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}
