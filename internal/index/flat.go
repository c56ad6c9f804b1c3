// Package index provides an exact nearest-neighbour index over Euclidean distance.
//
// Vectors are addressed by insertion position, which callers align with their
// own parallel collections (chunk text, page metadata).
package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/viant/vec/search"
)

var (
	ErrInvalidK          = errors.New("k must be at least 1")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrCorrupt           = errors.New("corrupt index data")
)

// magic identifies the binary encoding of a FlatL2 index.
var magic = [4]byte{'F', 'L', '2', '1'}

// Neighbor is a search hit: the stored position and its distance to the query.
type Neighbor struct {
	Position int
	Distance float64
}

// FlatL2 is a brute-force index ranking vectors by Euclidean distance.
// It is not safe for concurrent Add; concurrent Search on a built index is safe.
type FlatL2 struct {
	dim  int
	vecs [][]float32
}

// NewFlatL2 creates an empty index for vectors of the given dimension.
func NewFlatL2(dim int) *FlatL2 {
	return &FlatL2{dim: dim}
}

// Dim returns the vector dimension.
func (f *FlatL2) Dim() int { return f.dim }

// Len returns the number of stored vectors.
func (f *FlatL2) Len() int { return len(f.vecs) }

// Vector returns the stored vector at position i.
func (f *FlatL2) Vector(i int) []float32 { return f.vecs[i] }

// Add appends vectors in order. No vector is added if any has the wrong dimension.
func (f *FlatL2) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v), f.dim)
		}
	}
	for _, v := range vectors {
		f.vecs = append(f.vecs, append([]float32(nil), v...))
	}
	return nil
}

// Search returns up to k stored positions nearest to query, ascending by
// distance with ties broken by position. k larger than Len returns everything.
func (f *FlatL2) Search(query []float32, k int) ([]Neighbor, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(query), f.dim)
	}
	if len(f.vecs) == 0 {
		return nil, nil
	}

	q := search.Float32s(query)
	hits := make([]Neighbor, len(f.vecs))
	for i, v := range f.vecs {
		hits[i] = Neighbor{Position: i, Distance: float64(q.EuclideanDistance(v))}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// MarshalBinary stores: magic, dim(uint32), n(uint32), then n*dim float32,
// all little-endian.
func (f *FlatL2) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 12+4*f.dim*len(f.vecs))
	out = append(out, magic[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(f.dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(f.vecs)))
	for _, v := range f.vecs {
		for _, x := range v {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(x))
		}
	}
	return out, nil
}

// UnmarshalBinary restores the index from bytes produced by MarshalBinary.
func (f *FlatL2) UnmarshalBinary(data []byte) error {
	if len(data) < 12 {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	if [4]byte(data[:4]) != magic {
		return fmt.Errorf("%w: bad magic %q", ErrCorrupt, data[:4])
	}
	dim32 := binary.LittleEndian.Uint32(data[4:8])
	n32 := binary.LittleEndian.Uint32(data[8:12])
	body := data[12:]
	if dim32 == 0 && n32 > 0 {
		return fmt.Errorf("%w: %d vectors of dimension 0", ErrCorrupt, n32)
	}
	// Both factors fit in 32 bits, so the product cannot overflow uint64.
	if want := 4 * uint64(dim32) * uint64(n32); uint64(len(body)) != want {
		return fmt.Errorf("%w: expected %d payload bytes, got %d", ErrCorrupt, want, len(body))
	}
	dim, n := int(dim32), int(n32)

	vecs := make([][]float32, n)
	off := 0
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(body[off:]))
			off += 4
		}
		vecs[i] = v
	}
	f.dim = dim
	f.vecs = vecs
	return nil
}
