// Package gradients defines the tensor set exchanged between contributors and
// the aggregation service, with a canonical CBOR wire encoding so that hashes
// and commitments are stable across processes.
package gradients

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Tensor is one named gradient tensor with row-major flattened values.
type Tensor struct {
	Name   string    `cbor:"name" json:"name"`
	Shape  []int     `cbor:"shape" json:"shape"`
	Values []float64 `cbor:"values" json:"values"`
}

// TensorSet is an ordered sequence of tensors making up one model update.
type TensorSet []Tensor

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("gradients: canonical encoder: %v", err))
	}
	encMode = em
}

// Encode serializes the set with canonical CBOR. Equal sets always produce
// identical bytes, which commitment and model hashes depend on.
func Encode(set TensorSet) ([]byte, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return encMode.Marshal(set)
}

// Decode parses a canonical payload and validates tensor shapes.
func Decode(data []byte) (TensorSet, error) {
	var set TensorSet
	if err := cbor.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode tensor set: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Validate checks that every tensor's value count matches its declared shape.
func (s TensorSet) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("tensor set is empty")
	}
	for i, t := range s {
		n := 1
		for _, d := range t.Shape {
			if d <= 0 {
				return fmt.Errorf("tensor %d (%s): invalid dimension %d", i, t.Name, d)
			}
			n *= d
		}
		if len(t.Shape) == 0 {
			n = len(t.Values)
		}
		if len(t.Values) == 0 {
			return fmt.Errorf("tensor %d (%s): no values", i, t.Name)
		}
		if len(t.Values) != n {
			return fmt.Errorf("tensor %d (%s): %d values for shape %v", i, t.Name, len(t.Values), t.Shape)
		}
	}
	return nil
}

// Clone returns a deep copy of the set.
func (s TensorSet) Clone() TensorSet {
	out := make(TensorSet, len(s))
	for i, t := range s {
		out[i] = Tensor{
			Name:   t.Name,
			Shape:  append([]int(nil), t.Shape...),
			Values: append([]float64(nil), t.Values...),
		}
	}
	return out
}

// SameShape reports whether two sets have the same tensor count and matching
// per-tensor dimensions. Names are not compared; aggregation is positional.
func SameShape(a, b TensorSet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i].Shape) != len(b[i].Shape) {
			return false
		}
		for j := range a[i].Shape {
			if a[i].Shape[j] != b[i].Shape[j] {
				return false
			}
		}
		if len(a[i].Values) != len(b[i].Values) {
			return false
		}
	}
	return true
}

// Hash returns the hex SHA-256 of the canonical encoding.
func Hash(set TensorSet) (string, error) {
	data, err := Encode(set)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// WeightedSum combines the sets elementwise: result[i][j] = sum_k w[k]*sets[k][i][j].
// Every set must match the first set's shape and len(weights) must equal len(sets).
func WeightedSum(sets []TensorSet, weights []float64) (TensorSet, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("no tensor sets to combine")
	}
	if len(sets) != len(weights) {
		return nil, fmt.Errorf("%d weights for %d tensor sets", len(weights), len(sets))
	}
	base := sets[0]
	for k, set := range sets[1:] {
		if !SameShape(base, set) {
			return nil, fmt.Errorf("tensor set %d does not match the base shape", k+1)
		}
	}

	out := make(TensorSet, len(base))
	for i, t := range base {
		sum := Tensor{
			Name:   t.Name,
			Shape:  append([]int(nil), t.Shape...),
			Values: make([]float64, len(t.Values)),
		}
		for k, set := range sets {
			w := weights[k]
			for j, v := range set[i].Values {
				sum.Values[j] += w * v
			}
		}
		out[i] = sum
	}
	return out, nil
}
