// Package types holds the wire types shared by witnesses, storage records and
// API responses.
package types

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// BigInt is a big.Int wrapper which marshals JSON to a decimal string, the
// representation circuits and snarkjs-style tooling expect for field
// elements. A nil pointer marshals as "0".
type BigInt big.Int

// NewInt creates a new BigInt from the given integer value.
func NewInt(x int64) *BigInt {
	return (*BigInt)(big.NewInt(x))
}

// FromBig copies x into a new BigInt. A nil x yields zero.
func FromBig(x *big.Int) *BigInt {
	if x == nil {
		return NewInt(0)
	}
	return (*BigInt)(new(big.Int).Set(x))
}

// MarshalText returns the decimal string representation of the big number.
func (i *BigInt) MarshalText() ([]byte, error) {
	if i == nil {
		return []byte("0"), nil
	}
	return (*big.Int)(i).MarshalText()
}

// UnmarshalText parses the text representation into the big number.
func (i *BigInt) UnmarshalText(data []byte) error {
	if i == nil {
		return fmt.Errorf("cannot unmarshal into nil BigInt")
	}
	return (*big.Int)(i).UnmarshalText(data)
}

// UnmarshalJSON supports both string and numeric JSON representations.
func (i *BigInt) UnmarshalJSON(data []byte) error {
	if i == nil {
		return fmt.Errorf("cannot unmarshal into nil BigInt")
	}
	if len(data) > 1 && data[0] == '"' {
		return i.UnmarshalText(data[1 : len(data)-1])
	}
	return i.UnmarshalText(data)
}

// MarshalCBOR encodes BigInt as a CBOR text string.
func (i *BigInt) MarshalCBOR() ([]byte, error) {
	txt, err := i.MarshalText()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(string(txt))
}

// UnmarshalCBOR decodes a CBOR text string into BigInt.
func (i *BigInt) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	return i.UnmarshalText([]byte(s))
}

// String returns the decimal representation of the big number.
func (i *BigInt) String() string {
	if i == nil {
		return "0"
	}
	return (*big.Int)(i).String()
}

// MathBigInt converts i to a math/big *Int sharing the same storage.
func (i *BigInt) MathBigInt() *big.Int {
	return (*big.Int)(i)
}

// Equal helps us with go-cmp.
func (i *BigInt) Equal(j *BigInt) bool {
	if i == nil || j == nil {
		return (i == nil) == (j == nil)
	}
	return i.MathBigInt().Cmp(j.MathBigInt()) == 0
}

// BigInts copies a vector of field elements.
func BigInts(xs []*big.Int) []*BigInt {
	out := make([]*BigInt, len(xs))
	for i, x := range xs {
		out[i] = FromBig(x)
	}
	return out
}

// BigIntMatrix copies a matrix of field elements.
func BigIntMatrix(xs [][]*big.Int) [][]*BigInt {
	out := make([][]*BigInt, len(xs))
	for i, row := range xs {
		out[i] = BigInts(row)
	}
	return out
}

// MathBigInts converts a vector back to math/big values.
func MathBigInts(xs []*BigInt) []*big.Int {
	out := make([]*big.Int, len(xs))
	for i, x := range xs {
		if x == nil {
			out[i] = new(big.Int)
			continue
		}
		out[i] = new(big.Int).Set(x.MathBigInt())
	}
	return out
}
