// Package ecc defines the point abstraction the encryption primitives are
// written against.
package ecc

import "math/big"

// Point is an affine elliptic curve group element with in-place arithmetic.
type Point interface {
	// New returns a new point of the same curve (the identity element).
	New() Point

	// Order returns the order of the prime subgroup.
	Order() *big.Int

	// Add sets the receiver to a + b.
	Add(a, b Point)

	// ScalarMult sets the receiver to scalar * a.
	ScalarMult(a Point, scalar *big.Int)

	// ScalarBaseMult sets the receiver to scalar * G.
	ScalarBaseMult(scalar *big.Int)

	// Neg sets the receiver to -a.
	Neg(a Point)

	// Equal reports whether both points have the same coordinates.
	Equal(a Point) bool

	// Set copies a into the receiver.
	Set(a Point)

	// SetZero sets the receiver to the identity element.
	SetZero()

	// SetGenerator sets the receiver to the subgroup generator G.
	SetGenerator()

	// Point returns copies of the affine coordinates.
	Point() (*big.Int, *big.Int)

	// SetPoint sets the affine coordinates and returns the receiver.
	SetPoint(x, y *big.Int) Point

	// BigInts returns the coordinates as [x, y].
	BigInts() []*big.Int

	// String returns "x,y" in decimal.
	String() string
}
