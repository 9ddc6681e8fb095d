// Package bjj implements the BabyJubJub curve on top of the iden3 library,
// conforming to the ecc.Point interface.
package bjj

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/iden3/go-iden3-crypto/babyjub"

	"github.com/vocdoni/maci-coordinator/crypto"
	"github.com/vocdoni/maci-coordinator/crypto/ecc"
	"github.com/vocdoni/maci-coordinator/types"
)

// CurveType is the identifier for the BabyJubJub curve implementation.
const CurveType = "bjj_iden3"

// BJJ is the affine representation of a BabyJubJub group element. The
// generator is Base8, the generator of the prime order subgroup.
//
// The all-zero coordinate pair is not a curve point but is used by the
// protocol as the empty ciphertext and empty key. Arithmetic on it stays at
// (0, 0), matching the circuits.
type BJJ struct {
	inner *babyjub.Point
}

// New creates a new BJJ point (identity element by default).
func New() ecc.Point {
	return &BJJ{inner: babyjub.NewPoint()}
}

// FromXY builds a point from its affine coordinates without validating it.
func FromXY(x, y *big.Int) *BJJ {
	g := &BJJ{inner: babyjub.NewPoint()}
	g.SetPoint(x, y)
	return g
}

// FromIden3 wraps an iden3 point. The coordinates are copied.
func FromIden3(p *babyjub.Point) *BJJ {
	return FromXY(p.X, p.Y)
}

// Generator returns a copy of Base8.
func Generator() *BJJ {
	return FromIden3(babyjub.B8)
}

// New creates a new BJJ point (identity element by default)
func (g *BJJ) New() ecc.Point {
	return New()
}

// Order returns the order of the BabyJubJub prime subgroup.
func (*BJJ) Order() *big.Int {
	return babyjub.SubOrder
}

// Add computes a + b with projective coordinates.
func (g *BJJ) Add(a, b ecc.Point) {
	g.inner = babyjub.NewPointProjective().Add(toBJJ(a).inner.Projective(), toBJJ(b).inner.Projective()).Affine()
}

// ScalarMult computes scalar * a.
func (g *BJJ) ScalarMult(a ecc.Point, scalar *big.Int) {
	g.inner = babyjub.NewPoint().Mul(scalar, toBJJ(a).inner)
}

// ScalarBaseMult computes scalar * Base8.
func (g *BJJ) ScalarBaseMult(scalar *big.Int) {
	g.inner = babyjub.NewPoint().Mul(scalar, babyjub.B8)
}

// Neg sets the receiver to (-x mod q, y).
func (g *BJJ) Neg(a ecc.Point) {
	x, y := toBJJ(a).Point()
	g.SetPoint(crypto.Sub(big.NewInt(0), x), y)
}

// Equal checks if two curve points are equal.
func (g *BJJ) Equal(a ecc.Point) bool {
	o := toBJJ(a)
	return g.inner.X.Cmp(o.inner.X) == 0 && g.inner.Y.Cmp(o.inner.Y) == 0
}

// Set copies the value from another curve point.
func (g *BJJ) Set(a ecc.Point) {
	g.SetPoint(toBJJ(a).Point())
}

// SetZero sets the point to the identity element (0, 1).
func (g *BJJ) SetZero() {
	g.inner = babyjub.NewPoint()
}

// SetGenerator sets the point to Base8.
func (g *BJJ) SetGenerator() {
	g.SetPoint(babyjub.B8.X, babyjub.B8.Y)
}

// Point returns copies of the x and y coordinates.
func (g *BJJ) Point() (*big.Int, *big.Int) {
	return new(big.Int).Set(g.inner.X), new(big.Int).Set(g.inner.Y)
}

// SetPoint sets the coordinates and returns the receiver.
func (g *BJJ) SetPoint(x, y *big.Int) ecc.Point {
	if g.inner == nil {
		g.inner = babyjub.NewPoint()
	}
	g.inner.X = new(big.Int).Set(x)
	g.inner.Y = new(big.Int).Set(y)
	return g
}

// BigInts returns the coordinates as a two element slice.
func (g *BJJ) BigInts() []*big.Int {
	x, y := g.Point()
	return []*big.Int{x, y}
}

// Iden3 returns a copy of the point as an iden3 point.
func (g *BJJ) Iden3() *babyjub.Point {
	x, y := g.Point()
	return &babyjub.Point{X: x, Y: y}
}

// IsEmpty reports whether both coordinates are zero.
func (g *BJJ) IsEmpty() bool {
	return g.inner.X.Sign() == 0 && g.inner.Y.Sign() == 0
}

// InCurve reports whether the point satisfies the curve equation.
func (g *BJJ) InCurve() bool {
	return g.inner.InCurve()
}

// String returns "x,y".
func (g *BJJ) String() string {
	return fmt.Sprintf("%s,%s", g.inner.X.String(), g.inner.Y.String())
}

// Type returns the curve type identifier.
func (*BJJ) Type() string {
	return CurveType
}

// MarshalJSON encodes the point as ["x", "y"].
func (g *BJJ) MarshalJSON() ([]byte, error) {
	return json.Marshal(types.BigInts(g.BigInts()))
}

// UnmarshalJSON decodes the point from ["x", "y"].
func (g *BJJ) UnmarshalJSON(buf []byte) error {
	var coords []*types.BigInt
	if err := json.Unmarshal(buf, &coords); err != nil {
		return err
	}
	return g.setCoords(coords)
}

// MarshalCBOR encodes the point as a two element array of decimal strings.
func (g *BJJ) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(types.BigInts(g.BigInts()))
}

// UnmarshalCBOR decodes the point from a two element array.
func (g *BJJ) UnmarshalCBOR(buf []byte) error {
	var coords []*types.BigInt
	if err := cbor.Unmarshal(buf, &coords); err != nil {
		return err
	}
	return g.setCoords(coords)
}

func (g *BJJ) setCoords(coords []*types.BigInt) error {
	if len(coords) != 2 || coords[0] == nil || coords[1] == nil {
		return fmt.Errorf("expected 2 coordinates, got %d", len(coords))
	}
	g.SetPoint(coords[0].MathBigInt(), coords[1].MathBigInt())
	return nil
}

func toBJJ(p ecc.Point) *BJJ {
	b, ok := p.(*BJJ)
	if !ok {
		panic(fmt.Sprintf("bjj: unsupported point type %T", p))
	}
	return b
}
