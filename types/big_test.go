package types

import (
	"encoding/json"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/fxamacker/cbor/v2"
)

func TestBigIntJSON(t *testing.T) {
	c := qt.New(t)
	bi := (*BigInt)(big.NewInt(1234567890))
	data, err := json.Marshal(map[string]*BigInt{"bi": bi, "nil": nil})
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, `{"bi":"1234567890","nil":"0"}`)

	var decoded map[string]*BigInt
	c.Assert(json.Unmarshal(data, &decoded), qt.IsNil)
	c.Assert(decoded["bi"].Equal(bi), qt.IsTrue)

	var numeric BigInt
	c.Assert(json.Unmarshal([]byte(`123456789`), &numeric), qt.IsNil)
	c.Assert(numeric.String(), qt.Equals, "123456789")
}

func TestBigIntCBOR(t *testing.T) {
	c := qt.New(t)
	field, _ := new(big.Int).SetString("21888242871839275222246405745257275088548364400416034343698204186575808495616", 10)
	data, err := cbor.Marshal([]*BigInt{FromBig(field), NewInt(0)})
	c.Assert(err, qt.IsNil)

	var decoded []*BigInt
	c.Assert(cbor.Unmarshal(data, &decoded), qt.IsNil)
	c.Assert(decoded, qt.HasLen, 2)
	c.Assert(decoded[0].MathBigInt().Cmp(field), qt.Equals, 0)
	c.Assert(decoded[1].String(), qt.Equals, "0")
}

func TestBigIntConversions(t *testing.T) {
	c := qt.New(t)
	src := [][]*big.Int{{big.NewInt(1), big.NewInt(2)}, {nil}}
	m := BigIntMatrix(src)
	c.Assert(m[0][1].String(), qt.Equals, "2")
	c.Assert(m[1][0].String(), qt.Equals, "0")

	// copies must not alias the source
	m[0][0].MathBigInt().SetInt64(9)
	c.Assert(src[0][0].Int64(), qt.Equals, int64(1))

	back := MathBigInts(m[0])
	c.Assert(back[0].Int64(), qt.Equals, int64(9))
}
