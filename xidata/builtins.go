package xidata

import (
	"math"
	"math/big"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/isolate"
)

// KindInfo describes a builtin shareable kind.
type KindInfo struct {
	// WIT is the closest WIT type, used for display and literal parsing.
	WIT  wit.Type
	Type Type
	Name string
}

var unitType = &wit.TypeDef{Kind: &wit.Tuple{}}

var byteList = &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}

func (m *Manager) registerBuiltins() {
	builtins := []struct {
		info KindInfo
		fn   Producer
	}{
		{KindInfo{Name: "none", Type: NilType, WIT: unitType}, produceNil},
		{KindInfo{Name: "bool", Type: TypeFor[bool](), WIT: wit.Bool{}}, produceBool},
		{KindInfo{Name: "int", Type: TypeFor[int](), WIT: wit.S64{}}, produceInt},
		{KindInfo{Name: "int64", Type: TypeFor[int64](), WIT: wit.S64{}}, produceInt64},
		{KindInfo{Name: "bigint", Type: TypeFor[*big.Int](), WIT: wit.S64{}}, produceBigInt},
		{KindInfo{Name: "float", Type: TypeFor[float64](), WIT: wit.F64{}}, produceFloat},
		{KindInfo{Name: "bytes", Type: TypeFor[[]byte](), WIT: byteList}, produceBytes},
		{KindInfo{Name: "string", Type: TypeFor[string](), WIT: wit.String{}}, produceString},
	}
	for _, b := range builtins {
		// Builtin types are static and distinct, so add cannot fail.
		_ = m.global.add(b.info.Type, b.fn)
		m.kinds = append(m.kinds, b.info)
	}
}

func released() error {
	return errors.InvalidHandle(errors.PhaseReconstruct, "payload already released")
}

// none

func produceNil(th *isolate.Thread, _ any, h *Handle) error {
	h.Init(th, nil, nil, newNil)
	return nil
}

func newNil(*Handle) (any, error) {
	return nil, nil
}

// bool

func produceBool(th *isolate.Thread, v any, h *Handle) error {
	h.Init(th, v.(bool), nil, newBool)
	return nil
}

func newBool(h *Handle) (any, error) {
	b, ok := h.Data.(bool)
	if !ok {
		return nil, released()
	}
	return b, nil
}

// integers are pointer-width and travel inline.

func produceInt(th *isolate.Thread, v any, h *Handle) error {
	h.Init(th, int64(v.(int)), nil, newInt)
	return nil
}

func newInt(h *Handle) (any, error) {
	n, ok := h.Data.(int64)
	if !ok {
		return nil, released()
	}
	return int(n), nil
}

func produceInt64(th *isolate.Thread, v any, h *Handle) error {
	h.Init(th, v.(int64), nil, newInt64)
	return nil
}

func newInt64(h *Handle) (any, error) {
	n, ok := h.Data.(int64)
	if !ok {
		return nil, released()
	}
	return n, nil
}

func produceBigInt(th *isolate.Thread, v any, h *Handle) error {
	n := v.(*big.Int)
	if n == nil {
		return errors.InvalidInput(errors.PhaseProduce, "nil *big.Int")
	}
	if !n.IsInt64() {
		return errors.Overflow(errors.PhaseProduce, v, "integer does not fit in 64 bits; try sending as bytes")
	}
	h.Init(th, n.Int64(), nil, newBigInt)
	return nil
}

func newBigInt(h *Handle) (any, error) {
	n, ok := h.Data.(int64)
	if !ok {
		return nil, released()
	}
	return big.NewInt(n), nil
}

// float

func produceFloat(th *isolate.Thread, v any, h *Handle) error {
	block, err := h.InitWithSize(th, 8, nil, newFloat)
	if err != nil {
		return err
	}
	return block.Heap().WriteU64(block.Ptr, math.Float64bits(v.(float64)))
}

func newFloat(h *Handle) (any, error) {
	block, ok := h.Block()
	if !ok {
		return nil, released()
	}
	bits, err := block.Heap().ReadU64(block.Ptr)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseReconstruct, errors.KindOther, err, "read float payload")
	}
	return math.Float64frombits(bits), nil
}

// byte and text buffers are copied into the owner's heap. The block
// size carries the length; empty buffers travel inline.

func produceBytes(th *isolate.Thread, v any, h *Handle) error {
	return produceBuffer(th, v.([]byte), h, newBytes)
}

func newBytes(h *Handle) (any, error) {
	return readBuffer(h)
}

func produceString(th *isolate.Thread, v any, h *Handle) error {
	s := v.(string)
	return produceBuffer(th, []byte(s), h, newString)
}

func newString(h *Handle) (any, error) {
	b, err := readBuffer(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type emptyBuffer struct{}

func produceBuffer(th *isolate.Thread, data []byte, h *Handle, newObject NewObjectFunc) error {
	if len(data) == 0 {
		h.Init(th, emptyBuffer{}, nil, newObject)
		return nil
	}
	if uint64(len(data)) > math.MaxUint32 {
		return errors.Overflow(errors.PhaseProduce, nil, "buffer exceeds 4GiB")
	}
	block, err := h.InitWithSize(th, uint32(len(data)), nil, newObject)
	if err != nil {
		return err
	}
	return block.Write(data)
}

func readBuffer(h *Handle) ([]byte, error) {
	switch h.Data.(type) {
	case emptyBuffer:
		return []byte{}, nil
	case nil:
		return nil, released()
	default:
		block, ok := h.Block()
		if !ok {
			return nil, errors.InvalidHandle(errors.PhaseReconstruct, "unexpected payload type")
		}
		b, err := block.Bytes()
		if err != nil {
			return nil, errors.Wrap(errors.PhaseReconstruct, errors.KindOther, err, "read buffer payload")
		}
		return b, nil
	}
}
