package excinfo

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/isolate"
	"github.com/wippyai/isolates/xidata"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("excinfo: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Register makes *Snapshot and *Info shareable through mgr. Both travel
// as CBOR in the producing isolate's heap.
func Register(th *isolate.Thread, mgr *xidata.Manager) error {
	if err := mgr.Register(th, xidata.TypeFor[*Snapshot](), produceSnapshot); err != nil {
		return err
	}
	return mgr.Register(th, xidata.TypeFor[*Info](), produceInfo)
}

func produceSnapshot(th *isolate.Thread, v any, h *xidata.Handle) error {
	return produceCBOR(th, v, h, func(h *xidata.Handle) (any, error) {
		var s Snapshot
		if err := decodeCBOR(h, &s); err != nil {
			return nil, err
		}
		return &s, nil
	})
}

func produceInfo(th *isolate.Thread, v any, h *xidata.Handle) error {
	return produceCBOR(th, v, h, func(h *xidata.Handle) (any, error) {
		var i Info
		if err := decodeCBOR(h, &i); err != nil {
			return nil, err
		}
		return &i, nil
	})
}

func produceCBOR(th *isolate.Thread, v any, h *xidata.Handle, newObject xidata.NewObjectFunc) error {
	data, err := encMode.Marshal(v)
	if err != nil {
		return errors.Wrap(errors.PhaseProduce, errors.KindInvalidInput, err, "encode failure info")
	}
	block, err := h.InitWithSize(th, uint32(len(data)), nil, newObject)
	if err != nil {
		return err
	}
	return block.Write(data)
}

func decodeCBOR(h *xidata.Handle, v any) error {
	block, ok := h.Block()
	if !ok {
		return errors.InvalidHandle(errors.PhaseReconstruct, "payload already released")
	}
	data, err := block.Bytes()
	if err != nil {
		return errors.Wrap(errors.PhaseReconstruct, errors.KindOther, err, "read failure info")
	}
	if err := cbor.Unmarshal(data, v); err != nil {
		return errors.Wrap(errors.PhaseReconstruct, errors.KindOther, err, "decode failure info")
	}
	return nil
}
