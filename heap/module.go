package heap

// memoryModule encodes a wasm binary whose only content is an exported
// linear memory named "memory".
func memoryModule(minPages, maxPages uint32) []byte {
	limits := []byte{0x01}
	limits = appendULEB(limits, minPages)
	limits = appendULEB(limits, maxPages)

	memSec := append([]byte{0x01}, limits...) // one memory

	name := "memory"
	exportSec := []byte{0x01} // one export
	exportSec = appendULEB(exportSec, uint32(len(name)))
	exportSec = append(exportSec, name...)
	exportSec = append(exportSec, 0x02, 0x00) // memory index 0

	bin := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	bin = append(bin, 0x05)
	bin = appendULEB(bin, uint32(len(memSec)))
	bin = append(bin, memSec...)
	bin = append(bin, 0x07)
	bin = appendULEB(bin, uint32(len(exportSec)))
	bin = append(bin, exportSec...)
	return bin
}

func appendULEB(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b = append(b, c|0x80)
			continue
		}
		return append(b, c)
	}
}
