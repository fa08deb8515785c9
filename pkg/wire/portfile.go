package wire

import (
	"encoding/binary"
	"fmt"
	"os"
)

// KeyKind tags what follows the port in a port file.
type KeyKind uint8

const (
	KeyNone    KeyKind = 0
	KeyAuth    KeyKind = 1
	KeyAES     KeyKind = 2
)

// EncodePortFile lays out [port u16 LE][key-kind u8][key bytes].
func EncodePortFile(port uint16, kind KeyKind, key []byte) []byte {
	buf := make([]byte, 3+len(key))
	binary.LittleEndian.PutUint16(buf[0:2], port)
	buf[2] = byte(kind)
	copy(buf[3:], key)
	return buf
}

// PortFile is a decoded port-file payload.
type PortFile struct {
	Port uint16
	Kind KeyKind
	Key  []byte
}

// DecodePortFile parses a port-file payload produced by EncodePortFile.
func DecodePortFile(data []byte) (PortFile, error) {
	if len(data) < 3 {
		return PortFile{}, fmt.Errorf("wire: port file too short (%d bytes)", len(data))
	}
	pf := PortFile{
		Port: binary.LittleEndian.Uint16(data[0:2]),
		Kind: KeyKind(data[2]),
	}
	if len(data) > 3 {
		pf.Key = append([]byte(nil), data[3:]...)
	}
	return pf, nil
}

// WritePortFile writes the encoded payload to path, creating or
// truncating it with owner-only permissions since the payload may
// carry an AES key.
func WritePortFile(path string, port uint16, kind KeyKind, key []byte) error {
	return os.WriteFile(path, EncodePortFile(port, kind, key), 0o600)
}

// ReadPortFile reads and decodes the port file at path.
func ReadPortFile(path string) (PortFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PortFile{}, err
	}
	return DecodePortFile(data)
}
