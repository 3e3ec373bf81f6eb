package core

import (
	"errors"
	"fmt"
)

// ErrInvalidSpin reports an encoded byte that is neither -1 nor +1.
var ErrInvalidSpin = errors.New("core: invalid spin value")

// EncodeSpins writes one byte per spin into dst, which must be at least
// len(src) long.
func EncodeSpins(dst []byte, src []Spin) {
	for i, s := range src {
		dst[i] = byte(s)
	}
}

// DecodeSpins reads one byte per spin from src into dst and rejects values
// outside {-1, +1}.
func DecodeSpins(dst []Spin, src []byte) error {
	if len(src) != len(dst) {
		return fmt.Errorf("core: decode %d bytes into %d cells", len(src), len(dst))
	}
	for i, b := range src {
		s := Spin(int8(b))
		if !s.Valid() {
			return fmt.Errorf("%w: %d at cell %d", ErrInvalidSpin, s, i)
		}
		dst[i] = s
	}
	return nil
}
