package audio

import (
	"encoding/binary"
	"math"
)

// FloatsToInt16 converts float samples in [-1, 1] to int16, clipping out-of-range
// values. dst is reused when large enough.
func FloatsToInt16(dst []int16, src []float32) []int16 {
	if cap(dst) < len(src) {
		dst = make([]int16, len(src))
	}
	dst = dst[:len(src)]
	for i, s := range src {
		v := s * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		dst[i] = int16(v)
	}
	return dst
}

// PutFloat32LE writes src into dst as little-endian float32 and returns the
// number of bytes written.
func PutFloat32LE(dst []byte, src []float32) int {
	n := 0
	for _, s := range src {
		if n+4 > len(dst) {
			break
		}
		binary.LittleEndian.PutUint32(dst[n:], math.Float32bits(s))
		n += 4
	}
	return n
}
