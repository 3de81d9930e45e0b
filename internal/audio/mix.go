package audio

import (
	"encoding/binary"
	"math"
)

// mixLinear blends incoming samples into out in place:
// out[i] = out[i]*(1-t) + in[i]*t. t is constant across the slice; the
// caller advances it frame by frame, which is inaudible at output frame
// sizes.
func mixLinear(out, in []float32, t float32) {
	n := len(out)
	if len(in) < n {
		n = len(in)
	}
	for i := 0; i < n; i++ {
		out[i] = out[i]*(1-t) + in[i]*t
	}
}

// bytesToFloat32 decodes packed little-endian float32 samples, reusing dst
// when it has capacity.
func bytesToFloat32(b []byte, dst []float32) []float32 {
	n := len(b) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return dst
}

// float32ToBytes is the inverse of bytesToFloat32.
func float32ToBytes(src []float32, b []byte) []byte {
	n := len(src) * 4
	if cap(b) < n {
		b = make([]byte, n)
	}
	b = b[:n]
	for i, v := range src {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}
