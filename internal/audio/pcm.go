// Package audio bridges raw PCM capture/playback samples and the wire
// encoding used by the upstream speech model: base64 of little-endian
// 16-bit signed PCM.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeChunk converts float32 samples in [-1, 1] to the wire encoding.
// Samples outside the range are clamped. Negative samples scale by 32768
// and non-negative ones by 32767; the decoder divides by 32768 uniformly.
// The asymmetry is the common PCM convention the upstream model expects,
// so it is preserved here rather than unified.
func EncodeChunk(samples []float32) string {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		var n int16
		if v < 0 {
			n = int16(v * 32768)
		} else {
			n = int16(v * 32767)
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(n))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeChunk is the inverse of EncodeChunk.
func DecodeChunk(encoded string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio payload: %w", err)
	}
	if len(buf)%2 != 0 {
		return nil, fmt.Errorf("audio payload has odd length %d, want 16-bit frames", len(buf))
	}

	samples := make([]float32, len(buf)/2)
	for i := range samples {
		n := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		samples[i] = float32(float64(n) / 32768.0)
	}
	return samples, nil
}

// RMS returns the root-mean-square amplitude of a frame. Used by the
// speech detector.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
