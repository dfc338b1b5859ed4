package audio

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Fixed wire formats: mono 16-bit signed little-endian PCM, base64-encoded
// for transport. Capture and playback rates are not negotiated.
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000
)

// DecodedAudio is a mono buffer of normalized floating-point samples at a
// fixed sample rate. Produced once by decoding; safe to cache and reuse.
type DecodedAudio struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the playback duration of the buffer.
func (d *DecodedAudio) Duration() time.Duration {
	if d.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(d.Samples)) / float64(d.SampleRate) * float64(time.Second))
}

// Encode converts normalized samples to base64-encoded PCM16.
// Samples outside [-1, 1] are clamped before scaling so they cannot
// overflow the 16-bit representation.
func Encode(samples []float64) string {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}

		var v int16
		if s >= 0 {
			v = int16(s * 32767)
		} else {
			v = int16(s * 32768)
		}

		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode converts base64-encoded PCM16 back to normalized samples.
// Callers must supply well-formed input: a trailing odd byte is ignored
// rather than rejected, since it cannot be distinguished from transport
// truncation at this layer.
func Decode(encoded string, sampleRate int) (*DecodedAudio, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}

	n := len(raw) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(raw[i*2]) | int16(raw[i*2+1])<<8
		samples[i] = float64(v) / 32768.0
	}

	return &DecodedAudio{Samples: samples, SampleRate: sampleRate}, nil
}
