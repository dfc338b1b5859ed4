package audio

import "math"

// RMS calculates the root mean square of normalized samples.
// Used as a perceptual loudness proxy for the capture path.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// Level maps an RMS value to a bounded visual loudness in [0, 1].
func Level(rms float64) float64 {
	level := rms * 5
	if level > 1 {
		return 1
	}
	return level
}
