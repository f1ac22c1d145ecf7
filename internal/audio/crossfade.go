package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// fadeOutCurve precomputes a smoothstep fade from 1 to 0 over n frames. Voices
// use it to release a hit that a retrigger cuts off, so the cut does not click.
func fadeOutCurve(n int) []float32 {
	curve := make([]float32, n)
	for i := range curve {
		curve[i] = float32(1 - Smoothstep(float64(i+1)/float64(n)))
	}
	return curve
}
