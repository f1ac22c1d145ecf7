package sequencer

import "time"

// MaxSwing is the largest delay applied to an odd sixteenth, as a fraction of
// one step, at 100% swing.
const MaxSwing = 0.5

// StepFrames returns the length of one sixteenth note in frames.
func StepFrames(bpm float64, sampleRate int) float64 {
	if bpm <= 0 {
		return 0
	}
	return float64(sampleRate) * 60 / bpm / 4
}

// StepDuration returns the length of one sixteenth note.
func StepDuration(bpm float64) time.Duration {
	if bpm <= 0 {
		return 0
	}
	return time.Duration(float64(time.Minute) / bpm / 4)
}

// SwingOffset returns how many frames an odd sixteenth is delayed by.
func SwingOffset(swingPercent, stepFrames float64) float64 {
	if swingPercent <= 0 {
		return 0
	}
	if swingPercent > 100 {
		swingPercent = 100
	}
	return swingPercent / 100 * MaxSwing * stepFrames
}
