package dsp

import (
	"math"
	"sync/atomic"

	"github.com/viterin/vek/vek32"
)

// SoftClip is the saturation transfer curve applied after the drive gain.
func SoftClip(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

func softClipBlock(buf []float32) {
	for i, s := range buf {
		buf[i] = SoftClip(s)
	}
}

func gainBlock(buf []float32, g float32) {
	if g == 1 {
		return
	}
	vek32.MulNumber_Inplace(buf, g)
}

func dbToLinear(db float64) float64 { return math.Pow(10, db/20) }

func linearToDB(g float64) float64 {
	if g <= 1e-12 {
		return -240
	}
	return 20 * math.Log10(g)
}

// timeCoeff returns the one-pole smoothing coefficient for a time constant.
func timeCoeff(ms float64, sampleRate int) float64 {
	if ms <= 0 {
		return 0
	}
	return math.Exp(-1 / (ms / 1000 * float64(sampleRate)))
}

// CompressorParams describes a feed-forward peak compressor.
type CompressorParams struct {
	ThresholdDB float64
	Ratio       float64
	AttackMs    float64
	ReleaseMs   float64
}

// Compressor is a stereo-linked compressor. Gain reduction is computed in the
// dB domain and smoothed with separate attack and release constants.
type Compressor struct {
	params  CompressorParams
	attack  float64
	release float64
	envDB   float64 // current gain reduction, <= 0; render goroutine only

	reduction atomic.Uint64 // envDB bits at the end of the last block
}

// NewCompressor creates a compressor for the given sample rate.
func NewCompressor(p CompressorParams, sampleRate int) *Compressor {
	return &Compressor{
		params:  p,
		attack:  timeCoeff(p.AttackMs, sampleRate),
		release: timeCoeff(p.ReleaseMs, sampleRate),
	}
}

// Params returns the fixed settings.
func (c *Compressor) Params() CompressorParams { return c.params }

// Reduction returns the gain reduction in dB (<= 0) at the end of the last
// processed block. It is safe to call from any goroutine.
func (c *Compressor) Reduction() float64 {
	return math.Float64frombits(c.reduction.Load())
}

// Process compresses an interleaved stereo block in place.
func (c *Compressor) Process(buf []float32) {
	for i := 0; i+1 < len(buf); i += 2 {
		peak := math.Max(math.Abs(float64(buf[i])), math.Abs(float64(buf[i+1])))
		level := linearToDB(peak)
		target := 0.0
		if over := level - c.params.ThresholdDB; over > 0 {
			target = -over * (1 - 1/c.params.Ratio)
		}
		coeff := c.release
		if target < c.envDB {
			coeff = c.attack
		}
		c.envDB = target + (c.envDB-target)*coeff
		g := float32(dbToLinear(c.envDB))
		buf[i] *= g
		buf[i+1] *= g
	}
	c.reduction.Store(math.Float64bits(c.envDB))
}

// Limiter is a brick-wall peak limiter: no output sample exceeds the ceiling.
// Gain drops instantly on overs and recovers with the release constant.
type Limiter struct {
	ceilingDB float64
	ceiling   float64
	release   float64
	gain      float64
}

// NewLimiter creates a limiter with the given ceiling and release time.
func NewLimiter(ceilingDB, releaseMs float64, sampleRate int) *Limiter {
	return &Limiter{
		ceilingDB: ceilingDB,
		ceiling:   dbToLinear(ceilingDB),
		release:   timeCoeff(releaseMs, sampleRate),
		gain:      1,
	}
}

// CeilingDB returns the limiter threshold.
func (l *Limiter) CeilingDB() float64 { return l.ceilingDB }

// Process limits an interleaved stereo block in place.
func (l *Limiter) Process(buf []float32) {
	ceil32 := float32(l.ceiling)
	for i := 0; i+1 < len(buf); i += 2 {
		peak := math.Max(math.Abs(float64(buf[i])), math.Abs(float64(buf[i+1])))
		want := 1.0
		if peak > l.ceiling {
			want = l.ceiling / peak
		}
		if want < l.gain {
			l.gain = want
		} else {
			l.gain = want + (l.gain-want)*l.release
		}
		g := float32(l.gain)
		for c := 0; c < 2; c++ {
			s := buf[i+c] * g
			if s > ceil32 {
				s = ceil32
			} else if s < -ceil32 {
				s = -ceil32
			}
			buf[i+c] = s
		}
	}
}
