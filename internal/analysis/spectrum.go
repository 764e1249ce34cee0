package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// Spectrum returns the one-sided amplitude spectrum of data sampled every
// dt seconds, with the mean removed. freqs are in Hz.
func Spectrum(data []float64, dt float64) (freqs, amps []float64) {
	n := len(data)
	if n < 2 || dt <= 0 {
		return nil, nil
	}
	mean := stat.Mean(data, nil)
	seq := make([]float64, n)
	for i, v := range data {
		seq[i] = v - mean
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, seq)
	freqs = make([]float64, len(coeff))
	amps = make([]float64, len(coeff))
	for i, c := range coeff {
		freqs[i] = fft.Freq(i) / dt
		amps[i] = 2 * cmplx.Abs(c) / float64(n)
	}
	return freqs, amps
}

// DominantFrequency returns the frequency of the largest non-DC bin, 0 for
// a flat trace.
func DominantFrequency(data []float64, dt float64) float64 {
	freqs, amps := Spectrum(data, dt)
	best, at := 0.0, 0
	for i := 1; i < len(amps); i++ {
		if amps[i] > best {
			best, at = amps[i], i
		}
	}
	if at == 0 || best < 1e-12 {
		return 0
	}
	return freqs[at]
}

// Mode is an oscillation found in a trace.
type Mode struct {
	Frequency float64 // Hz
	// Damping is the damping ratio from the logarithmic decrement of the
	// swings; NaN with fewer than two swings.
	Damping float64
	Swings  int
}

// DominantMode measures the oscillation of data from its turning points.
// Swings smaller than a thousandth of the trace's range are noise.
func DominantMode(data []float64, dt float64) Mode {
	ext := turningPoints(data, 1e-3)
	if len(ext) < 3 {
		return Mode{Frequency: DominantFrequency(data, dt), Damping: math.NaN(), Swings: max(len(ext)-1, 0)}
	}

	m := len(ext) - 1
	first := math.Abs(data[ext[1]] - data[ext[0]])
	last := math.Abs(data[ext[m]] - data[ext[m-1]])
	halfPeriods := float64(m - 1)

	// decrement per full period
	delta := 2 * math.Log(first/last) / halfPeriods
	return Mode{
		Frequency: float64(m) / (2 * float64(ext[m]-ext[0]) * dt),
		Damping:   delta / math.Sqrt(4*math.Pi*math.Pi+delta*delta),
		Swings:    m,
	}
}

// turningPoints returns the indices of the confirmed local extrema of data,
// ignoring reversals smaller than frac of its range. The first sample is
// never a turning point.
func turningPoints(data []float64, frac float64) []int {
	if len(data) < 3 {
		return nil
	}
	lo, hi := data[0], data[0]
	for _, v := range data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	th := frac * (hi - lo)
	if th == 0 {
		return nil
	}

	var out []int
	dir, cand := 0, 0
	for i, v := range data {
		switch dir {
		case 0:
			if v-data[0] > th {
				dir, cand = 1, i
			} else if data[0]-v > th {
				dir, cand = -1, i
			}
		case 1:
			if v > data[cand] {
				cand = i
			} else if data[cand]-v > th {
				out = append(out, cand)
				dir, cand = -1, i
			}
		case -1:
			if v < data[cand] {
				cand = i
			} else if v-data[cand] > th {
				out = append(out, cand)
				dir, cand = 1, i
			}
		}
	}
	return out
}
