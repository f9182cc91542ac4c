// Package stats is the statistics oracle (C2): it reads the input image
// once, before lowering begins, and memoises the whole-image and
// per-channel moments that statistic-referencing AST nodes fold to.
package stats

import (
	"math"

	"pixc/internal/cerr"
	"pixc/internal/image"
)

// Oracle answers compile-time statistic queries against one input
// image. All fields are computed eagerly in New, matching spec.md
// §4.2's "eagerly computes and memoises" requirement.
type Oracle struct {
	total      moments
	perChan    []moments
	covariance [][]float64
	channels   int
}

type moments struct {
	sum, min, max            float64
	mean, variance, stddev   float64
	skew, kurtosis           float64
}

// New reads img once and computes every moment this package can answer.
func New(img *image.Buffer) *Oracle {
	o := &Oracle{channels: img.Channels}
	o.total = computeMoments(allSamples(img))

	perChanSamples := make([][]float64, img.Channels)
	o.perChan = make([]moments, img.Channels)
	for c := 0; c < img.Channels; c++ {
		perChanSamples[c] = channelSamples(img, c)
		o.perChan[c] = computeMoments(perChanSamples[c])
	}

	o.covariance = make([][]float64, img.Channels)
	for u := range o.covariance {
		o.covariance[u] = make([]float64, img.Channels)
		for v := range o.covariance[u] {
			o.covariance[u][v] = covarianceOf(perChanSamples[u], o.perChan[u].mean, perChanSamples[v], o.perChan[v].mean)
		}
	}
	return o
}

func covarianceOf(a []float64, meanA float64, b []float64, meanB float64) float64 {
	n := float64(len(a))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		sum += (a[i] - meanA) * (b[i] - meanB)
	}
	return sum / n
}

func allSamples(img *image.Buffer) []float64 {
	out := make([]float64, 0, len(img.Data))
	for _, v := range img.Data {
		out = append(out, float64(v))
	}
	return out
}

func channelSamples(img *image.Buffer, c int) []float64 {
	out := make([]float64, 0, img.Width*img.Height*img.Frames)
	for t := 0; t < img.Frames; t++ {
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				out = append(out, float64(img.At(x, y, t, c)))
			}
		}
	}
	return out
}

func computeMoments(samples []float64) moments {
	n := float64(len(samples))
	m := moments{min: math.Inf(1), max: math.Inf(-1)}
	for _, v := range samples {
		m.sum += v
		m.min = math.Min(m.min, v)
		m.max = math.Max(m.max, v)
	}
	if n == 0 {
		return m
	}
	m.mean = m.sum / n

	var m2, m3, m4 float64
	for _, v := range samples {
		d := v - m.mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m.variance = m2 / n
	m.stddev = math.Sqrt(m.variance)
	if m.stddev > 0 {
		m.skew = (m3 / n) / (m.stddev * m.stddev * m.stddev)
		m.kurtosis = (m4/n)/(m.variance*m.variance) - 3
	}
	return m
}

// Query resolves a Funct0/Funct1 statistic name (mean, sum, min, max,
// variance, stddev, skew, kurtosis) against either the whole image
// (channel == nil) or a single channel.
func (o *Oracle) Query(name string, channel *int) (float64, error) {
	m := o.total
	if channel != nil {
		if *channel < 0 || *channel >= o.channels {
			return 0, cerr.New(cerr.TypeError, "channel index %d out of range [0,%d)", *channel, o.channels)
		}
		m = o.perChan[*channel]
	}
	switch name {
	case "mean":
		return m.mean, nil
	case "sum":
		return m.sum, nil
	case "min":
		return m.min, nil
	case "max":
		return m.max, nil
	case "variance":
		return m.variance, nil
	case "stddev":
		return m.stddev, nil
	case "skew":
		return m.skew, nil
	case "kurtosis":
		return m.kurtosis, nil
	default:
		return 0, cerr.New(cerr.TypeError, "unknown statistic %q", name)
	}
}

// Covariance implements the two-channel covariance(u, v) supplemented
// feature: the covariance between channel u's and channel v's pixel
// value sequences across the whole image.
func (o *Oracle) Covariance(u, v int) (float64, error) {
	if u < 0 || u >= o.channels || v < 0 || v >= o.channels {
		return 0, cerr.New(cerr.TypeError, "covariance channel index out of range [0,%d)", o.channels)
	}
	return o.covariance[u][v], nil
}
