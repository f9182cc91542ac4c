package stats

import (
	"math"
	"testing"

	"pixc/internal/image"
)

func buildImage(t *testing.T, channelValues [][]float32) *image.Buffer {
	t.Helper()
	channels := len(channelValues)
	n := len(channelValues[0])
	img := image.NewBuffer(n, 1, 1, channels)
	for c := 0; c < channels; c++ {
		for x := 0; x < n; x++ {
			img.Set(x, 0, 0, c, channelValues[c][x])
		}
	}
	return img
}

func TestQueryWholeImageMeanAndSum(t *testing.T) {
	img := buildImage(t, [][]float32{{1, 2, 3, 4}, {0, 0, 0, 0}, {0, 0, 0, 0}})
	o := New(img)

	mean, err := o.Query("mean", nil)
	if err != nil {
		t.Fatalf("query mean: %v", err)
	}
	wantMean := (1.0 + 2 + 3 + 4) / 12.0 // whole image includes all 3 channels
	if math.Abs(mean-wantMean) > 1e-9 {
		t.Fatalf("mean = %v, want %v", mean, wantMean)
	}

	sum, err := o.Query("sum", nil)
	if err != nil {
		t.Fatalf("query sum: %v", err)
	}
	if sum != 10 {
		t.Fatalf("sum = %v, want 10", sum)
	}
}

func TestQueryPerChannelStatistics(t *testing.T) {
	img := buildImage(t, [][]float32{{1, 2, 3, 4}, {10, 20, 30, 40}, {0, 0, 0, 0}})
	o := New(img)

	ch0 := 0
	mean0, err := o.Query("mean", &ch0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if mean0 != 2.5 {
		t.Fatalf("channel 0 mean = %v, want 2.5", mean0)
	}

	ch1 := 1
	max1, err := o.Query("max", &ch1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if max1 != 40 {
		t.Fatalf("channel 1 max = %v, want 40", max1)
	}
}

func TestQueryRejectsOutOfRangeChannel(t *testing.T) {
	img := buildImage(t, [][]float32{{1, 2}, {1, 2}, {1, 2}})
	o := New(img)
	bad := 5
	if _, err := o.Query("mean", &bad); err == nil {
		t.Fatalf("expected an error for an out-of-range channel")
	}
}

func TestQueryRejectsUnknownName(t *testing.T) {
	img := buildImage(t, [][]float32{{1}, {1}, {1}})
	o := New(img)
	if _, err := o.Query("median", nil); err == nil {
		t.Fatalf("expected an error for an unknown statistic")
	}
}

func TestCovarianceOfIdenticalChannelsEqualsVariance(t *testing.T) {
	img := buildImage(t, [][]float32{{1, 2, 3, 4}, {1, 2, 3, 4}, {0, 0, 0, 0}})
	o := New(img)

	cov, err := o.Covariance(0, 1)
	if err != nil {
		t.Fatalf("covariance: %v", err)
	}
	ch0 := 0
	variance, _ := o.Query("variance", &ch0)
	if math.Abs(cov-variance) > 1e-9 {
		t.Fatalf("covariance(0,1) = %v, want variance %v (identical channels)", cov, variance)
	}
}

func TestCovarianceOfConstantChannelsIsZero(t *testing.T) {
	img := buildImage(t, [][]float32{{1, 2, 3, 4}, {5, 5, 5, 5}, {0, 0, 0, 0}})
	o := New(img)
	cov, err := o.Covariance(0, 1)
	if err != nil {
		t.Fatalf("covariance: %v", err)
	}
	if cov != 0 {
		t.Fatalf("covariance against a constant channel = %v, want 0", cov)
	}
}

func TestCovarianceRejectsOutOfRangeChannel(t *testing.T) {
	img := buildImage(t, [][]float32{{1}, {1}, {1}})
	o := New(img)
	if _, err := o.Covariance(0, 9); err == nil {
		t.Fatalf("expected an error for an out-of-range channel")
	}
}
