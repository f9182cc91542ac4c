//go:build unix && amd64

package compiler

import (
	"math"
	"testing"

	"pixc/internal/codegen"
	"pixc/internal/image"
	"pixc/internal/jitexec"
	"pixc/internal/regalloc"
	"pixc/internal/stats"
)

// compileRaw runs the full C1-C7 pipeline and returns the routine's
// raw machine code, bypassing asmx64.WriteObject's ELF wrapping so the
// bytes can be mapped executable and called directly.
func compileRaw(t *testing.T, src string, img *image.Buffer) []byte {
	t.Helper()
	a, roots, err := LowerEval(src, img)
	if err != nil {
		t.Fatalf("lower %q: %v", src, err)
	}
	al := regalloc.New(a)
	sched, err := al.Allocate(roots)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	code, err := codegen.Emit(a, img, sched, roots)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	return code
}

// scenarioImage builds spec.md §8's end-to-end fixture: a 4x2x1x3
// image where input(x,y,t,c) = 10x + y + 0.1c.
func scenarioImage(t *testing.T) *image.Buffer {
	t.Helper()
	img := image.NewBuffer(4, 2, 1, 3)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			for c := 0; c < img.Channels; c++ {
				img.Set(x, y, 0, c, float32(10*x+y)+0.1*float32(c))
			}
		}
	}
	return img
}

func runScenario(t *testing.T, src string, img *image.Buffer) *image.Buffer {
	t.Helper()
	code := compileRaw(t, src, img)
	out := image.NewBuffer(img.Width, img.Height, img.Frames, img.Channels)
	if err := jitexec.Run(code, img.Data, out.Data); err != nil {
		t.Fatalf("jitexec.Run: %v", err)
	}
	return out
}

const tolerance = 1e-5

func assertClose(t *testing.T, x, y, t2, c int, got, want float32) {
	t.Helper()
	if math.Abs(float64(got)-float64(want)) > tolerance {
		t.Fatalf("(%d,%d,%d,%d) = %v, want %v", x, y, t2, c, got, want)
	}
}

// TestExecXPlusOne is spec.md §8 end-to-end scenario 1.
func TestExecXPlusOne(t *testing.T) {
	img := scenarioImage(t)
	out := runScenario(t, "x + 1", img)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			for c := 0; c < img.Channels; c++ {
				assertClose(t, x, y, 0, c, out.At(x, y, 0, c), float32(x+1))
			}
		}
	}
}

// TestExecValTimesTwo is spec.md §8 end-to-end scenario 2.
func TestExecValTimesTwo(t *testing.T) {
	img := scenarioImage(t)
	out := runScenario(t, "val * 2", img)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			for c := 0; c < img.Channels; c++ {
				assertClose(t, x, y, 0, c, out.At(x, y, 0, c), img.At(x, y, 0, c)*2)
			}
		}
	}
}

// TestExecTernary is spec.md §8 end-to-end scenario 3.
func TestExecTernary(t *testing.T) {
	img := scenarioImage(t)
	out := runScenario(t, "(x > 1) ? 1 : 0", img)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			want := float32(0)
			if x > 1 {
				want = 1
			}
			for c := 0; c < img.Channels; c++ {
				assertClose(t, x, y, 0, c, out.At(x, y, 0, c), want)
			}
		}
	}
}

// TestExecMean is spec.md §8 end-to-end scenario 5: every output
// element equals the precomputed whole-image mean, bit-identical
// across pixels.
func TestExecMean(t *testing.T) {
	img := scenarioImage(t)
	oracle := stats.New(img)
	want, err := oracle.Query("mean", nil)
	if err != nil {
		t.Fatalf("query mean: %v", err)
	}
	out := runScenario(t, "mean()", img)
	var first float32
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			for c := 0; c < img.Channels; c++ {
				got := out.At(x, y, 0, c)
				assertClose(t, x, y, 0, c, got, float32(want))
				if x == 0 && y == 0 && c == 0 {
					first = got
				}
				if got != first {
					t.Fatalf("mean() output not bit-identical across pixels: (%d,%d,0,%d)=%v, want %v", x, y, c, got, first)
				}
			}
		}
	}
}
