package image

import "testing"

func TestNewBufferUsesChannelFastestLayout(t *testing.T) {
	b := NewBuffer(4, 3, 2, 3)
	if b.CStride != 1 || b.XStride != 3 || b.YStride != 12 || b.TStride != 36 {
		t.Fatalf("unexpected strides: %+v", b)
	}
	if len(b.Data) != 4*3*2*3 {
		t.Fatalf("data length = %d, want %d", len(b.Data), 4*3*2*3)
	}
}

func TestSetThenAtRoundTrips(t *testing.T) {
	b := NewBuffer(4, 4, 1, 3)
	b.Set(2, 1, 0, 2, 7.5)
	if got := b.At(2, 1, 0, 2); got != 7.5 {
		t.Fatalf("At = %v, want 7.5", got)
	}
}

func TestAtClampsOutOfRangeCoordinates(t *testing.T) {
	b := NewBuffer(4, 4, 1, 3)
	b.Set(0, 0, 0, 0, 1)
	b.Set(3, 3, 0, 0, 2)
	if got := b.At(-5, -5, -5, -5); got != 1 {
		t.Fatalf("At with negative coords = %v, want clamp to (0,0,0,0)=1", got)
	}
	if got := b.At(99, 99, 99, 0); got != 2 {
		t.Fatalf("At with overflowing coords = %v, want clamp to (3,3,0,0)=2", got)
	}
}

func TestCheckShapeRejectsNonMultipleOfFourWidth(t *testing.T) {
	if err := CheckShape(NewBuffer(5, 4, 1, 3)); err == nil {
		t.Fatalf("expected a ShapeError for width=5")
	}
}

func TestCheckShapeRejectsWrongChannelCount(t *testing.T) {
	if err := CheckShape(NewBuffer(4, 4, 1, 4)); err == nil {
		t.Fatalf("expected a ShapeError for channels=4")
	}
}

func TestCheckShapeAcceptsValidBuffer(t *testing.T) {
	if err := CheckShape(NewBuffer(8, 4, 2, 3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
