package delayline

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestNewRoundsCapacityUpToPowerOfTwo(t *testing.T) {
	d, err := New(100)
	if err != nil {
		t.Fatalf("New(100): %v", err)
	}
	if d.Capacity() != 128 {
		t.Errorf("capacity: want 128, got %d", d.Capacity())
	}
}

func TestNewExactPowerOfTwoUnchanged(t *testing.T) {
	d, err := New(512)
	if err != nil {
		t.Fatalf("New(512): %v", err)
	}
	if d.Capacity() != 512 {
		t.Errorf("capacity: want 512, got %d", d.Capacity())
	}
}

func TestNewZeroCapacityErrors(t *testing.T) {
	if _, err := New(0); !errors.Is(err, ErrZeroCapacity) {
		t.Fatalf("New(0): want ErrZeroCapacity, got %v", err)
	}
}

func TestReadMostRecent(t *testing.T) {
	d, _ := New(8)
	d.WriteBlock([]float32{1, 2, 3})
	v, err := d.Read(0)
	if err != nil {
		t.Fatalf("Read(0): %v", err)
	}
	if v != 3 {
		t.Errorf("Read(0): want 3 (most recent), got %v", v)
	}
	v, _ = d.Read(2)
	if v != 1 {
		t.Errorf("Read(2): want 1, got %v", v)
	}
}

func TestReadOutOfRange(t *testing.T) {
	d, _ := New(8)
	if _, err := d.Read(8); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Read(8) on capacity-8 ring: want ErrOutOfRange, got %v", err)
	}
}

func TestReadClampedClampsInsteadOfErroring(t *testing.T) {
	d, _ := New(8)
	d.WriteBlock([]float32{1, 2, 3, 4, 5, 6, 7, 8})
	v, clamped := d.ReadClamped(100)
	if !clamped {
		t.Error("expected clamped=true for out-of-range offset")
	}
	want, _ := d.Read(7) // capacity-1
	if v != want {
		t.Errorf("clamped read: want %v, got %v", want, v)
	}
}

// TestRoundTripTimeReversed verifies property 6: write_block then
// read_block at offset 0 returns the input in time-reversed order.
func TestRoundTripTimeReversed(t *testing.T) {
	d, _ := New(16)
	in := []float32{10, 20, 30, 40}
	d.WriteBlock(in)

	dst := make([]float32, len(in))
	if err := d.ReadBlock(dst, 0); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	want := []float32{40, 30, 20, 10}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("dst[%d]: want %v, got %v", i, want[i], dst[i])
		}
	}
}

// TestRoundTripAtOffset verifies that ReadBlock at offset k returns
// samples written k..k+N-1 samples ago.
func TestRoundTripAtOffset(t *testing.T) {
	d, _ := New(16)
	d.WriteBlock([]float32{1, 2, 3, 4, 5, 6})

	dst := make([]float32, 3)
	if err := d.ReadBlock(dst, 1); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	// Most recent sample (offset 0) is 6, so offset 1..3 ago is 5,4,3.
	want := []float32{5, 4, 3}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("dst[%d]: want %v, got %v", i, want[i], dst[i])
		}
	}
}

func TestClearResetsRingAndIndex(t *testing.T) {
	d, _ := New(8)
	d.WriteBlock([]float32{1, 2, 3, 4})
	d.Clear()
	v, _ := d.Read(0)
	if v != 0 {
		t.Errorf("after Clear, Read(0): want 0, got %v", v)
	}
	// Writing again should behave as if fresh.
	d.Write(9)
	v, _ = d.Read(0)
	if v != 9 {
		t.Errorf("after Clear+Write, Read(0): want 9, got %v", v)
	}
}

func TestWrapsAroundCapacity(t *testing.T) {
	d, _ := New(4)
	d.WriteBlock([]float32{1, 2, 3, 4, 5, 6})
	// Ring holds only the last 4 writes: 3,4,5,6 (6 most recent).
	v, _ := d.Read(0)
	if v != 6 {
		t.Errorf("Read(0) after wrap: want 6, got %v", v)
	}
	v, _ = d.Read(3)
	if v != 3 {
		t.Errorf("Read(3) after wrap: want 3, got %v", v)
	}
}

// TestPropertyRoundTripReversed is a property-based variant of
// TestRoundTripTimeReversed covering arbitrary block sizes and values.
func TestPropertyRoundTripReversed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(t, "n")
		in := rapid.SliceOfN(rapid.Float32Range(-1, 1), n, n).Draw(t, "in")

		d, err := New(n * 2)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		d.WriteBlock(in)

		dst := make([]float32, n)
		if err := d.ReadBlock(dst, 0); err != nil {
			t.Fatalf("ReadBlock: %v", err)
		}
		for i := range dst {
			if dst[i] != in[n-1-i] {
				t.Fatalf("dst[%d]=%v, want reversed input %v", i, dst[i], in[n-1-i])
			}
		}
	})
}
