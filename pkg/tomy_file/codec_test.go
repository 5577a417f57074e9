package tomy_file

import (
	"bytes"
	"math"
	"reflect"
	"testing"
)

func TestZigZagEncoding(t *testing.T) {
	tests := []struct {
		original int64
		expected uint64
	}{
		{0, 0},
		{-1, 1},
		{1, 2},
		{-2, 3},
		{math.MaxInt32, 4294967294},
		{math.MinInt32, 4294967295},
		{math.MaxInt64, 0xFFFFFFFFFFFFFFFE},
		{math.MinInt64, 0xFFFFFFFFFFFFFFFF},
	}

	for _, tc := range tests {
		encoded := ZigZagEncode(tc.original)
		if encoded != tc.expected {
			t.Errorf("ZigZagEncode(%d): expected %d, got %d", tc.original, tc.expected, encoded)
		}
		if decoded := ZigZagDecode(encoded); decoded != tc.original {
			t.Errorf("ZigZagDecode(%d): expected %d, got %d", encoded, tc.original, decoded)
		}
	}
}

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 1 << 32, math.MaxUint64}
	var buf bytes.Buffer
	for _, v := range values {
		if err := WriteVarint(&buf, v); err != nil {
			t.Fatal(err)
		}
	}
	// 1 + 1 + 1 + 2 + 5 + 10 bytes
	if buf.Len() != 20 {
		t.Errorf("expected 20 bytes, got %d", buf.Len())
	}

	r := bytes.NewReader(buf.Bytes())
	for _, want := range values {
		got, err := ReadVarint(r)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
	if _, err := ReadVarint(r); err == nil {
		t.Error("expected an error past the end")
	}
}

func TestDeltaEncodingRoundTrip(t *testing.T) {
	inputs := [][]int64{
		{},
		{42},
		{1, 2, 3, 4, 5},
		{100, -100, 0, math.MaxInt64, math.MinInt64},
	}
	for _, in := range inputs {
		out, err := DecompressInt64Values(CompressInt64Values(in), uint64(len(in)))
		if err != nil {
			t.Fatalf("%v: %v", in, err)
		}
		if !reflect.DeepEqual(out, in) {
			t.Errorf("expected %v, got %v", in, out)
		}
	}

	// sorted keys cost one byte per row
	sorted := make([]int64, 1000)
	for i := range sorted {
		sorted[i] = 1_000_000 + int64(i)
	}
	if n := len(CompressInt64Values(sorted)); n > 1003 {
		t.Errorf("sorted column took %d bytes", n)
	}

	if _, err := DecompressInt64Values([]byte{0x80}, 1); err == nil {
		t.Error("expected an error for a truncated varint")
	}
}

func TestFloatAndBoolRoundTrip(t *testing.T) {
	floats := []float64{0, -1.5, math.Pi, math.Inf(1)}
	got, err := DecompressFloat64Values(CompressFloat64Values(floats, TypeFloat64), uint64(len(floats)), TypeFloat64)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, floats) {
		t.Errorf("expected %v, got %v", floats, got)
	}

	narrow := []float64{0.5, -2.25}
	got, err = DecompressFloat64Values(CompressFloat64Values(narrow, TypeFloat32), 2, TypeFloat32)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, narrow) {
		t.Errorf("expected %v, got %v", narrow, got)
	}

	bools := []bool{true, false, false, true}
	gotBools, err := DecompressBoolValues(CompressBoolValues(bools), 4)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(gotBools, bools) {
		t.Errorf("expected %v, got %v", bools, gotBools)
	}
	if _, err := DecompressBoolValues(CompressBoolValues(bools), 5); err == nil {
		t.Error("expected a length mismatch")
	}
}
