package tomy_file

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

// EncodeAll / DecodeAll are safe for concurrent use, one instance serves every chunk.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Ints compression

// ZigZagEncode int64 => uint64.
func ZigZagEncode(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

// ZigZagDecode uint64 => int64.
func ZigZagDecode(z uint64) int64 {
	return int64((z >> 1) ^ uint64((int64(z&1)<<63)>>63))
}

// CompressInt64Values compresses a slice of int64 using Delta Encoding -> ZigZag -> Varint.
func CompressInt64Values(values []int64) []byte {
	tmpBuf := make([]byte, binary.MaxVarintLen64)

	var buf bytes.Buffer
	buf.Grow(len(values))
	var prev int64 = 0

	for _, v := range values {
		delta := v - prev
		prev = v

		n := binary.PutUvarint(tmpBuf, ZigZagEncode(delta))
		buf.Write(tmpBuf[:n])
	}
	return buf.Bytes()
}

// DecompressInt64Values decompresses data: Varint -> ZigZag -> Delta Decoding.
func DecompressInt64Values(data []byte, numRows uint64) ([]int64, error) {
	values := make([]int64, numRows)
	var prev int64 = 0
	pos := 0

	for i := range numRows {
		zz, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("corrupted varint at row %d", i)
		}
		pos += n

		val := prev + ZigZagDecode(zz)
		values[i] = val
		prev = val
	}
	return values, nil
}

// Floats are stored as raw little endian bits and handed to zstd.

func CompressFloat64Values(values []float64, typ ColumnType) []byte {
	width := 8
	if typ == TypeFloat32 {
		width = 4
	}
	raw := make([]byte, len(values)*width)
	for i, v := range values {
		if width == 4 {
			binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(float32(v)))
		} else {
			binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
		}
	}
	return zstdEncoder.EncodeAll(raw, nil)
}

func DecompressFloat64Values(data []byte, numRows uint64, typ ColumnType) ([]float64, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress float data: %w", err)
	}
	width := 8
	if typ == TypeFloat32 {
		width = 4
	}
	if uint64(len(raw)) != numRows*uint64(width) {
		return nil, fmt.Errorf("float data has %d bytes, expected %d", len(raw), numRows*uint64(width))
	}
	values := make([]float64, numRows)
	for i := range values {
		if width == 4 {
			values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		} else {
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	}
	return values, nil
}

// Booleans (and validity masks) use one byte per value before zstd.

func CompressBoolValues(values []bool) []byte {
	raw := make([]byte, len(values))
	for i, v := range values {
		if v {
			raw[i] = 1
		}
	}
	return zstdEncoder.EncodeAll(raw, nil)
}

func DecompressBoolValues(data []byte, numRows uint64) ([]bool, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress bool data: %w", err)
	}
	if uint64(len(raw)) != numRows {
		return nil, fmt.Errorf("bool data has %d values, expected %d", len(raw), numRows)
	}
	values := make([]bool, numRows)
	for i, b := range raw {
		values[i] = b != 0
	}
	return values, nil
}

// Varchar compression

// CompressVarcharColumn compresses offsets and data of a VarcharColumn.
// Offsets: Delta -> Varint
// Data: ZSTD
// Output: [LenCompressedOffsets(varint)][CompressedOffsets][CompressedData]
func CompressVarcharColumn(col *VarcharColumn) []byte {
	tmpBuf := make([]byte, binary.MaxVarintLen64)

	var offsetsBuf bytes.Buffer
	var prevOffset uint64 = 0

	for _, off := range col.Offsets {
		delta := off - prevOffset
		prevOffset = off
		// We can skip zig zag because offsets are increasing
		n := binary.PutUvarint(tmpBuf, delta)
		offsetsBuf.Write(tmpBuf[:n])
	}
	compressedOffsets := offsetsBuf.Bytes()
	compressedData := zstdEncoder.EncodeAll(col.Data, nil)

	var finalBuf bytes.Buffer
	n := binary.PutUvarint(tmpBuf, uint64(len(compressedOffsets)))
	finalBuf.Write(tmpBuf[:n])
	finalBuf.Write(compressedOffsets)
	finalBuf.Write(compressedData)

	return finalBuf.Bytes()
}

// DecompressVarcharColumn decompress data for Varchar.
func DecompressVarcharColumn(data []byte, numRows uint64) (*VarcharColumn, error) {
	offsetsLen, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, fmt.Errorf("failed to read offsets length")
	}
	data = data[n:]
	if uint64(len(data)) < offsetsLen {
		return nil, fmt.Errorf("failed to read compressed offsets: chunk too short")
	}

	offsetBytes := data[:offsetsLen]
	offsets := make([]uint64, numRows)
	var prevOffset uint64 = 0
	pos := 0

	for i := range numRows {
		delta, n := binary.Uvarint(offsetBytes[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("failed to decode offset delta at row %d", i)
		}
		pos += n
		val := prevOffset + delta
		offsets[i] = val
		prevOffset = val
	}

	uncompressedData, err := zstdDecoder.DecodeAll(data[offsetsLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress varchar data: %w", err)
	}

	return &VarcharColumn{
		Offsets: offsets,
		Data:    uncompressedData,
	}, nil
}
