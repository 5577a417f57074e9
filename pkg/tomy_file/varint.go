package tomy_file

import (
	"encoding/binary"
	"fmt"
	"io"
)

func WriteVarint(w io.Writer, value uint64) error {
	var buf [binary.MaxVarintLen64]byte
	if _, err := w.Write(binary.AppendUvarint(buf[:0], value)); err != nil {
		return fmt.Errorf("failed to write varint %d: %w", value, err)
	}
	return nil
}

func ReadVarint(r io.ByteReader) (uint64, error) {
	value, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read varint: %w", err)
	}
	return value, nil
}
