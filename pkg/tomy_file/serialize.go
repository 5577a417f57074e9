package tomy_file

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// AnyColumn interface methods. A chunk is [validity len][validity][values].

func (c *Int64Column) SerializeData(w io.Writer) (int64, error) {
	return writeChunk(w, c.Nulls, CompressInt64Values(c.Values))
}

func (c *Float64Column) SerializeData(w io.Writer) (int64, error) {
	return writeChunk(w, c.Nulls, CompressFloat64Values(c.Values, c.GetType()))
}

func (c *BoolColumn) SerializeData(w io.Writer) (int64, error) {
	return writeChunk(w, c.Nulls, CompressBoolValues(c.Values))
}

func (c *VarcharColumn) SerializeData(w io.Writer) (int64, error) {
	return writeChunk(w, c.Nulls, CompressVarcharColumn(c))
}

func writeChunk(w io.Writer, nulls []bool, payload []byte) (int64, error) {
	var validity []byte
	if hasNulls(nulls) {
		validity = CompressBoolValues(nulls)
	}

	header := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(header, uint64(len(validity)))

	var written int64
	for _, part := range [][]byte{header[:n], validity, payload} {
		m, err := w.Write(part)
		written += int64(m)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func hasNulls(nulls []bool) bool {
	for _, n := range nulls {
		if n {
			return true
		}
	}
	return false
}

// Writer splits a table into row groups of at most RowGroupSize rows.
type Writer struct {
	RowGroupSize int
}

func NewWriter(rowGroupSize int) *Writer {
	if rowGroupSize <= 0 {
		rowGroupSize = DefaultRowGroupSize
	}
	return &Writer{RowGroupSize: rowGroupSize}
}

// Serialize writes the table using the default row group size.
func (table ColumnarTable) Serialize(filePath string) error {
	return NewWriter(DefaultRowGroupSize).Write(filePath, &table)
}

func (wr *Writer) Write(filePath string, table *ColumnarTable) error {
	for _, col := range table.Columns {
		if uint64(col.GetNumRows()) != table.NumRows {
			return fmt.Errorf("column %s has %d rows, table has %d", col.GetName(), col.GetNumRows(), table.NumRows)
		}
	}

	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	cw := &countingWriter{w: bufio.NewWriter(f)}

	if _, err := cw.Write([]byte(BeginMagic)); err != nil {
		return fmt.Errorf("failed to write magic begin: %w", err)
	}

	meta := FileMetaData{
		NumRows: table.NumRows,
		Columns: make([]ColumnMetaData, len(table.Columns)),
	}
	for i, col := range table.Columns {
		meta.Columns[i] = ColumnMetaData{Name: col.GetName(), Type: col.GetType()}
	}

	for start := uint64(0); start < table.NumRows; start += uint64(wr.RowGroupSize) {
		count := min(uint64(wr.RowGroupSize), table.NumRows-start)
		rg := RowGroupMetaData{NumRows: count, Chunks: make([]ChunkMetaData, len(table.Columns))}

		for i, col := range table.Columns {
			part, err := sliceColumn(col, start, count)
			if err != nil {
				return err
			}
			offset := cw.n
			size, err := part.SerializeData(cw)
			if err != nil {
				return fmt.Errorf("failed to serialize data for column %s: %w", col.GetName(), err)
			}
			rg.Chunks[i] = ChunkMetaData{
				DataOffset:     offset,
				CompressedSize: size,
				Stats:          ComputeStatistics(part),
			}
		}
		meta.RowGroups = append(meta.RowGroups, rg)
	}

	metadataOffset := cw.n
	if err := writeMetadataVLE(cw, &meta); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := binary.Write(cw, binary.LittleEndian, metadataOffset); err != nil {
		return fmt.Errorf("failed to write metadata offset: %w", err)
	}
	if _, err := cw.Write([]byte(EndMagic)); err != nil {
		return fmt.Errorf("failed to write magic end: %w", err)
	}

	return cw.w.(*bufio.Writer).Flush()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func writeMetadataVLE(w io.Writer, meta *FileMetaData) error {
	if err := WriteVarint(w, meta.NumRows); err != nil {
		return err
	}
	if err := WriteVarint(w, uint64(len(meta.Columns))); err != nil {
		return err
	}

	for _, col := range meta.Columns {
		nameBytes := []byte(col.Name)
		if err := WriteVarint(w, uint64(len(nameBytes))); err != nil {
			return err
		}
		if _, err := w.Write(nameBytes); err != nil {
			return err
		}
		if _, err := w.Write([]byte{byte(col.Type)}); err != nil {
			return err
		}
	}

	if err := WriteVarint(w, uint64(len(meta.RowGroups))); err != nil {
		return err
	}
	for _, rg := range meta.RowGroups {
		if err := WriteVarint(w, rg.NumRows); err != nil {
			return err
		}
		for i, chunk := range rg.Chunks {
			if err := binary.Write(w, binary.LittleEndian, chunk.DataOffset); err != nil {
				return err
			}
			if err := WriteVarint(w, uint64(chunk.CompressedSize)); err != nil {
				return err
			}
			if err := writeStatistics(w, meta.Columns[i].Type, chunk.Stats); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeStatistics(w io.Writer, typ ColumnType, s Statistics) error {
	if err := WriteVarint(w, s.NullCount); err != nil {
		return err
	}
	if err := WriteVarint(w, s.DistinctCount); err != nil {
		return err
	}
	if !s.HasMinMax() {
		_, err := w.Write([]byte{0})
		return err
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	for _, v := range []any{s.Min, s.Max} {
		if err := writeStatValue(w, typ, v); err != nil {
			return err
		}
	}
	return nil
}

func writeStatValue(w io.Writer, typ ColumnType, v any) error {
	switch {
	case typ.isIntegerFamily():
		return WriteVarint(w, ZigZagEncode(v.(int64)))
	case typ.isFloatFamily():
		return binary.Write(w, binary.LittleEndian, math.Float64bits(v.(float64)))
	case typ == TypeBoolean:
		var b byte
		if v.(bool) {
			b = 1
		}
		_, err := w.Write([]byte{b})
		return err
	case typ == TypeVarchar:
		s := v.(string)
		if err := WriteVarint(w, uint64(len(s))); err != nil {
			return err
		}
		_, err := io.WriteString(w, s)
		return err
	}
	return fmt.Errorf("unknown column type %v", typ)
}

func sliceColumn(col AnyColumn, start, count uint64) (AnyColumn, error) {
	if start == 0 && count == uint64(col.GetNumRows()) {
		return col, nil
	}
	end := start + count
	switch c := col.(type) {
	case *Int64Column:
		return &Int64Column{Name: c.Name, Type: c.Type, Values: c.Values[start:end], Nulls: sliceNulls(c.Nulls, start, end)}, nil
	case *Float64Column:
		return &Float64Column{Name: c.Name, Type: c.Type, Values: c.Values[start:end], Nulls: sliceNulls(c.Nulls, start, end)}, nil
	case *BoolColumn:
		return &BoolColumn{Name: c.Name, Values: c.Values[start:end], Nulls: sliceNulls(c.Nulls, start, end)}, nil
	case *VarcharColumn:
		dataStart := c.Offsets[start]
		dataEnd := c.NextOffset(int(end) - 1)
		newOffsets := make([]uint64, count)
		for i := range newOffsets {
			newOffsets[i] = c.Offsets[start+uint64(i)] - dataStart
		}
		return &VarcharColumn{Name: c.Name, Offsets: newOffsets, Data: c.Data[dataStart:dataEnd], Nulls: sliceNulls(c.Nulls, start, end)}, nil
	default:
		return nil, fmt.Errorf("unknown column type: %T", col)
	}
}

func sliceNulls(nulls []bool, start, end uint64) []bool {
	if nulls == nil {
		return nil
	}
	return nulls[start:end]
}
