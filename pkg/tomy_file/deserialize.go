package tomy_file

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Deserialize reads a whole file into memory, gluing row groups back together.
func Deserialize(filePath string) (*ColumnarTable, error) {
	mf, err := OpenMapped(filePath)
	if err != nil {
		return nil, err
	}
	defer mf.Close()

	meta := mf.Metadata()
	table := &ColumnarTable{
		NumRows: meta.NumRows,
		Columns: make([]AnyColumn, len(meta.Columns)),
	}

	for c, colMeta := range meta.Columns {
		parts := make([]AnyColumn, 0, len(meta.RowGroups))
		for rg := range meta.RowGroups {
			part, err := mf.ReadColumn(rg, c)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		}
		col, err := concatColumns(colMeta, parts)
		if err != nil {
			return nil, err
		}
		table.Columns[c] = col
	}
	return table, nil
}

func verifyMagicValue(data []byte, expectedMagic string, offset int64) error {
	end := offset + int64(len(expectedMagic))
	if offset < 0 || end > int64(len(data)) {
		return fmt.Errorf("file is too short. Error reading %s", expectedMagic)
	}
	if got := string(data[offset:end]); got != expectedMagic {
		return fmt.Errorf("invalid magic: expected '%s', got '%s'", expectedMagic, got)
	}
	return nil
}

func readMetadata(data []byte) (*FileMetaData, error) {
	fileSize := int64(len(data))

	if err := verifyMagicValue(data, BeginMagic, 0); err != nil {
		return nil, err
	}
	endMagicStart := fileSize - int64(len(EndMagic))
	if err := verifyMagicValue(data, EndMagic, endMagicStart); err != nil {
		return nil, err
	}

	// Offset of the metadata is 8 bytes before MagicEnd
	offsetPointerStart := endMagicStart - 8
	if offsetPointerStart < int64(len(BeginMagic)) {
		return nil, errors.New("file is too short to hold a footer")
	}
	metadataOffset := int64(binary.LittleEndian.Uint64(data[offsetPointerStart:endMagicStart]))

	if metadataOffset < int64(len(BeginMagic)) || metadataOffset >= offsetPointerStart {
		return nil, fmt.Errorf("invalid metadata offset value: %d", metadataOffset)
	}

	meta, err := deserializeMetadata(data[metadataOffset:offsetPointerStart])
	if err != nil {
		return nil, err
	}

	for i, rg := range meta.RowGroups {
		for c, chunk := range rg.Chunks {
			if chunk.DataOffset < int64(len(BeginMagic)) || chunk.DataOffset+chunk.CompressedSize > metadataOffset {
				return nil, fmt.Errorf("chunk %d of row group %d points outside the data section", c, i)
			}
		}
	}
	return meta, nil
}

func deserializeMetadata(buf []byte) (*FileMetaData, error) {
	reader := bytes.NewReader(buf)
	meta := &FileMetaData{}

	numRows, err := ReadVarint(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read NumRows: %w", err)
	}
	meta.NumRows = numRows

	numColumns, err := ReadVarint(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read NumColumns: %w", err)
	}
	if numColumns > uint64(len(buf)) {
		return nil, fmt.Errorf("invalid column count %d", numColumns)
	}
	meta.Columns = make([]ColumnMetaData, numColumns)

	for i := range meta.Columns {
		nameLength, err := ReadVarint(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read length of column %d name: %w", i, err)
		}
		if nameLength > uint64(reader.Len()) {
			return nil, fmt.Errorf("column %d name is longer than the footer", i)
		}
		nameBuffer := make([]byte, nameLength)
		if _, err := io.ReadFull(reader, nameBuffer); err != nil {
			return nil, fmt.Errorf("failed to read column %d name: %w", i, err)
		}
		meta.Columns[i].Name = string(nameBuffer)

		colType, err := reader.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("failed to read type of column %d: %w", i, err)
		}
		meta.Columns[i].Type = ColumnType(colType)
		if meta.Columns[i].Type.String() == "UNKNOWN" {
			return nil, fmt.Errorf("unknown type %#x of column %d", colType, i)
		}
	}

	numRowGroups, err := ReadVarint(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read NumRowGroups: %w", err)
	}
	if numRowGroups > uint64(len(buf)) {
		return nil, fmt.Errorf("invalid row group count %d", numRowGroups)
	}
	meta.RowGroups = make([]RowGroupMetaData, numRowGroups)

	var total uint64
	for i := range meta.RowGroups {
		rg := &meta.RowGroups[i]
		if rg.NumRows, err = ReadVarint(reader); err != nil {
			return nil, fmt.Errorf("failed to read row count of row group %d: %w", i, err)
		}
		total += rg.NumRows

		rg.Chunks = make([]ChunkMetaData, len(meta.Columns))
		for c := range rg.Chunks {
			chunk := &rg.Chunks[c]
			if err := binary.Read(reader, binary.LittleEndian, &chunk.DataOffset); err != nil {
				return nil, fmt.Errorf("failed to read offset of chunk %d/%d: %w", i, c, err)
			}
			size, err := ReadVarint(reader)
			if err != nil {
				return nil, fmt.Errorf("failed to read size of chunk %d/%d: %w", i, c, err)
			}
			chunk.CompressedSize = int64(size)
			if chunk.Stats, err = readStatistics(reader, meta.Columns[c].Type); err != nil {
				return nil, fmt.Errorf("failed to read statistics of chunk %d/%d: %w", i, c, err)
			}
		}
	}

	if total != meta.NumRows {
		return nil, fmt.Errorf("row groups hold %d rows, footer says %d", total, meta.NumRows)
	}
	return meta, nil
}

func readStatistics(r *bytes.Reader, typ ColumnType) (Statistics, error) {
	var s Statistics
	var err error
	if s.NullCount, err = ReadVarint(r); err != nil {
		return s, err
	}
	if s.DistinctCount, err = ReadVarint(r); err != nil {
		return s, err
	}
	flag, err := r.ReadByte()
	if err != nil {
		return s, err
	}
	if flag == 0 {
		return s, nil
	}
	if s.Min, err = readStatValue(r, typ); err != nil {
		return s, err
	}
	if s.Max, err = readStatValue(r, typ); err != nil {
		return s, err
	}
	return s, nil
}

func readStatValue(r *bytes.Reader, typ ColumnType) (any, error) {
	switch {
	case typ.isIntegerFamily():
		zz, err := ReadVarint(r)
		if err != nil {
			return nil, err
		}
		return ZigZagDecode(zz), nil
	case typ.isFloatFamily():
		var bits uint64
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return nil, err
		}
		return math.Float64frombits(bits), nil
	case typ == TypeBoolean:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case typ == TypeVarchar:
		n, err := ReadVarint(r)
		if err != nil {
			return nil, err
		}
		if n > uint64(r.Len()) {
			return nil, errors.New("string statistic is longer than the footer")
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return string(buf), nil
	}
	return nil, fmt.Errorf("unknown column type %v", typ)
}

// decodeChunk turns the bytes of one chunk back into a column.
func decodeChunk(data []byte, colMeta ColumnMetaData, numRows uint64) (AnyColumn, error) {
	validityLen, n := binary.Uvarint(data)
	if n <= 0 || uint64(len(data)-n) < validityLen {
		return nil, fmt.Errorf("corrupted validity header of column '%s'", colMeta.Name)
	}
	data = data[n:]

	var nulls []bool
	if validityLen > 0 {
		var err error
		if nulls, err = DecompressBoolValues(data[:validityLen], numRows); err != nil {
			return nil, fmt.Errorf("failed to decode validity of column '%s': %w", colMeta.Name, err)
		}
	}
	data = data[validityLen:]

	switch {
	case colMeta.Type.isIntegerFamily():
		values, err := DecompressInt64Values(data, numRows)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s column '%s': %w", colMeta.Type, colMeta.Name, err)
		}
		return &Int64Column{Name: colMeta.Name, Type: colMeta.Type, Values: values, Nulls: nulls}, nil

	case colMeta.Type.isFloatFamily():
		values, err := DecompressFloat64Values(data, numRows, colMeta.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s column '%s': %w", colMeta.Type, colMeta.Name, err)
		}
		return &Float64Column{Name: colMeta.Name, Type: colMeta.Type, Values: values, Nulls: nulls}, nil

	case colMeta.Type == TypeBoolean:
		values, err := DecompressBoolValues(data, numRows)
		if err != nil {
			return nil, fmt.Errorf("failed to decode BOOLEAN column '%s': %w", colMeta.Name, err)
		}
		return &BoolColumn{Name: colMeta.Name, Values: values, Nulls: nulls}, nil

	case colMeta.Type == TypeVarchar:
		col, err := DecompressVarcharColumn(data, numRows)
		if err != nil {
			return nil, fmt.Errorf("failed to decode VARCHAR column '%s': %w", colMeta.Name, err)
		}
		col.Name = colMeta.Name
		col.Nulls = nulls
		return col, nil
	}
	return nil, fmt.Errorf("unknown column type for '%s': %v", colMeta.Name, colMeta.Type)
}

func concatColumns(colMeta ColumnMetaData, parts []AnyColumn) (AnyColumn, error) {
	if len(parts) == 1 {
		return parts[0], nil
	}

	anyNulls := false
	for _, p := range parts {
		for i := range p.GetNumRows() {
			if p.IsNull(i) {
				anyNulls = true
				break
			}
		}
	}
	var nulls []bool
	appendNulls := func(p AnyColumn) {
		if !anyNulls {
			return
		}
		for i := range p.GetNumRows() {
			nulls = append(nulls, p.IsNull(i))
		}
	}

	switch {
	case colMeta.Type.isIntegerFamily():
		out := &Int64Column{Name: colMeta.Name, Type: colMeta.Type}
		for _, p := range parts {
			out.Values = append(out.Values, p.(*Int64Column).Values...)
			appendNulls(p)
		}
		out.Nulls = nulls
		return out, nil
	case colMeta.Type.isFloatFamily():
		out := &Float64Column{Name: colMeta.Name, Type: colMeta.Type}
		for _, p := range parts {
			out.Values = append(out.Values, p.(*Float64Column).Values...)
			appendNulls(p)
		}
		out.Nulls = nulls
		return out, nil
	case colMeta.Type == TypeBoolean:
		out := &BoolColumn{Name: colMeta.Name}
		for _, p := range parts {
			out.Values = append(out.Values, p.(*BoolColumn).Values...)
			appendNulls(p)
		}
		out.Nulls = nulls
		return out, nil
	case colMeta.Type == TypeVarchar:
		out := &VarcharColumn{Name: colMeta.Name, Offsets: []uint64{}}
		for _, p := range parts {
			vc := p.(*VarcharColumn)
			base := uint64(len(out.Data))
			for _, off := range vc.Offsets {
				out.Offsets = append(out.Offsets, base+off)
			}
			out.Data = append(out.Data, vc.Data...)
			appendNulls(p)
		}
		out.Nulls = nulls
		return out, nil
	}
	return nil, fmt.Errorf("unknown column type for '%s': %v", colMeta.Name, colMeta.Type)
}
