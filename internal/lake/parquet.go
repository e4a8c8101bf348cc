package lake

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// moneyType holds amounts up to sixteen integer digits
var moneyType = &arrow.Decimal128Type{Precision: 18, Scale: models.MoneyPlaces}

// Codec maps a compression name to its parquet codec. Unknown names fall
// back to snappy.
func Codec(name string) compress.Compression {
	switch strings.ToLower(name) {
	case "gzip":
		return compress.Codecs.Gzip
	case "lz4":
		return compress.Codecs.Lz4Raw
	case "zstd":
		return compress.Codecs.Zstd
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

// Writer writes tables under root/<layer>/<name>.parquet
type Writer struct {
	root        string
	compression compress.Compression
	logger      *zap.Logger
}

func NewWriter(root, compression string) *Writer {
	return &Writer{
		root:        root,
		compression: Codec(compression),
		logger:      util.GetLogger(),
	}
}

// Path returns the file a table of a layer is written to
func (w *Writer) Path(layer, name string) string {
	return filepath.Join(w.root, layer, name+".parquet")
}

// Files lists the parquet files of a layer, or of every layer when layer
// is empty, in lexical order
func (w *Writer) Files(layer string) ([]string, error) {
	pattern := filepath.Join(w.root, "*", "*.parquet")
	if layer != "" {
		pattern = filepath.Join(w.root, layer, "*.parquet")
	}
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", pattern, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Write encodes the table and replaces the layer file atomically
func (w *Writer) Write(ctx context.Context, layer string, t *Table) (string, error) {
	_, span := util.StartSpan(ctx, "Writer.Write")
	defer span.End()
	util.SetCount(span, "rows", t.NumRows())

	data, err := Encode(t, w.compression)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s/%s: %w", layer, t.Name, err)
	}

	path := w.Path(layer, t.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create layer directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", path, err)
	}

	w.logger.Debug("Table written",
		zap.String("layer", layer),
		zap.String("table", t.Name),
		zap.Int("rows", t.NumRows()),
		zap.String("path", path))
	return path, nil
}

func arrowType(k Kind) arrow.DataType {
	switch k {
	case KindInt64:
		return arrow.PrimitiveTypes.Int64
	case KindFloat64:
		return arrow.PrimitiveTypes.Float64
	case KindTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	case KindDecimal:
		return moneyType
	default:
		return arrow.BinaryTypes.String
	}
}

// Encode serialises a table to parquet bytes
func Encode(t *Table, compression compress.Compression) ([]byte, error) {
	table, err := toArrowTable(t)
	if err != nil {
		return nil, err
	}
	defer table.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compression))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(memory.NewGoAllocator()))

	var buf bytes.Buffer
	writer, err := pqarrow.NewFileWriter(table.Schema(), &buf, props, arrowProps)
	if err != nil {
		return nil, fmt.Errorf("creating file writer: %w", err)
	}

	chunk := int64(t.NumRows())
	if chunk == 0 {
		chunk = 1
	}
	if err := writer.WriteTable(table, chunk); err != nil {
		writer.Close()
		return nil, fmt.Errorf("writing table: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing file writer: %w", err)
	}
	return buf.Bytes(), nil
}

func toArrowTable(t *Table) (arrow.Table, error) {
	mem := memory.NewGoAllocator()
	fields := make([]arrow.Field, 0, len(t.Fields))
	columns := make([]arrow.Column, 0, len(t.Fields))

	for i, f := range t.Fields {
		arr, err := buildArray(mem, t, i)
		if err != nil {
			return nil, err
		}
		field := arrow.Field{Name: f.Name, Type: arrowType(f.Kind), Nullable: f.Nullable}
		fields = append(fields, field)

		chunked := arrow.NewChunked(field.Type, []arrow.Array{arr})
		columns = append(columns, *arrow.NewColumn(field, chunked))
	}

	schema := arrow.NewSchema(fields, nil)
	return array.NewTable(schema, columns, int64(t.NumRows())), nil
}

func buildArray(mem memory.Allocator, t *Table, col int) (arrow.Array, error) {
	f := t.Fields[col]
	mismatch := func(v interface{}) error {
		return fmt.Errorf("column %s: expected %s, got %T", f.Name, f.Kind, v)
	}

	switch f.Kind {
	case KindInt64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for _, row := range t.Rows {
			switch v := row[col].(type) {
			case nil:
				b.AppendNull()
			case int64:
				b.Append(v)
			default:
				return nil, mismatch(v)
			}
		}
		return checkNulls(f, b.NewArray())

	case KindFloat64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		for _, row := range t.Rows {
			switch v := row[col].(type) {
			case nil:
				b.AppendNull()
			case float64:
				b.Append(v)
			default:
				return nil, mismatch(v)
			}
		}
		return checkNulls(f, b.NewArray())

	case KindDecimal:
		b := array.NewDecimal128Builder(mem, moneyType)
		defer b.Release()
		for _, row := range t.Rows {
			switch v := row[col].(type) {
			case nil:
				b.AppendNull()
			case decimal.Decimal:
				b.Append(decimal128.FromI64(v.Round(models.MoneyPlaces).Shift(models.MoneyPlaces).IntPart()))
			default:
				return nil, mismatch(v)
			}
		}
		return checkNulls(f, b.NewArray())

	case KindTimestamp:
		b := array.NewTimestampBuilder(mem, arrow.FixedWidthTypes.Timestamp_us.(*arrow.TimestampType))
		defer b.Release()
		for _, row := range t.Rows {
			switch v := row[col].(type) {
			case nil:
				b.AppendNull()
			case time.Time:
				b.Append(arrow.Timestamp(timeValue(v).UnixMicro()))
			default:
				return nil, mismatch(v)
			}
		}
		return checkNulls(f, b.NewArray())

	default:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for _, row := range t.Rows {
			switch v := row[col].(type) {
			case nil:
				b.AppendNull()
			case string:
				b.Append(v)
			default:
				return nil, mismatch(v)
			}
		}
		return checkNulls(f, b.NewArray())
	}
}

func checkNulls(f Field, arr arrow.Array) (arrow.Array, error) {
	if !f.Nullable && arr.NullN() > 0 {
		arr.Release()
		return nil, fmt.Errorf("column %s: %d nulls in non-nullable column", f.Name, arr.NullN())
	}
	return arr, nil
}

// FileInfo summarises a parquet file
type FileInfo struct {
	Path      string
	Size      int64
	Rows      int64
	RowGroups int
	Fields    []Field
}

// Inspect reads the footer of a parquet file
func Inspect(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	pqReader, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening parquet file: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, fmt.Errorf("creating arrow file reader: %w", err)
	}
	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}

	fields, err := fieldsOf(schema)
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		Path:      path,
		Size:      stat.Size(),
		Rows:      pqReader.NumRows(),
		RowGroups: pqReader.NumRowGroups(),
		Fields:    fields,
	}, nil
}

// Read loads a parquet file written by Writer
func Read(ctx context.Context, path string) (*Table, error) {
	pqReader, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening parquet file: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, fmt.Errorf("creating arrow file reader: %w", err)
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}
	defer table.Release()

	fields, err := fieldsOf(table.Schema())
	if err != nil {
		return nil, err
	}

	out := &Table{
		Name:   strings.TrimSuffix(filepath.Base(path), ".parquet"),
		Fields: fields,
		Rows:   make([][]interface{}, table.NumRows()),
	}
	for r := range out.Rows {
		out.Rows[r] = make([]interface{}, len(fields))
	}

	for c := 0; c < int(table.NumCols()); c++ {
		offset := 0
		for _, chunk := range table.Column(c).Data().Chunks() {
			for j := 0; j < chunk.Len(); j++ {
				out.Rows[offset+j][c] = valueAt(chunk, j)
			}
			offset += chunk.Len()
		}
	}
	return out, nil
}

func fieldsOf(schema *arrow.Schema) ([]Field, error) {
	fields := make([]Field, 0, schema.NumFields())
	for _, f := range schema.Fields() {
		var kind Kind
		switch f.Type.ID() {
		case arrow.STRING, arrow.LARGE_STRING:
			kind = KindString
		case arrow.INT64, arrow.INT32:
			kind = KindInt64
		case arrow.FLOAT64:
			kind = KindFloat64
		case arrow.TIMESTAMP:
			kind = KindTimestamp
		case arrow.DECIMAL128:
			kind = KindDecimal
		default:
			return nil, fmt.Errorf("unsupported column type %s for %s", f.Type, f.Name)
		}
		fields = append(fields, Field{Name: f.Name, Kind: kind, Nullable: f.Nullable})
	}
	return fields, nil
}

func valueAt(arr arrow.Array, i int) interface{} {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Decimal128:
		scale := a.DataType().(*arrow.Decimal128Type).Scale
		return decimal.NewFromBigInt(a.Value(i).BigInt(), -scale)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC()
	}
	return nil
}
