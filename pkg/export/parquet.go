package export

import (
	"errors"
	"io"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	tgerrors "github.com/logflow/trackgen/pkg/errors"
)

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

// ParseCompression parses a compression name.
func ParseCompression(s string) (CompressionType, error) {
	switch s {
	case "snappy", "":
		return CompressionSnappy, nil
	case "gzip":
		return CompressionGzip, nil
	case "zstd":
		return CompressionZstd, nil
	case "none":
		return CompressionNone, nil
	default:
		return CompressionNone, tgerrors.Configuration("unknown parquet compression %q", s)
	}
}

func (c CompressionType) codec() compress.Compression {
	switch c {
	case CompressionSnappy:
		return compress.Codecs.Snappy
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionZstd:
		return compress.Codecs.Zstd
	default:
		return compress.Codecs.Uncompressed
	}
}

// Options controls Parquet output.
type Options struct {
	Compression CompressionType

	// RowGroupSize is the number of rows per row group. Zero keeps the
	// library default.
	RowGroupSize int64
}

// WriteParquet writes rec to w as a single Parquet file.
func WriteParquet(w io.Writer, rec arrow.Record, opts Options) error {
	props := []parquet.WriterProperty{
		parquet.WithCompression(opts.Compression.codec()),
		parquet.WithDictionaryDefault(true),
		parquet.WithDataPageSize(1024 * 1024),
	}
	if opts.RowGroupSize > 0 {
		props = append(props, parquet.WithMaxRowGroupLength(opts.RowGroupSize))
	}

	fw, err := pqarrow.NewFileWriter(rec.Schema(), w,
		parquet.NewWriterProperties(props...),
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()),
	)
	if err != nil {
		return tgerrors.Wrap(err, tgerrors.CodeExport, "failed to create parquet writer")
	}

	if err := fw.Write(rec); err != nil {
		fw.Close()
		return tgerrors.Wrap(err, tgerrors.CodeExport, "failed to write record batch")
	}
	if err := fw.Close(); err != nil {
		return tgerrors.Wrap(err, tgerrors.CodeExport, "failed to close parquet writer")
	}
	return nil
}

// WriteParquetFile writes rec to a new file at path.
func WriteParquetFile(path string, rec arrow.Record, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return tgerrors.Wrap(err, tgerrors.CodeExport, "failed to create output file").
			WithContext("path", path)
	}
	if err := WriteParquet(f, rec, opts); err != nil {
		f.Close()
		return err
	}
	// The parquet writer closes f on success.
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return tgerrors.Wrap(err, tgerrors.CodeExport, "failed to close output file").
			WithContext("path", path)
	}
	return nil
}
