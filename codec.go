package pantry

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"
)

// Serializer converts values to and from their stored byte form. The
// default is msgpack; see [MsgpackSerializer] for what it can encode.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Compressor wraps payload streams. Compress returns a writer that
// compresses into w and must be closed to flush. Decompress returns a
// reader over the compressed stream in r.
type Compressor interface {
	Compress(w io.Writer) io.WriteCloser
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// MsgpackSerializer is the default Serializer. Primitives, exported
// struct fields, maps, slices, pointers and types implementing
// msgpack.CustomEncoder/CustomDecoder all encode; functions, channels
// and complex numbers do not.
type MsgpackSerializer struct{}

func (MsgpackSerializer) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackSerializer) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// SnappyCompressor is the default Compressor, using snappy's framing
// format.
type SnappyCompressor struct{}

func (SnappyCompressor) Compress(w io.Writer) io.WriteCloser {
	return snappy.NewBufferedWriter(w)
}

func (SnappyCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

// GzipCompressor trades the snappy default's speed for tighter output.
// Entries written with one compressor are not readable through the
// other, so pick one per backing store and stay with it.
type GzipCompressor struct{}

func (GzipCompressor) Compress(w io.Writer) io.WriteCloser {
	return gzip.NewWriter(w)
}

func (GzipCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// DefaultCompressionThreshold is the encoded size, in bytes, at which
// values are compressed before storage.
const DefaultCompressionThreshold = 4 * 1024

// codec pairs the configured Serializer and Compressor. Encoding and
// decoding always happen in the engine, outside any store call, so a
// slow marshal never holds a store transaction open.
type codec struct {
	serializer Serializer
	compressor Compressor
	threshold  int
}

// encode serializes v, compressing the result when it reaches the
// threshold. The returned bool reports whether compression was applied.
func (c codec) encode(v any) ([]byte, bool, error) {
	data, err := c.serializer.Marshal(v)
	if err != nil {
		return nil, false, errors.Mark(errors.Wrap(err, "pantry: marshal"), ErrNotSerializable)
	}
	if c.threshold <= 0 || len(data) < c.threshold {
		return data, false, nil
	}
	var buf bytes.Buffer
	w := c.compressor.Compress(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, false, errors.Mark(errors.Wrap(err, "pantry: compress"), ErrNotSerializable)
	}
	if err := w.Close(); err != nil {
		return nil, false, errors.Mark(errors.Wrap(err, "pantry: compress"), ErrNotSerializable)
	}
	return buf.Bytes(), true, nil
}

// decode reverses encode into dst, which must be a pointer. Failures
// are marked ErrCorruptEntry.
func (c codec) decode(e Entry, dst any) error {
	data := e.Value
	if e.Compressed {
		r, err := c.compressor.Decompress(bytes.NewReader(e.Value))
		if err != nil {
			return errors.Mark(errors.Wrap(err, "pantry: decompress"), ErrCorruptEntry)
		}
		data, err = io.ReadAll(r)
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Mark(errors.Wrap(err, "pantry: decompress"), ErrCorruptEntry)
		}
	}
	if err := c.serializer.Unmarshal(data, dst); err != nil {
		return errors.Mark(errors.Wrap(err, "pantry: unmarshal"), ErrCorruptEntry)
	}
	return nil
}
