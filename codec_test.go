package pantry

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(threshold int) codec {
	return codec{
		serializer: MsgpackSerializer{},
		compressor: SnappyCompressor{},
		threshold:  threshold,
	}
}

func TestCodecRoundtripSmall(t *testing.T) {
	c := newTestCodec(DefaultCompressionThreshold)

	type payload struct {
		Name  string `msgpack:"name"`
		Count int    `msgpack:"count"`
	}
	in := payload{Name: "beans", Count: 12}

	data, compressed, err := c.encode(in)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.NotEmpty(t, data)

	var out payload
	require.NoError(t, c.decode(Entry{Value: data, Compressed: compressed}, &out))
	assert.Equal(t, in, out)
}

func TestCodecCompressesLargeValues(t *testing.T) {
	c := newTestCodec(DefaultCompressionThreshold)
	in := strings.Repeat("pantry ", 2048)

	data, compressed, err := c.encode(in)
	require.NoError(t, err)
	assert.True(t, compressed)
	assert.Less(t, len(data), len(in), "repetitive payload should shrink")

	var out string
	require.NoError(t, c.decode(Entry{Value: data, Compressed: compressed}, &out))
	assert.Equal(t, in, out)
}

func TestCodecThresholdZeroDisablesCompression(t *testing.T) {
	c := newTestCodec(0)
	in := strings.Repeat("pantry ", 2048)

	data, compressed, err := c.encode(in)
	require.NoError(t, err)
	assert.False(t, compressed)

	var out string
	require.NoError(t, c.decode(Entry{Value: data, Compressed: false}, &out))
	assert.Equal(t, in, out)
}

func TestCodecEncodeUnsupportedType(t *testing.T) {
	c := newTestCodec(DefaultCompressionThreshold)

	_, _, err := c.encode(func() {})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotSerializable))
}

func TestCodecDecodeGarbage(t *testing.T) {
	c := newTestCodec(DefaultCompressionThreshold)

	// 0xc1 is the one byte the msgpack format never assigns.
	var out string
	err := c.decode(Entry{Value: []byte{0xc1}}, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptEntry))
}

func TestCodecDecodeBadCompressedStream(t *testing.T) {
	c := newTestCodec(DefaultCompressionThreshold)

	var out string
	err := c.decode(Entry{Value: []byte("definitely not snappy"), Compressed: true}, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptEntry))
}

func TestCodecGzipCompressor(t *testing.T) {
	c := codec{
		serializer: MsgpackSerializer{},
		compressor: GzipCompressor{},
		threshold:  1,
	}
	in := strings.Repeat("pantry ", 2048)

	data, compressed, err := c.encode(in)
	require.NoError(t, err)
	assert.True(t, compressed)
	assert.Less(t, len(data), len(in))

	var out string
	require.NoError(t, c.decode(Entry{Value: data, Compressed: compressed}, &out))
	assert.Equal(t, in, out)
}
