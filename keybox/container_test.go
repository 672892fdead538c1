package keybox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/attestify/keybox-provisioner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"
)

var plainXML = []byte(`<?xml version="1.0"?><AndroidAttestation><NumberOfKeyboxes>1</NumberOfKeyboxes></AndroidAttestation>`)

// lzmaCompress produces a classic LZMA payload with the decompressed size
// in the header, the layout compressed keyboxes carry.
func lzmaCompress(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := lzma.WriterConfig{Size: int64(len(data))}.NewWriter(&buf)
	require.NoError(t, err, "creating LZMA writer should succeed")
	_, err = w.Write(data)
	require.NoError(t, err, "compressing fixture should succeed")
	require.NoError(t, w.Close(), "closing LZMA writer should succeed")
	return buf.Bytes()
}

// container prepends a keybox header to payload.
func container(version, size uint16, format uint8, payload []byte) []byte {
	hdr := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint16(hdr[0:2], version)
	binary.LittleEndian.PutUint16(hdr[2:4], size)
	hdr[4] = format
	return append(hdr, payload...)
}

func TestParseHeader(t *testing.T) {
	hdr, ok := ParseHeader(container(1, 42, FormatLZMA, nil))
	require.True(t, ok, "8 bytes should parse as a header")
	assert.Equal(t, uint16(1), hdr.Version)
	assert.Equal(t, uint16(42), hdr.Size)
	assert.Equal(t, FormatLZMA, hdr.Format)
	assert.True(t, hdr.Compressed())

	_, ok = ParseHeader([]byte{1, 0, 3})
	assert.False(t, ok, "short buffers carry no header")

	hdr, ok = ParseHeader(plainXML)
	require.True(t, ok)
	assert.False(t, hdr.Compressed(), "XML bytes must never look compressed")
}

func TestDecodePlainPassthrough(t *testing.T) {
	out, err := Decode(plainXML, DecodeOptions{})
	require.NoError(t, err, "headerless XML should pass through")
	assert.Equal(t, plainXML, out, "plain containers decode unchanged")

	short := []byte("<a/>")
	out, err = Decode(short, DecodeOptions{})
	require.NoError(t, err, "buffers shorter than a header are plain XML")
	assert.Equal(t, short, out)
}

func TestDecodeUnknownVersionPassthrough(t *testing.T) {
	raw := container(2, 0, FormatLZMA, plainXML)
	out, err := Decode(raw, DecodeOptions{})
	require.NoError(t, err, "unknown versions are not decompressed")
	assert.Equal(t, raw, out, "without the version-1 convention the whole buffer is XML")
}

func TestDecodeHeaderedPlain(t *testing.T) {
	t.Run("size bounds the document", func(t *testing.T) {
		payload := append(append([]byte{}, plainXML...), []byte("trailing-padding")...)
		out, err := Decode(container(1, uint16(len(plainXML)), FormatPlain, payload), DecodeOptions{})
		require.NoError(t, err)
		assert.Equal(t, plainXML, out, "the size field should delimit the document")
	})

	t.Run("zero size takes the whole payload", func(t *testing.T) {
		out, err := Decode(container(1, 0, FormatPlain, plainXML), DecodeOptions{})
		require.NoError(t, err)
		assert.Equal(t, plainXML, out)
	})

	t.Run("implausible size takes the whole payload", func(t *testing.T) {
		out, err := Decode(container(1, 9999, FormatPlain, plainXML), DecodeOptions{})
		require.NoError(t, err)
		assert.Equal(t, plainXML, out)
	})

	t.Run("unknown format byte is plain", func(t *testing.T) {
		out, err := Decode(container(1, uint16(len(plainXML)), 7, plainXML), DecodeOptions{})
		require.NoError(t, err)
		assert.Equal(t, plainXML, out)
	})
}

func TestDecodeCompressedRoundTrip(t *testing.T) {
	payload := lzmaCompress(t, plainXML)
	raw := container(1, uint16(len(payload)), FormatLZMA, payload)

	out, err := Decode(raw, DecodeOptions{})
	require.NoError(t, err, "decoding a well-formed compressed container should succeed")
	assert.Equal(t, plainXML, out, "decompression should reproduce the original document")
}

func TestDecodeDeclaredLengthIsAuthoritative(t *testing.T) {
	// The declared length, not the stream, decides how many bytes come out.
	payload := lzmaCompress(t, plainXML)
	half := uint32(len(plainXML) / 2)
	binary.LittleEndian.PutUint32(payload[lzmaPropsLen:], half)

	out, err := Decode(container(1, uint16(len(payload)), FormatLZMA, payload), DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, plainXML[:half], out, "output should stop at the declared length")
}

func TestDecodeSizeBound(t *testing.T) {
	t.Run("default bound", func(t *testing.T) {
		payload := lzmaCompress(t, plainXML)
		binary.LittleEndian.PutUint32(payload[lzmaPropsLen:], DefaultMaxKeyboxSize+1)

		_, err := Decode(container(1, uint16(len(payload)), FormatLZMA, payload), DecodeOptions{})
		require.Error(t, err, "declared lengths above the bound must fail")
		assert.True(t, errors.Is(err, interfaces.ErrSizeBound), "should fail the size bound: %v", err)
		assert.True(t, errors.Is(err, interfaces.ErrDecode), "size bound failures classify as decode errors")
	})

	t.Run("configured bound", func(t *testing.T) {
		payload := lzmaCompress(t, plainXML)
		_, err := Decode(container(1, uint16(len(payload)), FormatLZMA, payload), DecodeOptions{MaxDecodedSize: 16})
		require.Error(t, err, "the configured maximum should override the default")
		assert.True(t, errors.Is(err, interfaces.ErrSizeBound))
	})
}

func TestDecodeBadCompressedContainers(t *testing.T) {
	intact := lzmaCompress(t, plainXML)

	testCases := []struct {
		name string
		raw  []byte
	}{
		{
			name: "payload shorter than prelude",
			raw:  container(1, 5, FormatLZMA, intact[:5]),
		},
		{
			name: "header size exceeds container",
			raw:  container(1, uint16(len(intact)+100), FormatLZMA, intact),
		},
		{
			name: "truncated stream",
			raw: func() []byte {
				trunc := intact[:lzmaPreludeLen+2]
				return container(1, uint16(len(trunc)), FormatLZMA, trunc)
			}(),
		},
		{
			name: "oversized dictionary",
			raw: func() []byte {
				tampered := append([]byte{}, intact...)
				binary.LittleEndian.PutUint32(tampered[1:lzmaPropsLen], 128<<20)
				return container(1, uint16(len(tampered)), FormatLZMA, tampered)
			}(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.raw, DecodeOptions{})
			require.Error(t, err, "malformed compressed containers must not decode")
			assert.True(t, errors.Is(err, interfaces.ErrDecode), "expected a decode error, got: %v", err)
		})
	}
}
