package keybox

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/attestify/keybox-provisioner/interfaces"
	"github.com/ulikunitz/xz/lzma"
)

const (
	// HeaderLen is the size of the keybox container header.
	HeaderLen = 8

	// headerVersion is the only container version with defined semantics.
	// Headerless keyboxes start with "<?xm", which never decodes to it.
	headerVersion = 1

	// Values of the header format byte.
	FormatPlain uint8 = 0
	FormatLZMA  uint8 = 1

	// Classic LZMA prelude: 5 properties bytes followed by an 8-byte size
	// field of which only the low 4 bytes are honored.
	lzmaPropsLen   = 5
	lzmaPreludeLen = lzmaPropsLen + 8

	// maxLZMADictSize caps the dictionary size a container may declare in
	// its properties block, bounding decoder allocation.
	maxLZMADictSize = 64 << 20
)

// DefaultMaxKeyboxSize bounds both the container size accepted from a
// retrieval source and the decompressed size a compressed container may
// declare.
const DefaultMaxKeyboxSize = 64 << 10

// Header is the fixed 8-byte prefix of a versioned keybox container.
type Header struct {
	// Version of the container layout.
	Version uint16

	// Size of the payload following the header. For compressed containers
	// this is the compressed payload size including the LZMA prelude.
	Size uint16

	// Format is FormatPlain or FormatLZMA.
	Format uint8
}

// Compressed reports whether the header calls for LZMA decompression.
// Only version 1 with the LZMA format byte does; every other combination is
// treated as plain XML.
func (h Header) Compressed() bool {
	return h.Version == headerVersion && h.Format == FormatLZMA
}

// ParseHeader reads the container header from the front of raw. ok is false
// when raw is too short to carry one, in which case the whole buffer is
// already XML.
func ParseHeader(raw []byte) (h Header, ok bool) {
	if len(raw) < HeaderLen {
		return Header{}, false
	}
	return Header{
		Version: binary.LittleEndian.Uint16(raw[0:2]),
		Size:    binary.LittleEndian.Uint16(raw[2:4]),
		Format:  raw[4],
	}, true
}

// DecodeOptions configures container decoding.
type DecodeOptions struct {
	// MaxDecodedSize bounds the decompressed length a container may
	// declare. Zero means DefaultMaxKeyboxSize. The declared length is
	// vendor-controlled input and is checked before any output allocation.
	MaxDecodedSize int
}

func (o DecodeOptions) maxDecodedSize() int {
	if o.MaxDecodedSize <= 0 {
		return DefaultMaxKeyboxSize
	}
	return o.MaxDecodedSize
}

// Decode interprets the container header and returns the contained XML
// bytes, decompressing when the header calls for it. Buffers without a
// version-1 header pass through unchanged. The input is never mutated.
func Decode(raw []byte, opts DecodeOptions) ([]byte, error) {
	hdr, ok := ParseHeader(raw)
	if !ok || hdr.Version != headerVersion {
		return raw, nil
	}

	payload := raw[HeaderLen:]

	if !hdr.Compressed() {
		// Plain XML behind a header. The size field bounds the document
		// when plausible; otherwise everything after the header is taken.
		if int(hdr.Size) > 0 && int(hdr.Size) <= len(payload) {
			return payload[:hdr.Size], nil
		}
		return payload, nil
	}

	if int(hdr.Size) < lzmaPreludeLen || int(hdr.Size) > len(payload) {
		return nil, fmt.Errorf("%w: header declares %d payload bytes, container holds %d",
			interfaces.ErrDecode, hdr.Size, len(payload))
	}

	return inflate(payload[:hdr.Size], opts.maxDecodedSize())
}

// inflate decompresses a classic-LZMA payload, bounding both the declared
// output length and the declared dictionary size before any allocation.
func inflate(payload []byte, maxSize int) ([]byte, error) {
	if len(payload) < lzmaPreludeLen {
		return nil, fmt.Errorf("%w: compressed payload of %d bytes is shorter than the %d-byte prelude",
			interfaces.ErrDecode, len(payload), lzmaPreludeLen)
	}

	props := payload[:lzmaPropsLen]
	declared := binary.LittleEndian.Uint32(payload[lzmaPropsLen : lzmaPropsLen+4])
	if uint64(declared) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: container declares %d bytes, maximum is %d",
			interfaces.ErrSizeBound, declared, maxSize)
	}

	if dictSize := binary.LittleEndian.Uint32(props[1:lzmaPropsLen]); dictSize > maxLZMADictSize {
		return nil, fmt.Errorf("%w: dictionary size %d exceeds %d",
			interfaces.ErrDecode, dictSize, maxLZMADictSize)
	}

	// Rebuild the prelude with the declared length widened to the u64 the
	// decoder expects. The upper 4 bytes of the size field are reserved and
	// ignored regardless of their content.
	prelude := make([]byte, lzmaPreludeLen)
	copy(prelude, props)
	binary.LittleEndian.PutUint64(prelude[lzmaPropsLen:], uint64(declared))

	r, err := lzma.NewReader(io.MultiReader(bytes.NewReader(prelude), bytes.NewReader(payload[lzmaPreludeLen:])))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrDecode, err)
	}

	out := make([]byte, int(declared))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: compressed stream truncated: %v", interfaces.ErrDecode, err)
	}
	return out, nil
}
