package polar

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Shared zstd state. EncodeAll and DecodeAll are safe for concurrent use, so
// one encoder and one decoder serve every archive.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

// maxPrealloc caps how much of a declared content length is allocated up
// front; the declared value comes straight from the input.
const maxPrealloc = 64 << 20

// maxContent bounds decompressed content.
const maxContent = 1 << 30

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithZeroFrames(true))
	if err != nil {
		panic("polar: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(maxContent))
	if err != nil {
		panic("polar: zstd decoder initialization failed: " + err.Error())
	}
}

type envelope struct {
	Version     int16
	Compression Compression
}

// readEnvelope validates the header and returns the decompressed content.
func readEnvelope(data []byte) (env envelope, content []byte, err error) {
	r := newReader(data)

	magic, err := r.readUint32()
	if err != nil {
		return
	}
	if magic != MagicNumber {
		err = ErrMalformedEnvelope
		return
	}

	if env.Version, err = r.readInt16(); err != nil {
		return
	}
	if env.Version < 1 || env.Version > LatestVersion {
		err = &VersionError{Max: LatestVersion, Found: env.Version}
		return
	}

	id, err := r.readByte()
	if err != nil {
		return
	}
	env.Compression = Compression(id)
	if !env.Compression.valid() {
		err = fmt.Errorf("%w: id %d", ErrInvalidCompression, id)
		return
	}

	length, err := r.readUvarint()
	if err != nil {
		return
	}
	payload := r.data[r.off:]

	switch env.Compression {
	case CompressionNone:
		if length > uint64(len(payload)) {
			err = fmt.Errorf("%w: content declares %d bytes, %d present", ErrTruncatedInput, length, len(payload))
			return
		}
		content = payload[:length]
	case CompressionZstd:
		content, err = decompress(payload, length)
	}
	return
}

func decompress(payload []byte, length uint64) ([]byte, error) {
	capacity := length
	if capacity > maxPrealloc {
		capacity = maxPrealloc
	}
	content, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, capacity))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailure, err)
	}
	if uint64(len(content)) != length {
		return nil, fmt.Errorf("%w: content is %d bytes, header declares %d", ErrDecompressionFailure, len(content), length)
	}
	return content, nil
}

// writeEnvelope wraps content in a header at the latest revision.
func writeEnvelope(content []byte, compression Compression) ([]byte, error) {
	if !compression.valid() {
		return nil, fmt.Errorf("%w: id %d", ErrInvalidCompression, uint8(compression))
	}

	var header struct {
		Magic       uint32
		Version     int16
		Compression Compression
	}
	header.Magic = MagicNumber
	header.Version = LatestVersion
	header.Compression = compression

	var out bytes.Buffer
	if err := binary.Write(&out, binary.BigEndian, header); err != nil {
		return nil, err
	}
	var length [binary.MaxVarintLen64]byte
	out.Write(length[:binary.PutUvarint(length[:], uint64(len(content)))])

	switch compression {
	case CompressionNone:
		out.Write(content)
	case CompressionZstd:
		out.Write(zstdEncoder.EncodeAll(content, nil))
	}
	return out.Bytes(), nil
}
