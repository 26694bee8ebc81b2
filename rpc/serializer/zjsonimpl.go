package serializer

import (
	"bytes"
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/klauspost/compress/zstd"
)

const (
	// CompressionThreshold is the frame size above which zjson compresses.
	// Small frames (invalidations, most responses) are not worth the zstd overhead.
	CompressionThreshold = 2048

	// MaxDecompressedSize caps decompression to guard against compression bombs.
	MaxDecompressedSize = 8 * 1024 * 1024
)

// zstdMagic starts every zstd frame. JSON frames always start with '{'.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// NewZJSONSerializer creates a json serializer which zstd compresses large frames
func NewZJSONSerializer() (IEnvelopeSerializer, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecompressedSize))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &zjsonSerializerImpl{
		json:    jsonSerializerImpl{},
		encoder: enc,
		decoder: dec,
	}, nil
}

// zjsonSerializerImpl implements the IEnvelopeSerializer interface using json encoding
// and zstd compression. EncodeAll and DecodeAll are safe for concurrent use.
type zjsonSerializerImpl struct {
	json    jsonSerializerImpl
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IEnvelopeSerializer)
// --------------------------------------------------------------------------

func (z *zjsonSerializerImpl) Name() string {
	return "zjson"
}

func (z *zjsonSerializerImpl) Serialize(env common.Envelope) ([]byte, error) {
	b, err := z.json.Serialize(env)
	if err != nil {
		return nil, err
	}
	if len(b) <= CompressionThreshold {
		return b, nil
	}
	return z.encoder.EncodeAll(b, make([]byte, 0, len(b)/2)), nil
}

func (z *zjsonSerializerImpl) Deserialize(b []byte, env *common.Envelope) error {
	if bytes.HasPrefix(b, zstdMagic) {
		plain, err := z.decoder.DecodeAll(b, nil)
		if err != nil {
			return fmt.Errorf("%w: decompress: %v", common.ErrMalformedEnvelope, err)
		}
		b = plain
	}
	return z.json.Deserialize(b, env)
}
