package serializer

import "github.com/ValentinKolb/dSync/rpc/common"

// IEnvelopeSerializer is the interface for all envelope codecs
type IEnvelopeSerializer interface {
	// Serialize serializes an Envelope into a single frame
	// It returns the serialized frame and an error if any
	Serialize(env common.Envelope) ([]byte, error)
	// Deserialize deserializes a frame into an Envelope
	// Frames without a command fail with common.ErrMalformedEnvelope
	Deserialize(b []byte, env *common.Envelope) error
	// Name returns the name the serializer is selected by
	Name() string
}
