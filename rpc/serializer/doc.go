// Package serializer provides the envelope codec of the cluster bus. It defines a
// common interface and the implementations used to turn envelopes into frames and
// back, both on nodes and on the relay.
//
// The package focuses on:
//   - A consistent interface for every frame format
//   - Preserving the insertion order of envelope arguments across a round trip,
//     because handlers on the receiving side consume arguments positionally
//   - Rejecting frames without a command with common.ErrMalformedEnvelope
//
// Key Components:
//
//   - IEnvelopeSerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: Compact JSON in the {"c","a","t","s"} shape. Numbers are
//     decoded as json.Number so 64 bit ids survive, nested objects as ordered common.Args.
//
//   - zjsonSerializerImpl: The JSON format, zstd compressed once a frame grows beyond
//     CompressionThreshold. Uncompressed frames are still accepted, so nodes using
//     "zjson" and "json" can share a relay as long as the relay uses "zjson".
//
// Thread Safety:
//
//	All serializer implementations are safe for concurrent use across multiple
//	goroutines without additional synchronization.
//
// Usage:
//
//	s := serializer.NewJSONSerializer()
//	frame, err := s.Serialize(common.NewResponseEnvelope(nonce, results))
//	// ... send frame ...
//	var env common.Envelope
//	err = s.Deserialize(frame, &env)
package serializer
