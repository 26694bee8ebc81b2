package serializer

import "fmt"

// New returns the serializer registered under name ("json" or "zjson")
func New(name string) (IEnvelopeSerializer, error) {
	switch name {
	case "json", "":
		return NewJSONSerializer(), nil
	case "zjson":
		return NewZJSONSerializer()
	default:
		return nil, fmt.Errorf("invalid serializer %s (expected json or zjson)", name)
	}
}
