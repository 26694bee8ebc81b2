package serializer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/common"
	"io"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IEnvelopeSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IEnvelopeSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// wireEnvelope is the decoding view of a frame. The target and source may be sent
// as numbers by other implementations, so they are decoded loosely.
type wireEnvelope struct {
	C *string     `json:"c"`
	A common.Args `json:"a"`
	T any         `json:"t"`
	S any         `json:"s"`
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IEnvelopeSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Name() string {
	return "json"
}

func (j jsonSerializerImpl) Serialize(env common.Envelope) ([]byte, error) {
	if env.Command == "" {
		return nil, fmt.Errorf("%w: missing command", common.ErrMalformedEnvelope)
	}
	if env.Args == nil {
		env.Args = common.Args{}
	}
	return json.Marshal(env)
}

func (j jsonSerializerImpl) Deserialize(b []byte, env *common.Envelope) error {
	var w wireEnvelope
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedEnvelope, err)
	}
	// a frame holds exactly one object
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after envelope", common.ErrMalformedEnvelope)
	}
	if w.C == nil || *w.C == "" {
		return fmt.Errorf("%w: missing command", common.ErrMalformedEnvelope)
	}

	target, err := scalarString(w.T)
	if err != nil {
		return fmt.Errorf("%w: target: %v", common.ErrMalformedEnvelope, err)
	}
	source, err := scalarString(w.S)
	if err != nil {
		return fmt.Errorf("%w: source: %v", common.ErrMalformedEnvelope, err)
	}

	args := w.A
	if args == nil {
		args = common.Args{}
	}
	*env = common.Envelope{
		Command: *w.C,
		Args:    args,
		Target:  target,
		Source:  source,
	}
	return nil
}

// scalarString converts a decoded string or number to its string form.
func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	default:
		return "", fmt.Errorf("unexpected %T", v)
	}
}
