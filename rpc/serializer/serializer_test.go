package serializer

import (
	"encoding/json"
	"errors"
	"github.com/ValentinKolb/dSync/rpc/common"
	"reflect"
	"strings"
	"testing"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IEnvelopeSerializer{
	"JSON": NewJSONSerializer,
	"ZJSON": func() IEnvelopeSerializer {
		s, err := NewZJSONSerializer()
		if err != nil {
			panic(err)
		}
		return s
	},
}

// testEnvelopes creates a set of envelopes using only values which decode to the same
// Go types they were built from (strings, bools, json.Number, []any, common.Args)
func testEnvelopes() []common.Envelope {
	return []common.Envelope{
		// Basic envelope with just a command
		{Command: "restart", Args: common.Args{}},

		// Broadcast instruction with nested inner envelope
		{
			Command: "SEND",
			Target:  common.Broadcast,
			Args: common.NewArgs(
				"c", "invalidate_cache",
				"a", common.NewArgs("identifier", json.Number("1"), "table", "guilds"),
			),
		},

		// Request with ordered per-fact kwargs
		{
			Command: "REQUEST",
			Target:  "3",
			Source:  "1",
			Args: common.NewArgs(
				"info", []any{"guild_count", "cache_stats"},
				"nonce", "7d4c",
				"args", common.NewArgs("cache_stats", common.NewArgs("table", "guilds")),
			),
		},

		// Response with 64 bit ids and mixed values
		{
			Command: "RESPONSE",
			Target:  "7d4c",
			Source:  "2",
			Args: common.NewArgs(
				"guild_count", json.Number("9007199254740993"),
				"has_support", nil,
				"ok", true,
			),
		},
	}
}

// TestSerializerRoundTrip tests that envelopes can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	envelopes := testEnvelopes()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, env := range envelopes {
				// Serialize
				data, err := serializer.Serialize(env)
				if err != nil {
					t.Errorf("Failed to serialize envelope %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Envelope
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize envelope %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(env, result) {
					t.Errorf("Envelope %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, env, result)
				}
			}
		})
	}
}

// TestArgumentOrder checks that argument order survives even when it is not sorted
func TestArgumentOrder(t *testing.T) {
	names := []string{"zeta", "alpha", "mu", "beta", "omega", "a"}
	args := common.Args{}
	for i, n := range names {
		args = append(args, common.Arg{Name: n, Value: json.Number(string(rune('0' + i)))})
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			data, err := serializer.Serialize(common.Envelope{Command: "reload", Args: args})
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			var result common.Envelope
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if !reflect.DeepEqual(result.Args.Names(), names) {
				t.Errorf("Expected order %v, got %v", names, result.Args.Names())
			}
		})
	}
}

// TestMalformedFrames tests that frames without a command are rejected
func TestMalformedFrames(t *testing.T) {
	frames := map[string]string{
		"missing command": `{"a":{"x":1}}`,
		"empty command":   `{"c":"","a":{}}`,
		"args not object": `{"c":"reload","a":[1,2]}`,
		"not json":        `hello`,
		"truncated":       `{"c":"reload","a":{"x":`,
		"object target":   `{"c":"reload","t":{"x":1}}`,
		"trailing data":   `{"c":"reload","a":{}}garbage`,
		"second object":   `{"c":"reload","a":{}}{"c":"close"}`,
		"stray brace":     `{"c":"reload","a":{}}}`,
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			for desc, frame := range frames {
				var env common.Envelope
				err := serializer.Deserialize([]byte(frame), &env)
				if !errors.Is(err, common.ErrMalformedEnvelope) {
					t.Errorf("%s: expected ErrMalformedEnvelope, got %v", desc, err)
				}
			}

			if _, err := serializer.Serialize(common.Envelope{}); !errors.Is(err, common.ErrMalformedEnvelope) {
				t.Errorf("Expected serialize of empty envelope to fail, got %v", err)
			}
		})
	}
}

// TestNumericTarget tests frames written by peers that send node ids as numbers
func TestNumericTarget(t *testing.T) {
	serializer := NewJSONSerializer()
	var env common.Envelope
	if err := serializer.Deserialize([]byte(`{"c":"restart","a":{},"t":4,"s":12}`), &env); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	if env.Target != "4" || env.Source != "12" {
		t.Errorf("Expected target 4 and source 12, got %q and %q", env.Target, env.Source)
	}
	if got := env.Positional(); len(got) != 1 || got[0] != "4" {
		t.Errorf("Expected the target as trailing positional value, got %v", got)
	}
}

// TestZJSONCompression tests that large frames are compressed and small ones are not
func TestZJSONCompression(t *testing.T) {
	serializer := testSerializers["ZJSON"]()

	small := common.Envelope{Command: "reload", Args: common.NewArgs("table", "guilds")}
	data, err := serializer.Serialize(small)
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}
	if data[0] != '{' {
		t.Errorf("Expected small frame to stay plain json")
	}

	large := common.Envelope{Command: "RESPONSE", Target: "n", Args: common.NewArgs("blob", strings.Repeat("x", 64*1024))}
	data, err = serializer.Serialize(large)
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}
	if len(data) >= 64*1024 {
		t.Errorf("Expected large frame to be compressed, got %d bytes", len(data))
	}
	var result common.Envelope
	if err := serializer.Deserialize(data, &result); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	if !reflect.DeepEqual(large, result) {
		t.Errorf("Large envelope doesn't match after round trip")
	}

	// plain json frames from "json" peers are accepted as well
	plain, _ := NewJSONSerializer().Serialize(large)
	if err := serializer.Deserialize(plain, &result); err != nil {
		t.Errorf("Failed to deserialize plain frame: %v", err)
	}
}
