package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Envelope Structure
// --------------------------------------------------------------------------

// Broadcast is the target addressing every node of the cluster.
const Broadcast = "*"

// NodeID is the cluster id of a running node. It is unique per running instance.
type NodeID int64

// String returns the decimal representation used as envelope target.
func (id NodeID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseNodeID parses a decimal node id as found in envelope targets and sources.
func ParseNodeID(s string) (NodeID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return NodeID(id), nil
}

// Envelope is one bus message.
//
// On the wire it is {"c": command, "a": {args...}, "t": target, "s": source}.
// Target is either Broadcast, a node id or the correlation id of a pending request.
// Source is stamped by the relay with the id of the sending node.
type Envelope struct {
	Command string `json:"c"`
	Args    Args   `json:"a"`
	Target  string `json:"t,omitempty"`
	Source  string `json:"s,omitempty"`
}

// Kind returns the parsed command of the envelope.
func (e Envelope) Kind() (Command, error) {
	return ParseCommand(e.Command)
}

// Positional returns the argument values in order followed by the target, if set.
// This is the argument list local handlers are invoked with.
func (e Envelope) Positional() []any {
	values := e.Args.Values()
	if e.Target != "" {
		values = append(values, e.Target)
	}
	return values
}

// SourceNode parses the source node id stamped by the relay.
func (e Envelope) SourceNode() (NodeID, error) {
	if e.Source == "" {
		return 0, fmt.Errorf("envelope %q has no source", e.Command)
	}
	return ParseNodeID(e.Source)
}

// String returns a short representation for logging.
func (e Envelope) String() string {
	return fmt.Sprintf("%s(%s) t=%q s=%q", e.Command, strings.Join(e.Args.Names(), ","), e.Target, e.Source)
}

// --------------------------------------------------------------------------
// Command Union
// --------------------------------------------------------------------------

// Command is one of the known bus commands. Commands are case-insensitive on the wire.
type Command string

const (
	CmdIdentify       Command = "identify"         // first frame of every connection to the relay
	CmdSend           Command = "send"             // relay instruction: deliver the inner envelope to the target
	CmdRequest        Command = "request"          // query local facts of one or all nodes
	CmdResponse       Command = "response"         // answer to a request, targeted at its nonce
	CmdInvalidate     Command = "invalidate_cache" // drop a cached entry
	CmdClose          Command = "close"            // stop every process
	CmdRestart        Command = "restart"          // restart this node
	CmdReload         Command = "reload"           // reset cached state of a table
	CmdChangeLogLevel Command = "change_log_level" // change the log level at runtime
)

var knownCommands = map[Command]struct{}{
	CmdIdentify:       {},
	CmdSend:           {},
	CmdRequest:        {},
	CmdResponse:       {},
	CmdInvalidate:     {},
	CmdClose:          {},
	CmdRestart:        {},
	CmdReload:         {},
	CmdChangeLogLevel: {},
}

// ParseCommand maps a wire command to a known Command.
// Empty commands are malformed, anything else not known is ErrUnknownCommand.
func ParseCommand(s string) (Command, error) {
	c := Command(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return "", fmt.Errorf("%w: empty command", ErrMalformedEnvelope)
	}
	if _, ok := knownCommands[c]; !ok {
		return c, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
	return c, nil
}

// Wire returns the spelling used on the wire. Relay instructions are upper case.
func (c Command) Wire() string {
	switch c {
	case CmdIdentify, CmdSend, CmdRequest, CmdResponse:
		return strings.ToUpper(string(c))
	default:
		return string(c)
	}
}

// --------------------------------------------------------------------------
// Envelope Factory Functions
// --------------------------------------------------------------------------

// Client roles announced with IDENTIFY.
const (
	RoleNode   = "node"
	RoleClient = "client"
)

// NewIdentifyEnvelope creates the handshake frame a connection starts with.
func NewIdentifyEnvelope(id NodeID, role string) Envelope {
	return Envelope{
		Command: CmdIdentify.Wire(),
		Args:    NewArgs("node_id", int64(id), "role", role),
	}
}

// NewSendEnvelope wraps cmd and args so the relay delivers them to target.
func NewSendEnvelope(target string, cmd Command, args Args) Envelope {
	if args == nil {
		args = Args{}
	}
	return Envelope{
		Command: CmdSend.Wire(),
		Target:  target,
		Args:    NewArgs("c", cmd.Wire(), "a", args),
	}
}

// NewRequestEnvelope creates a request for the facts in info.
// kwargs holds per-fact keyword arguments keyed by fact name.
func NewRequestEnvelope(target, nonce string, info []string, kwargs Args) Envelope {
	names := make([]any, len(info))
	for i, n := range info {
		names[i] = n
	}
	if kwargs == nil {
		kwargs = Args{}
	}
	return Envelope{
		Command: CmdRequest.Wire(),
		Target:  target,
		Args:    NewArgs("info", names, "nonce", nonce, "args", kwargs),
	}
}

// NewResponseEnvelope creates the answer to the request with the given nonce.
func NewResponseEnvelope(nonce string, results Args) Envelope {
	if results == nil {
		results = Args{}
	}
	return Envelope{
		Command: CmdResponse.Wire(),
		Target:  nonce,
		Args:    results,
	}
}

// Unwrap extracts the inner envelope of a SEND instruction.
func (e Envelope) Unwrap() (Envelope, error) {
	c, ok := e.Args.Get("c")
	if !ok {
		return Envelope{}, fmt.Errorf("%w: send without inner command", ErrMalformedEnvelope)
	}
	cmd, ok := c.(string)
	if !ok || cmd == "" {
		return Envelope{}, fmt.Errorf("%w: send with invalid inner command %v", ErrMalformedEnvelope, c)
	}
	inner := Envelope{Command: cmd, Args: Args{}}
	if a, ok := e.Args.Get("a"); ok && a != nil {
		args, ok := a.(Args)
		if !ok {
			return Envelope{}, fmt.Errorf("%w: send with invalid inner args", ErrMalformedEnvelope)
		}
		inner.Args = args
	}
	return inner, nil
}
