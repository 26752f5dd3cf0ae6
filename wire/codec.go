// Package wire implements the ASCII command/reply framing spoken by the
// projector's DMC controller: commands are single lines closed by a
// terminator, successful set replies carry a bare acknowledgement marker.
package wire

import (
	"errors"
	"strings"
)

// Terminator closes every command and reply line.
type Terminator string

const (
	// CRLF is the terminator used by the controller's network interface.
	CRLF Terminator = "\r\n"
	// CR is the terminator of the legacy direct-serial interface.
	CR Terminator = "\r"
)

// Ack is the marker wrapping successful set replies. A reply equal to the
// bare marker means "command accepted, no data".
const Ack = ":"

// ErrEmptyReply indicates a decode of a buffer that carried no reply at
// all, which is distinct from an accepted command with no data.
var ErrEmptyReply = errors.New("empty reply")

// Codec encodes commands and decodes replies for one terminator mode.
type Codec struct {
	Term Terminator
}

// NewCodec returns a codec for the given terminator, defaulting to CRLF.
func NewCodec(term Terminator) Codec {
	if term == "" {
		term = CRLF
	}
	return Codec{Term: term}
}

// Encode frames a command for the wire.
func (c Codec) Encode(cmd string) []byte {
	return []byte(cmd + string(c.Term))
}

// Decode strips the terminator and any acknowledgement markers from a raw
// reply. A bare acknowledgement decodes to the empty string with no error;
// an empty buffer is ErrEmptyReply.
func (c Codec) Decode(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", ErrEmptyReply
	}
	s := strings.TrimSuffix(string(raw), string(c.Term))
	// serial-mode replies may arrive with a lone CR even when the codec
	// expects CRLF on the command side
	s = strings.TrimRight(s, "\r\n")
	if s == "" {
		return "", ErrEmptyReply
	}
	return strings.Trim(s, Ack), nil
}
