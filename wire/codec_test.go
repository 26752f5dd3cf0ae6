package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode(t *testing.T) {
	c := NewCodec(CRLF)
	assert.Equal(t, []byte("az=?\r\n"), c.Encode("az=?"))

	legacy := NewCodec(CR)
	assert.Equal(t, []byte("az=?\r"), legacy.Encode("az=?"))
}

func TestDecode(t *testing.T) {
	c := NewCodec(CRLF)

	s, err := c.Decode([]byte("12.5\r\n"))
	assert.NoError(t, err)
	assert.Equal(t, "12.5", s)

	// acknowledgement markers are stripped
	s, err = c.Decode([]byte(":0.0:\r\n"))
	assert.NoError(t, err)
	assert.Equal(t, "0.0", s)

	// a bare ack is "accepted, no data"
	s, err = c.Decode([]byte(":\r\n"))
	assert.NoError(t, err)
	assert.Equal(t, "", s)
}

func TestDecodeEmpty(t *testing.T) {
	c := NewCodec(CRLF)

	_, err := c.Decode(nil)
	assert.Equal(t, ErrEmptyReply, err)

	_, err = c.Decode([]byte("\r\n"))
	assert.Equal(t, ErrEmptyReply, err)
}

func TestDecodeLegacyTerminator(t *testing.T) {
	// network codec still tolerates a CR-only reply from old firmware
	c := NewCodec(CRLF)
	s, err := c.Decode([]byte("42\r"))
	assert.NoError(t, err)
	assert.Equal(t, "42", s)

	legacy := NewCodec(CR)
	s, err = legacy.Decode([]byte("42\r"))
	assert.NoError(t, err)
	assert.Equal(t, "42", s)
}
