// Package wire implements the length-prefixed JSON framing protocol shared
// by every link in the system: a 4-byte big-endian length N followed by
// exactly N bytes of a JSON object.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"tetriduel/internal/apperr"
)

// MaxFrameSize is the largest declared frame length accepted on any
// connection; an oversize declared length is a fatal protocol error.
const MaxFrameSize = 1 << 20 // 1 MiB

const lengthPrefixSize = 4

// Conn wraps a net.Conn with the framing codec. It is safe for one writer
// and one reader to use concurrently (the two directions don't share
// state), but not for concurrent writers or concurrent readers.
type Conn struct {
	raw net.Conn
}

// NewConn wraps an established connection for framed reads and writes.
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw}
}

// Raw returns the underlying connection, e.g. to close it or inspect its
// remote address.
func (c *Conn) Raw() net.Conn { return c.raw }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.raw.Close() }

// WriteMessage encodes v as JSON and writes one length-prefixed frame.
func (c *Conn) WriteMessage(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: marshal: %w", err)
	}
	return c.WriteRaw(body)
}

// WriteRaw writes a pre-encoded JSON object body as one frame.
func (c *Conn) WriteRaw(body []byte) error {
	if len(body) > MaxFrameSize {
		return apperr.New(apperr.MalformedFrame, "frame of %d bytes exceeds max %d", len(body), MaxFrameSize)
	}
	var header [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := c.raw.Write(header[:]); err != nil {
		return err
	}
	_, err := c.raw.Write(body)
	return err
}

// ReadMessage blocks for exactly one frame and decodes its JSON body into
// v. If deadline is non-zero, it is applied to the underlying connection
// for the duration of the read.
func (c *Conn) ReadMessage(v interface{}, deadline time.Duration) error {
	body, err := c.ReadRaw(deadline)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Wrap(apperr.MalformedFrame, err)
	}
	return nil
}

// ReadRaw blocks for exactly one frame and returns its raw JSON body,
// validated to decode as a JSON object (not an array, string, or scalar).
func (c *Conn) ReadRaw(deadline time.Duration) ([]byte, error) {
	if deadline > 0 {
		c.raw.SetReadDeadline(time.Now().Add(deadline))
		defer c.raw.SetReadDeadline(time.Time{})
	}

	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(c.raw, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, apperr.New(apperr.MalformedFrame, "declared frame length %d exceeds max %d", n, MaxFrameSize)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(c.raw, body); err != nil {
		return nil, err
	}

	if !isJSONObject(body) {
		return nil, apperr.New(apperr.MalformedFrame, "frame body is not a JSON object")
	}
	return body, nil
}

// isJSONObject reports whether body decodes as a JSON object: it checks
// json.Valid, then probes the type by decoding into a map of raw values.
func isJSONObject(body []byte) bool {
	if !json.Valid(body) {
		return false
	}
	var probe map[string]json.RawMessage
	return json.Unmarshal(body, &probe) == nil
}
