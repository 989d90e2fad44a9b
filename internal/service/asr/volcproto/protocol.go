// Package volcproto implements the binary framing used by the Volcengine
// bigmodel streaming recognizer.
package volcproto

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Version is the only protocol version the recognizer speaks.
const Version = 0b0001

// MessageType is the 4-bit frame type.
type MessageType uint8

const (
	FullClientRequest       MessageType = 0b0001
	AudioOnlyRequest        MessageType = 0b0010
	FullServerResponse      MessageType = 0b1001
	AudioOnlyServerResponse MessageType = 0b1011
	ErrorMessage            MessageType = 0b1111
)

// Flags is the 4-bit frame flag field.
type Flags uint8

const (
	NoSequence       Flags = 0b0000
	PositiveSequence Flags = 0b0001
	LastNoSequence   Flags = 0b0010
	NegativeSequence Flags = 0b0011
)

const sequenceMask Flags = 0b0011

// Serialization is the payload encoding.
type Serialization uint8

const (
	NoSerialization   Serialization = 0b0000
	JSONSerialization Serialization = 0b0001
)

// Compression is the payload compression.
type Compression uint8

const (
	NoCompression   Compression = 0b0000
	GzipCompression Compression = 0b0001
)

// Header is the fixed 4-byte frame header.
type Header struct {
	Version       uint8
	Size          uint8 // in 4-byte words
	Type          MessageType
	Flags         Flags
	Serialization Serialization
	Compression   Compression
	Reserved      uint8
}

// Frame is one decoded protocol message.
type Frame struct {
	Header    Header
	Sequence  int32
	ErrorCode uint32
	Payload   []byte
}

// NewHeader builds a one-word header.
func NewHeader(t MessageType, flags Flags, ser Serialization, comp Compression) Header {
	return Header{
		Version:       Version,
		Size:          0b0001,
		Type:          t,
		Flags:         flags,
		Serialization: ser,
		Compression:   comp,
	}
}

// Bytes packs the header nibbles.
func (h Header) Bytes() []byte {
	return []byte{
		h.Version<<4 | h.Size,
		uint8(h.Type)<<4 | uint8(h.Flags),
		uint8(h.Serialization)<<4 | uint8(h.Compression),
		h.Reserved,
	}
}

// ParseHeader decodes the first four bytes of a frame.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < 4 {
		return Header{}, fmt.Errorf("header too short: got %d bytes, need 4", len(data))
	}

	h := Header{
		Version:       data[0] >> 4 & 0x0F,
		Size:          data[0] & 0x0F,
		Type:          MessageType(data[1] >> 4 & 0x0F),
		Flags:         Flags(data[1] & 0x0F),
		Serialization: Serialization(data[2] >> 4 & 0x0F),
		Compression:   Compression(data[2] & 0x0F),
		Reserved:      data[3],
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

func (h Header) hasSequence() bool {
	switch h.Flags & sequenceMask {
	case PositiveSequence, NegativeSequence:
		return true
	default:
		return false
	}
}

// Encode serializes a frame. The payload must already be compressed.
func Encode(f *Frame) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 12+len(f.Payload)))
	buf.Write(f.Header.Bytes())

	word := make([]byte, 4)
	if f.Header.hasSequence() {
		binary.BigEndian.PutUint32(word, uint32(f.Sequence))
		buf.Write(word)
	}

	binary.BigEndian.PutUint32(word, uint32(len(f.Payload)))
	buf.Write(word)
	buf.Write(f.Payload)

	return buf.Bytes()
}

// Decode reads one frame from r.
func Decode(r io.Reader) (*Frame, error) {
	raw := make([]byte, 4)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	header, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}

	if extra := int(header.Size)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return nil, fmt.Errorf("read extended header: %w", err)
		}
	}

	f := &Frame{Header: header}

	if header.hasSequence() {
		var seq int32
		if err := binary.Read(r, binary.BigEndian, &seq); err != nil {
			return nil, fmt.Errorf("read sequence: %w", err)
		}
		f.Sequence = seq
	}

	if header.Type == ErrorMessage {
		if err := binary.Read(r, binary.BigEndian, &f.ErrorCode); err != nil {
			return nil, fmt.Errorf("read error code: %w", err)
		}
	}

	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, fmt.Errorf("read payload size: %w", err)
	}

	if size > 0 {
		f.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return nil, fmt.Errorf("read payload (expected %d bytes): %w", size, err)
		}
	}

	return f, nil
}

// NewFullClientRequest frames the session setup request.
func NewFullClientRequest(payload []byte, comp Compression) *Frame {
	return &Frame{
		Header:  NewHeader(FullClientRequest, NoSequence, JSONSerialization, comp),
		Payload: payload,
	}
}

// NewAudioRequest frames one audio chunk. The final chunk of a stream carries
// the negated sequence number.
func NewAudioRequest(audio []byte, sequence int32, last bool, comp Compression) *Frame {
	var flags Flags
	switch {
	case last && sequence != 0:
		flags = NegativeSequence
		sequence = -sequence
	case last:
		flags = LastNoSequence
	case sequence > 0:
		flags = PositiveSequence
	default:
		flags = NoSequence
	}

	return &Frame{
		Header:   NewHeader(AudioOnlyRequest, flags, NoSerialization, comp),
		Sequence: sequence,
		Payload:  audio,
	}
}

// IsLast reports whether the frame closes the stream.
func (f *Frame) IsLast() bool {
	switch f.Header.Flags & sequenceMask {
	case LastNoSequence, NegativeSequence:
		return true
	default:
		return f.Sequence < 0
	}
}

// IsError reports whether the server sent an error frame.
func (f *Frame) IsError() bool {
	return f.Header.Type == ErrorMessage
}
