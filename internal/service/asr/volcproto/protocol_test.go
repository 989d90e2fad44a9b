package volcproto

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte("test payload data")
	frame := NewFullClientRequest(payload, GzipCompression)

	decoded, err := Decode(bytes.NewReader(Encode(frame)))
	if err != nil {
		t.Fatalf("Decode err: %v", err)
	}

	if decoded.Header.Type != FullClientRequest {
		t.Errorf("message type mismatch: got %v", decoded.Header.Type)
	}
	if decoded.Header.Serialization != JSONSerialization || decoded.Header.Compression != GzipCompression {
		t.Errorf("unexpected header: %+v", decoded.Header)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Errorf("payload mismatch: got %q", decoded.Payload)
	}
}

func TestAudioRequestSequence(t *testing.T) {
	mid := NewAudioRequest([]byte{1, 2}, 7, false, NoCompression)
	decoded, err := Decode(bytes.NewReader(Encode(mid)))
	if err != nil {
		t.Fatalf("Decode err: %v", err)
	}
	if decoded.Sequence != 7 || decoded.IsLast() {
		t.Fatalf("unexpected mid frame: seq=%d last=%v", decoded.Sequence, decoded.IsLast())
	}

	last := NewAudioRequest(nil, 8, true, NoCompression)
	decoded, err = Decode(bytes.NewReader(Encode(last)))
	if err != nil {
		t.Fatalf("Decode err: %v", err)
	}
	if decoded.Sequence != -8 || !decoded.IsLast() {
		t.Fatalf("unexpected last frame: seq=%d last=%v", decoded.Sequence, decoded.IsLast())
	}
	if decoded.Header.Flags != NegativeSequence {
		t.Fatalf("expected negative sequence flag, got %v", decoded.Header.Flags)
	}
}

func TestDecodeErrorFrame(t *testing.T) {
	msg := []byte("invalid token")
	raw := NewHeader(ErrorMessage, NoSequence, JSONSerialization, NoCompression).Bytes()
	raw = append(raw, 0x02, 0xAE, 0xA5, 0x41) // 45000001
	raw = append(raw, 0x00, 0x00, 0x00, byte(len(msg)))
	raw = append(raw, msg...)

	decoded, err := Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode err: %v", err)
	}
	if !decoded.IsError() {
		t.Fatal("expected error frame")
	}
	if decoded.ErrorCode != 45000001 {
		t.Fatalf("unexpected error code: %d", decoded.ErrorCode)
	}
	if string(decoded.Payload) != "invalid token" {
		t.Fatalf("unexpected payload: %q", decoded.Payload)
	}
}

func TestParseHeaderRejectsUnknownVersion(t *testing.T) {
	if _, err := ParseHeader([]byte{0x21, 0x10, 0x10, 0x00}); err == nil {
		t.Fatal("expected version error")
	}
	if _, err := ParseHeader([]byte{0x11}); err == nil {
		t.Fatal("expected short header error")
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	data := []byte("This is a test string for compression testing. " +
		"Repeat: This is a test string for compression testing.")

	compressed, err := Compress(data, GzipCompression)
	if err != nil {
		t.Fatalf("Compress err: %v", err)
	}

	frame := &Frame{Header: NewHeader(FullServerResponse, NoSequence, JSONSerialization, GzipCompression), Payload: compressed}
	body, err := frame.Body()
	if err != nil {
		t.Fatalf("Body err: %v", err)
	}
	if !bytes.Equal(body, data) {
		t.Fatal("decompressed data does not match input")
	}

	if _, err := Compress(data, Compression(0b0111)); err == nil {
		t.Fatal("expected unsupported compression error")
	}
}
