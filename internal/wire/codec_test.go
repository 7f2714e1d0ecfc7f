package wire

import "testing"

// R1: encoding then decoding yields the original (key, name, modifier1).
func TestRoundTrip(t *testing.T) {
	ann := Announcement{Command: 0, Key: "example.com", Address: "10.0.0.1:9000", Modifier1: 5}
	decoded, err := Decode(Encode(ann))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != ann {
		t.Fatalf("round trip = %+v, want %+v", decoded, ann)
	}
}

func TestRoundTripZeroModifier1(t *testing.T) {
	ann := Announcement{Key: "host", Address: "1.2.3.4:80", Modifier1: 0}
	decoded, err := Decode(Encode(ann))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Key != ann.Key || decoded.Address != ann.Address || decoded.Modifier1 != 0 {
		t.Fatalf("round trip = %+v, want %+v", decoded, ann)
	}
}

func TestDecodeUnknownKeyIgnored(t *testing.T) {
	body := appendPair(nil, keyKey, "k")
	body = appendPair(body, keyAddress, "1.1.1.1:80")
	body = appendPair(body, "sign", "deadbeef")

	datagram := append(encodeHeader(Header{Command: 3}, len(body)), body...)
	ann, err := Decode(datagram)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ann.Key != "k" || ann.Address != "1.1.1.1:80" {
		t.Fatalf("unexpected announcement: %+v", ann)
	}
	if ann.Command != 3 {
		t.Fatalf("command = %d, want 3", ann.Command)
	}
}

func TestDecodeModifier1Optional(t *testing.T) {
	body := appendPair(nil, keyKey, "k")
	body = appendPair(body, keyAddress, "1.1.1.1:80")
	datagram := append(encodeHeader(Header{}, len(body)), body...)

	ann, err := Decode(datagram)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ann.Modifier1 != 0 {
		t.Fatalf("modifier1 = %d, want 0 (default)", ann.Modifier1)
	}
}

func TestDecodeMissingKeyRejected(t *testing.T) {
	body := appendPair(nil, keyAddress, "1.1.1.1:80")
	datagram := append(encodeHeader(Header{}, len(body)), body...)
	if _, err := Decode(datagram); err != ErrMissingKey {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestDecodeMissingAddressRejected(t *testing.T) {
	body := appendPair(nil, keyKey, "k")
	datagram := append(encodeHeader(Header{}, len(body)), body...)
	if _, err := Decode(datagram); err != ErrMissingAddr {
		t.Fatalf("expected ErrMissingAddr, got %v", err)
	}
}

func TestDecodeShortHeaderRejected(t *testing.T) {
	if _, err := Decode([]byte{1, 2}); err != ErrShortHeader {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestDecodeTruncatedBodyRejected(t *testing.T) {
	datagram := []byte{0, 3, 0, 0, 1, 0, 'k'} // declares klen=1 then cuts off before value
	if _, err := Decode(datagram); err != ErrTruncated && err != ErrShortBody {
		t.Fatalf("expected a decode error, got %v", err)
	}
}

func TestDecodeSizeExceedsRemainingRejected(t *testing.T) {
	datagram := []byte{0, 200, 0, 0} // header claims a 200-byte body with none present
	if _, err := Decode(datagram); err != ErrShortBody {
		t.Fatalf("expected ErrShortBody, got %v", err)
	}
}
