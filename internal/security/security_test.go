package security

import "testing"

func TestBlowfishEncoder_RoundTrip(t *testing.T) {
	enc, err := NewBlowfishEncoder("changethisinproductiontoo")
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}

	for _, id := range []int64{1, 42, 1234567, 12345678, 9876543210} {
		encoded := enc.EncodeID(id)
		if len(encoded)%16 != 0 {
			t.Errorf("Expected hex of whole blocks for %d, got %q", id, encoded)
		}
		decoded, err := enc.DecodeID(encoded)
		if err != nil {
			t.Fatalf("Failed to decode %q: %v", encoded, err)
		}
		if decoded != id {
			t.Errorf("Expected %d, got %d", id, decoded)
		}
	}
}

func TestBlowfishEncoder_FullBlockPadding(t *testing.T) {
	enc, _ := NewBlowfishEncoder("secret")
	// Eight digits already fill a block, so a second block of padding is added.
	if got := len(enc.EncodeID(12345678)); got != 32 {
		t.Errorf("Expected 32 hex characters, got %d", got)
	}
	if got := len(enc.EncodeID(5)); got != 16 {
		t.Errorf("Expected 16 hex characters, got %d", got)
	}
}

func TestBlowfishEncoder_Invalid(t *testing.T) {
	enc, _ := NewBlowfishEncoder("secret")
	for _, bad := range []string{"", "zz", "abcd"} {
		if _, err := enc.DecodeID(bad); err == nil {
			t.Errorf("Expected error decoding %q", bad)
		}
	}
	if _, err := NewBlowfishEncoder(""); err == nil {
		t.Error("Expected error for empty secret")
	}
}

func TestPlainEncoder(t *testing.T) {
	var enc IDEncoder = PlainEncoder{}
	if enc.EncodeID(7) != "7" {
		t.Errorf("Expected '7', got %q", enc.EncodeID(7))
	}
	if _, err := enc.DecodeID("x"); err == nil {
		t.Error("Expected error for non-numeric id")
	}
}
