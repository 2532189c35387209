package crypto

import (
	"bytes"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, AddressLength)
	addr := MustNewAddress(ResourcePrefix, raw)
	encoded := addr.String()
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
	if decoded.Prefix() != ResourcePrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
}

func TestNewAddressRejectsShortInput(t *testing.T) {
	if _, err := NewAddress(ResourcePrefix, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestDeriveAddressDeterministic(t *testing.T) {
	a := DeriveAddress(ComponentPrefix, []byte("base"), []byte("quote"))
	b := DeriveAddress(ComponentPrefix, []byte("base"), []byte("quote"))
	if a != b {
		t.Fatalf("derivation not deterministic")
	}
	// part boundaries are length-prefixed
	c := DeriveAddress(ComponentPrefix, []byte("baseq"), []byte("uote"))
	if a == c {
		t.Fatalf("expected distinct addresses for distinct parts")
	}
	d := DeriveAddress(PoolUnitPrefix, []byte("base"), []byte("quote"))
	if bytes.Equal(a.Bytes(), d.Bytes()) {
		t.Fatalf("prefix must influence derivation")
	}
}

func TestAddressTextMarshalling(t *testing.T) {
	addr := DeriveAddress(ResourcePrefix, []byte("XRD"))
	text, err := addr.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Address
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != addr {
		t.Fatalf("text round trip mismatch")
	}
	var empty Address
	if err := empty.UnmarshalText([]byte("  ")); err != nil || !empty.IsZero() {
		t.Fatalf("expected zero address for empty text, err=%v", err)
	}
}
