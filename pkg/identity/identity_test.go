package identity

import (
	"crypto/ed25519"
	"strings"
	"testing"
)

func TestAnonymousText(t *testing.T) {
	if got := Anonymous.ToText(); got != "oaa" {
		t.Fatalf("Anonymous.ToText() = %q, want oaa", got)
	}
	id, err := FromText("oaa")
	if err != nil {
		t.Fatalf("FromText(oaa) error: %v", err)
	}
	if !id.IsAnonymous() {
		t.Fatalf("FromText(oaa) did not round-trip to Anonymous")
	}
}

func TestRoundTripTextAndBytes(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	pk := NewEd25519KeyPair(pub, priv)
	id, err := Addressable(pk)
	if err != nil {
		t.Fatal(err)
	}

	text := id.ToText()
	if !strings.HasPrefix(text, "o") {
		t.Fatalf("textual identity must start with 'o', got %q", text)
	}
	if len(text) != 50 {
		t.Fatalf("S1: expected 50-character textual identity, got %d: %q", len(text), text)
	}
	if text != strings.ToLower(text) {
		t.Fatalf("textual identity must be lowercase, got %q", text)
	}

	back, err := FromText(text)
	if err != nil {
		t.Fatalf("FromText round-trip error: %v", err)
	}
	if !back.Equal(id) {
		t.Fatalf("FromText(ToText(id)) != id")
	}

	raw := id.ToBytes()
	back2, err := FromBytes(raw)
	if err != nil {
		t.Fatalf("FromBytes error: %v", err)
	}
	if !back2.Equal(id) {
		t.Fatalf("FromBytes(ToBytes(id)) != id")
	}
}

func TestS1FixedBody(t *testing.T) {
	// 29-byte body 01 || 28 zero bytes, per spec.md scenario S1.
	raw := make([]byte, 29)
	raw[0] = byte(KindPublicKey)
	id, err := FromBytes(raw)
	if err != nil {
		t.Fatal(err)
	}
	text := id.ToText()
	if len(text) != 50 {
		t.Fatalf("expected 50-char encoding, got %d (%q)", len(text), text)
	}
	if text[0] != 'o' {
		t.Fatalf("expected 'o' prefix, got %q", text)
	}
	back, err := FromText(text)
	if err != nil {
		t.Fatalf("FromText failed: %v", err)
	}
	if !back.Equal(id) {
		t.Fatalf("round trip mismatch")
	}

	truncated := text[:len(text)-1]
	if _, err := FromText(truncated); err == nil {
		t.Fatalf("truncating the last character must fail to parse")
	}
}

func TestChecksumDetectsSingleBitCorruption(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	pk := NewEd25519KeyPair(pub, priv)
	id, err := Addressable(pk)
	if err != nil {
		t.Fatal(err)
	}
	text := id.ToText()

	alphabet := rfc4648Alphabet
	for i := 3; i < len(text); i++ { // skip the "o" + 2-char checksum prefix
		orig := text[i]
		origIdx := strings.IndexByte(alphabet, orig)
		for _, c := range alphabet {
			if byte(c) == orig {
				continue
			}
			corrupted := text[:i] + string(c) + text[i+1:]
			back, err := FromText(corrupted)
			if err != nil {
				continue // detected: good
			}
			if back.Equal(id) {
				t.Fatalf("corrupting char %d (idx %d->%c) silently reproduced the original identity", i, origIdx, c)
			}
		}
	}
}

func TestFromTextInvalidPrefix(t *testing.T) {
	if _, err := FromText("xaa"); err != ErrInvalidPrefix {
		t.Fatalf("expected ErrInvalidPrefix, got %v", err)
	}
}

func TestSubresourceRoundTrip(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	pk := NewEd25519KeyPair(pub, priv)
	base, err := Addressable(pk)
	if err != nil {
		t.Fatal(err)
	}
	sub := base.WithSubresource(42)
	if !sub.CanBeDestination() || !sub.CanBeSource() {
		t.Fatalf("subresource identity should be usable as from/to")
	}
	id, ok := sub.SubresourceID()
	if !ok || id != 42 {
		t.Fatalf("expected subresource id 42, got %d (ok=%v)", id, ok)
	}
	if !sub.Base().Equal(base) {
		t.Fatalf("Base() must recover the originating Addressable identity")
	}

	text := sub.ToText()
	back, err := FromText(text)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(sub) {
		t.Fatalf("subresource round trip mismatch")
	}
}

func TestSignVerifyEd25519(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	pk := NewEd25519KeyPair(pub, priv)
	msg := []byte("hello network")
	sig, err := pk.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := pk.Public().Verify(msg, sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("expected valid signature to verify")
	}
	sig[len(sig)-1] ^= 0xff
	ok, _ = pk.Public().Verify(msg, sig)
	if ok {
		t.Fatalf("tampered signature must not verify")
	}
}
