package quorum

import (
	"testing"

	"github.com/certenio/manynet/pkg/crypto/bls"
)

func TestDisabledCollectorRejectsEverything(t *testing.T) {
	c := NewCollector(false)
	sk, pk, err := bls.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	sig := Sign(sk, 1, []byte("apphash"))
	if err := c.AddShare(1, []byte("apphash"), pk, sig); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if _, err := c.Certify(1); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestCertifyAggregatesSharesAndVerifies(t *testing.T) {
	c := NewCollector(true)
	appHash := []byte("committed-state-hash")

	for i := 0; i < 3; i++ {
		sk, pk, err := bls.GenerateKeyPair()
		if err != nil {
			t.Fatal(err)
		}
		sig := Sign(sk, 5, appHash)
		if err := c.AddShare(5, appHash, pk, sig); err != nil {
			t.Fatalf("AddShare %d: %v", i, err)
		}
	}

	cert, err := c.Certify(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(cert.Signers) != 3 {
		t.Fatalf("expected 3 signers, got %d", len(cert.Signers))
	}
	if !Verify(cert) {
		t.Fatalf("expected certificate to verify")
	}
}

func TestAddShareRejectsInvalidSignature(t *testing.T) {
	c := NewCollector(true)
	_, pk, err := bls.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	otherSK, _, err := bls.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	badSig := Sign(otherSK, 1, []byte("apphash"))
	if err := c.AddShare(1, []byte("apphash"), pk, badSig); err != ErrInvalidShare {
		t.Fatalf("expected ErrInvalidShare, got %v", err)
	}
}

func TestCertifyWithNoSharesErrors(t *testing.T) {
	c := NewCollector(true)
	if _, err := c.Certify(99); err != ErrNoShares {
		t.Fatalf("expected ErrNoShares, got %v", err)
	}
}
