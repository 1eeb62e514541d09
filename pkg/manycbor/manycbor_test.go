package manycbor

import (
	"math/big"
	"testing"
)

func TestBignumRoundTrip(t *testing.T) {
	cases := []int64{0, 1, 40, 100, 1 << 40}
	for _, c := range cases {
		b := NewBignum(big.NewInt(c))
		data, err := Marshal(b)
		if err != nil {
			t.Fatalf("marshal %d: %v", c, err)
		}
		var got Bignum
		if err := Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %d: %v", c, err)
		}
		if got.Int.Cmp(big.NewInt(c)) != 0 {
			t.Fatalf("round trip %d got %s", c, got.Int.String())
		}
	}
}

func TestEpochTimeRoundTrip(t *testing.T) {
	want := EpochTime(1735689600)
	data, err := Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	var got EpochTime
	if err := Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %d want %d", got, want)
	}
}

func TestIdentityBytesRoundTrip(t *testing.T) {
	want := IdentityBytes{0x02, 0xaa, 0xbb, 0xcc}
	data, err := Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	var got IdentityBytes
	if err := Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %x want %x", got, want)
	}
}
