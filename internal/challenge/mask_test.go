package challenge

import "testing"

func TestParseMaskRejectsBadHex(t *testing.T) {
	if _, err := ParseMask("zz"); err == nil {
		t.Error("expected error for non-hex difficulty")
	}
	if _, err := ParseMask("abc"); err == nil {
		t.Error("expected error for odd-length difficulty")
	}
}

func TestMaskCheck(t *testing.T) {
	// 0x0f constrains the top four bits of the first byte to zero.
	m := Mask{0x0f}
	if !m.Check([]byte{0x0f, 0xff}) {
		t.Error("0x0f should satisfy mask 0x0f")
	}
	if !m.Check([]byte{0x00}) {
		t.Error("0x00 should satisfy mask 0x0f")
	}
	if m.Check([]byte{0x10}) {
		t.Error("0x10 must not satisfy mask 0x0f")
	}
	if m.Check([]byte{0xff}) {
		t.Error("0xff must not satisfy mask 0x0f")
	}
}

func TestMaskCheckLengthMismatch(t *testing.T) {
	// Only the overlapping prefix is checked, whichever side is shorter.
	long := Mask{0x0f, 0x00, 0x00}
	if !long.Check([]byte{0x0e}) {
		t.Error("digest shorter than mask: unchecked tail must not fail")
	}
	short := Mask{0x0f}
	if !short.Check([]byte{0x01, 0xff, 0xff}) {
		t.Error("mask shorter than digest: tail bytes are unconstrained")
	}
}

func TestMaskCheckEveryBitPosition(t *testing.T) {
	m := Mask{0x00, 0x00} // all 16 bits constrained
	if !m.Check([]byte{0x00, 0x00}) {
		t.Fatal("all-zero digest must satisfy all-constrained mask")
	}
	for byteIdx := 0; byteIdx < 2; byteIdx++ {
		for bit := 0; bit < 8; bit++ {
			digest := []byte{0x00, 0x00}
			digest[byteIdx] = 1 << bit
			if m.Check(digest) {
				t.Errorf("set bit at byte %d bit %d must fail the check", byteIdx, bit)
			}
		}
	}
}

func TestRequiredZeroBits(t *testing.T) {
	cases := []struct {
		mask Mask
		want uint32
	}{
		{Mask{0xff}, 0},
		{Mask{0x0f}, 4},
		{Mask{0x00}, 8},
		{Mask{0x00, 0x0f}, 12},
		{Mask{}, 0},
	}
	for _, tc := range cases {
		if got := tc.mask.RequiredZeroBits(); got != tc.want {
			t.Errorf("RequiredZeroBits(%x) = %d, want %d", []byte(tc.mask), got, tc.want)
		}
	}
}

func TestLeadingZeroBits(t *testing.T) {
	cases := []struct {
		mask Mask
		want uint32
	}{
		{Mask{0xff}, 0},
		{Mask{0x0f}, 4},
		{Mask{0x00, 0x0f}, 12},
		{Mask{0x00, 0x00}, 16},
		{Mask{0x00, 0xf0}, 8}, // run stops at the first set bit
		{Mask{0x80, 0x00}, 0},
	}
	for _, tc := range cases {
		if got := tc.mask.LeadingZeroBits(); got != tc.want {
			t.Errorf("LeadingZeroBits(%x) = %d, want %d", []byte(tc.mask), got, tc.want)
		}
	}
}
