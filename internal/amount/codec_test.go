package amount

import "testing"

func TestCodecRoundTrip(t *testing.T) {
	c := NewCodec()
	stakes := []float64{0.1, 1.0, 2.5, 10.0}
	for _, stake := range stakes {
		base := FromStake(stake)
		for optionIdx := 0; optionIdx < 2; optionIdx++ {
			tagged := c.Encode(optionIdx, base)
			got, ok := c.Decode(tagged, 2)
			if !ok {
				t.Fatalf("stake %v option %d: decode failed", stake, optionIdx)
			}
			if got != optionIdx {
				t.Fatalf("stake %v option %d: got %d", stake, optionIdx, got)
			}
		}
	}
}

func TestCodecRemainderOutOfRange(t *testing.T) {
	c := NewCodec()
	// remainder 5 with only two options (indices 0,1) is out of range.
	_, ok := c.Decode(100_005, 2)
	if ok {
		t.Fatal("expected decode to fail for out-of-range remainder")
	}
}

func TestCodecNoSignal(t *testing.T) {
	c := NewCodec()
	for _, remainder := range []Amount{0, 6, 7, 8, 9, 100_000} {
		if _, ok := c.Decode(remainder, 2); ok {
			t.Fatalf("remainder %d: expected no option signal", remainder)
		}
	}
}

func TestAmountString(t *testing.T) {
	a := FromStake(1.000001)
	if got, want := a.String(), "1.000001"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestAmountDivTruncates(t *testing.T) {
	pot := FromStake(1.0).Mul(3)
	per := pot.Div(7) // 3_000_000 / 7 = 428_571.43
	if per != 428_571 {
		t.Fatalf("got %d want 428571", per)
	}
}
