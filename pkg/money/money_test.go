package money

import "testing"

func TestApplyBpsRoundsHalfUp(t *testing.T) {
	t.Parallel()

	cases := []struct {
		amount, bps, want int64
	}{
		{2000, 150, 30},
		{5000, 150, 75},
		{100, 150, 2},   // 1.5 -> 2
		{99, 150, 1},    // 1.485 -> 1
		{1033, 150, 15}, // 15.495 -> 15
		{1034, 150, 16}, // 15.51 -> 16
		{0, 150, 0},
		{5000, 0, 0},
	}
	for _, tc := range cases {
		if got := ApplyBps(tc.amount, tc.bps); got != tc.want {
			t.Fatalf("ApplyBps(%d, %d) = %d, want %d", tc.amount, tc.bps, got, tc.want)
		}
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	if got := Format(12105); got != "121.05" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := Format(7); got != "0.07" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := Format(2500); got != "25.00" {
		t.Fatalf("unexpected format %q", got)
	}
}

func TestParseDecimal(t *testing.T) {
	t.Parallel()

	got, err := ParseDecimal("121.05")
	if err != nil || got != 12105 {
		t.Fatalf("unexpected result %d err=%v", got, err)
	}
	got, err = ParseDecimal("25")
	if err != nil || got != 2500 {
		t.Fatalf("unexpected result %d err=%v", got, err)
	}
	if _, err := ParseDecimal("1.005"); err == nil {
		t.Fatal("expected sub-cent precision to be rejected")
	}
	if _, err := ParseDecimal("-1"); err == nil {
		t.Fatal("expected negative amount to be rejected")
	}
	if _, err := ParseDecimal("abc"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFromFloat(t *testing.T) {
	t.Parallel()

	got, err := FromFloat(15.5)
	if err != nil || got != 1550 {
		t.Fatalf("unexpected result %d err=%v", got, err)
	}
	got, err = FromFloat(0.1 + 0.2)
	if err == nil {
		t.Fatalf("expected float noise to be rejected, got %d", got)
	}
}
