package cli

import "testing"

func TestFormatCost(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{0.0000003, "<$0.000001"},
		{0.0006003, "$0.000600"},
		{0.009999, "$0.009999"},
		{0.01, "$0.0100"},
		{1.5, "$1.5000"},
	}
	for _, c := range cases {
		if got := FormatCost(c.in); got != c.want {
			t.Errorf("FormatCost(%g) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0.0000005, "$0.50/M tokens"},
		{0.00015, "$0.15/K tokens"},
		{0.0006, "$0.60/K tokens"},
		{0.006, "$0.0060/K tokens"},
		{0.15, "$0.1500/K tokens"},
	}
	for _, c := range cases {
		if got := FormatPrice(c.in); got != c.want {
			t.Errorf("FormatPrice(%g) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestShortHash(t *testing.T) {
	h := "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
	if got := ShortHash(h); got != "0x12345678...90abcdef" {
		t.Fatalf("ShortHash = %q", got)
	}
	if got := ShortHash("0xabc"); got != "0xabc" {
		t.Fatalf("ShortHash(short) = %q", got)
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		1234567:  "1,234,567",
		-1234567: "-1,234,567",
	}
	for in, want := range cases {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatUSDC(t *testing.T) {
	if got := FormatUSDC(0.0006); got != "0.000600 USDC" {
		t.Fatalf("FormatUSDC = %q", got)
	}
}
