package deeplink

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder("https://app.gastopup.example")
	if err != nil {
		t.Fatalf("builder construction failed: %v", err)
	}
	return b
}

func TestBuildCanonicalForm(t *testing.T) {
	b := newTestBuilder(t)
	link := b.Build("base", decimal.NewFromInt(5), "0xAbC0000000000000000000000000000000000999")

	want := "https://app.gastopup.example/deeplink?chain=base&amount=5&address=0xAbC0000000000000000000000000000000000999"
	if link != want {
		t.Fatalf("unexpected link:\n got %s\nwant %s", link, want)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	b := newTestBuilder(t)
	amount := decimal.RequireFromString("0.05")
	first := b.Build("ethereum", amount, "0x1111111111111111111111111111111111111111")
	second := b.Build("ethereum", amount, "0x1111111111111111111111111111111111111111")
	if first != second {
		t.Fatalf("same inputs must yield the same URL: %s vs %s", first, second)
	}
}

func TestBuildPercentEncodesValues(t *testing.T) {
	b := newTestBuilder(t)
	link := b.Build("chain with space", decimal.NewFromInt(1), "addr&chars=1")

	if strings.Contains(link, "chain with space") {
		t.Fatal("chain value must be percent-encoded")
	}
	if strings.Contains(link, "address=addr&chars") {
		t.Fatal("address value must be percent-encoded")
	}

	parsed, err := Parse(link)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.Chain != "chain with space" || parsed.Address != "addr&chars=1" {
		t.Fatalf("encoded values must round-trip, got %+v", parsed)
	}
}

func TestRoundTrip(t *testing.T) {
	b := newTestBuilder(t)
	cases := []struct {
		chain   string
		amount  string
		address string
	}{
		{"base", "5", "0xAbC0000000000000000000000000000000000999"},
		{"ethereum", "0.05", "0x1111111111111111111111111111111111111111"},
		{"optimism", "12.345678", "0x2222222222222222222222222222222222222222"},
	}

	for _, tc := range cases {
		amount := decimal.RequireFromString(tc.amount)
		link := b.Build(tc.chain, amount, tc.address)
		parsed, err := Parse(link)
		if err != nil {
			t.Fatalf("parse %s failed: %v", link, err)
		}
		if parsed.Chain != tc.chain || parsed.Address != tc.address || !parsed.Amount.Equal(amount) {
			t.Fatalf("round trip mismatch: %+v vs %+v", tc, parsed)
		}
	}
}

func TestParseRejectsIncompleteLinks(t *testing.T) {
	for _, raw := range []string{
		"https://app.gastopup.example/deeplink?chain=base&amount=5",
		"https://app.gastopup.example/other?chain=base&amount=5&address=0x1",
		"https://app.gastopup.example/deeplink?chain=base&amount=abc&address=0x1",
	} {
		if _, err := Parse(raw); err == nil {
			t.Fatalf("expected parse error for %s", raw)
		}
	}
}

func TestNewBuilderRejectsBadOrigins(t *testing.T) {
	for _, origin := range []string{"", "app.gastopup.example", "/relative"} {
		if _, err := NewBuilder(origin); err == nil {
			t.Fatalf("expected error for origin %q", origin)
		}
	}
}

func TestNewBuilderTrimsTrailingSlash(t *testing.T) {
	b, err := NewBuilder("https://app.gastopup.example/")
	if err != nil {
		t.Fatalf("builder construction failed: %v", err)
	}
	link := b.Build("base", decimal.NewFromInt(1), "0x1")
	if strings.Contains(link, "example//deeplink") {
		t.Fatalf("double slash in link: %s", link)
	}
}
