package pricing

import "testing"

func TestCostKnownModel(t *testing.T) {
	got := Cost("gpt-4o", "openai", 1000, 1000)
	want := 0.005 + 0.015
	if got != want {
		t.Fatalf("Cost() = %v, want %v", got, want)
	}
}

func TestCostUnknownModel(t *testing.T) {
	if got := Cost("nonexistent-model", "openai", 1000, 1000); got != 0 {
		t.Fatalf("Cost() = %v, want 0", got)
	}
}

func TestCostMockProviderAlwaysZero(t *testing.T) {
	if got := Cost("gpt-4o", "mock", 1_000_000, 1_000_000); got != 0 {
		t.Fatalf("Cost() = %v, want 0 for mock provider", got)
	}
}

func TestCostRemoteProviderPricedByModel(t *testing.T) {
	got := Cost("gpt-4o", "remote", 1000, 1000)
	want := 0.005 + 0.015
	if got != want {
		t.Fatalf("Cost() = %v, want %v for remote provider", got, want)
	}
}

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		cost float64
		want string
	}{
		{0, "$0.00"},
		{0.000123, "$0.000123"},
		{1.5, "$1.5000"},
	}
	for _, c := range cases {
		if got := FormatUSD(c.cost); got != c.want {
			t.Fatalf("FormatUSD(%v) = %q, want %q", c.cost, got, c.want)
		}
	}
}
