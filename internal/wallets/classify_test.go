package wallets

import (
	"testing"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

var baseTime = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestIsNewWallet(t *testing.T) {
	w := domain.Wallet{FirstSeenAt: baseTime}
	window := 14 * 24 * time.Hour

	if !IsNewWallet(w, baseTime.Add(3*24*time.Hour), window) {
		t.Fatalf("trade 3d after first sighting should be new inside a 14d window")
	}
	if !IsNewWallet(w, baseTime.Add(window), window) {
		t.Fatalf("trade exactly at the window boundary should still be new")
	}
	if IsNewWallet(w, baseTime.Add(window+time.Second), window) {
		t.Fatalf("trade past the window should not be new")
	}
}

func TestIsDormant(t *testing.T) {
	w := domain.Wallet{LastSeenAt: baseTime}
	window := 7 * 24 * time.Hour

	if !IsDormant(w, baseTime.Add(10*24*time.Hour), window) {
		t.Fatalf("trade 10d after last sighting should be dormant with a 7d window")
	}
	if !IsDormant(w, baseTime.Add(window), window) {
		t.Fatalf("trade exactly at the boundary counts as dormant")
	}
	if IsDormant(w, baseTime.Add(window-time.Second), window) {
		t.Fatalf("trade inside the window should not be dormant")
	}
	if IsDormant(domain.Wallet{}, baseTime, window) {
		t.Fatalf("wallet never seen cannot be dormant")
	}
}

func TestSeverityForTrade(t *testing.T) {
	tests := []struct {
		notional     float64
		isNew        bool
		lowLiquidity bool
		want         int
	}{
		{1_000_000, false, false, 5},
		{250_000, false, false, 4},
		{50_000, false, false, 3},
		{10_000, false, false, 2},
		{10_000, true, false, 3},
		{10_000, true, true, 4},
		{250_000, true, true, 5}, // clamped
		{1_000_000, true, true, 5},
	}
	for _, tt := range tests {
		if got := SeverityForTrade(tt.notional, tt.isNew, tt.lowLiquidity); got != tt.want {
			t.Errorf("SeverityForTrade(%v, %v, %v) = %d, want %d",
				tt.notional, tt.isNew, tt.lowLiquidity, got, tt.want)
		}
	}
}

func TestNormalizeAddress(t *testing.T) {
	in := "0x52908400098527886e0f7030069857d2e4169ee7"
	want := "0x52908400098527886E0F7030069857D2E4169EE7"
	if got := NormalizeAddress(in); got != want {
		t.Fatalf("NormalizeAddress(%q) = %q, want %q", in, got, want)
	}
	if got := NormalizeAddress("not-an-address"); got != "not-an-address" {
		t.Fatalf("non-hex identifier must pass through, got %q", got)
	}
}
