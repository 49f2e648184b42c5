package wallets

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

type fakeTradeSource struct {
	pages [][]domain.Trade
	calls int
}

func (f *fakeTradeSource) Trades(_ context.Context, _ int, _ int) ([]domain.Trade, error) {
	if f.calls >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

type fakeTradeStore struct {
	rows   map[string]domain.Trade
	latest time.Time
}

func newFakeTradeStore() *fakeTradeStore {
	return &fakeTradeStore{rows: make(map[string]domain.Trade)}
}

func (f *fakeTradeStore) InsertIgnore(_ context.Context, tr domain.Trade) (bool, error) {
	if _, ok := f.rows[tr.TradePK]; ok {
		return false, nil
	}
	f.rows[tr.TradePK] = tr
	return true, nil
}

func (f *fakeTradeStore) LatestTradeTS(context.Context) (time.Time, error) {
	if f.latest.IsZero() {
		return time.Time{}, domain.ErrNotFound
	}
	return f.latest, nil
}

type fakeWalletStore struct {
	rows map[string]domain.Wallet
}

func newFakeWalletStore() *fakeWalletStore {
	return &fakeWalletStore{rows: make(map[string]domain.Wallet)}
}

func (f *fakeWalletStore) Get(_ context.Context, address string) (domain.Wallet, error) {
	w, ok := f.rows[address]
	if !ok {
		return domain.Wallet{}, domain.ErrNotFound
	}
	return w, nil
}

func (f *fakeWalletStore) Upsert(_ context.Context, w domain.Wallet) error {
	f.rows[w.Address] = w
	return nil
}

func (f *fakeWalletStore) CountFirstSeenSince(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type recordingSignalStore struct {
	events []domain.SignalEvent
}

func (f *recordingSignalStore) Insert(_ context.Context, ev domain.SignalEvent) (bool, error) {
	for _, prev := range f.events {
		if prev.DedupeKey == ev.DedupeKey {
			return false, nil
		}
	}
	f.events = append(f.events, ev)
	return true, nil
}
func (f *recordingSignalStore) ListUndispatched(context.Context, int) ([]domain.SignalEvent, error) {
	return nil, nil
}
func (f *recordingSignalStore) ExistsRecent(context.Context, domain.SignalType, string, time.Time) (bool, error) {
	return false, nil
}
func (f *recordingSignalStore) ListBefore(context.Context, time.Time) ([]domain.SignalEvent, error) {
	return nil, nil
}

func (f *recordingSignalStore) typesEmitted() []domain.SignalType {
	out := make([]domain.SignalType, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

func testClassifier(src *fakeTradeSource, trades *fakeTradeStore, wallets *fakeWalletStore, signals *recordingSignalStore, now time.Time) *Classifier {
	c := NewClassifier(Config{
		NewWalletWindow:        14 * 24 * time.Hour,
		DormantWindow:          30 * 24 * time.Hour,
		SafetyWindow:           5 * time.Minute,
		InitialLookback:        6 * time.Hour,
		LargeTradeUSDThreshold: 10_000,
		PageLimit:              100,
		MaxPages:               3,
	}, src, nil, trades, wallets, signals, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.now = func() time.Time { return now }
	return c
}

func trade(txHash, wallet string, ts time.Time, notional float64) domain.Trade {
	return domain.Trade{
		TxHash:      txHash,
		Wallet:      wallet,
		ConditionID: "cond-1",
		TokenID:     "tok-1",
		Side:        domain.TradeSideBuy,
		Price:       0.5,
		Size:        notional / 0.5,
		NotionalUSD: notional,
		TradeTS:     ts,
	}
}

func TestRunStoresAndEmits(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeTradeSource{pages: [][]domain.Trade{
		{trade("0xaaa", "wallet-1", now.Add(-time.Minute), 60_000)},
	}}
	trades := newFakeTradeStore()
	wallets := newFakeWalletStore()
	signals := &recordingSignalStore{}

	n, err := testClassifier(src, trades, wallets, signals, now).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 1 {
		t.Fatalf("inserted = %d, want 1", n)
	}

	// A brand-new wallet is inside its new-wallet window, so the trade emits
	// both the large-trade and new-wallet signals.
	types := signals.typesEmitted()
	if len(types) != 2 || types[0] != domain.SignalLargeTakerTrade || types[1] != domain.SignalLargeNewWalletTrade {
		t.Fatalf("emitted %v", types)
	}

	// 60k notional, +1 new wallet.
	if signals.events[0].Severity != 4 {
		t.Fatalf("severity = %d, want 4", signals.events[0].Severity)
	}

	w, err := wallets.Get(context.Background(), "wallet-1")
	if err != nil {
		t.Fatalf("wallet not created: %v", err)
	}
	if w.LifetimeNotionalUSD != 60_000 {
		t.Fatalf("lifetime notional = %v", w.LifetimeNotionalUSD)
	}
}

func TestRunDuplicateTradeIsNoop(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tr := trade("0xaaa", "wallet-1", now.Add(-time.Minute), 60_000)
	src := &fakeTradeSource{pages: [][]domain.Trade{{tr}, {tr}}}
	trades := newFakeTradeStore()
	wallets := newFakeWalletStore()
	signals := &recordingSignalStore{}

	c := testClassifier(src, trades, wallets, signals, now)
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	src.calls = 1 // serve the duplicate page on the second run
	n, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n != 0 {
		t.Fatalf("duplicate trade inserted again")
	}

	w, _ := wallets.Get(context.Background(), "wallet-1")
	if w.LifetimeNotionalUSD != 60_000 {
		t.Fatalf("duplicate trade mutated wallet: %v", w.LifetimeNotionalUSD)
	}
}

func TestRunDormantReactivation(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tradeTS := now.Add(-time.Minute)
	src := &fakeTradeSource{pages: [][]domain.Trade{
		{trade("0xbbb", "wallet-1", tradeTS, 20_000)},
	}}
	trades := newFakeTradeStore()
	wallets := newFakeWalletStore()
	// Last seen 40 days before the trade, well past the 30-day window, and
	// first seen long ago so the wallet is not also "new".
	wallets.rows["wallet-1"] = domain.Wallet{
		Address:     "wallet-1",
		FirstSeenAt: tradeTS.Add(-400 * 24 * time.Hour),
		LastSeenAt:  tradeTS.Add(-40 * 24 * time.Hour),
	}
	signals := &recordingSignalStore{}

	if _, err := testClassifier(src, trades, wallets, signals, now).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	types := signals.typesEmitted()
	if len(types) != 2 || types[1] != domain.SignalDormantReactivation {
		t.Fatalf("emitted %v, want large trade + dormant reactivation", types)
	}

	// Dormancy must be judged against the prior last_seen even though the
	// sweep advances it.
	w, _ := wallets.Get(context.Background(), "wallet-1")
	if !w.LastSeenAt.Equal(now) {
		t.Fatalf("last_seen not advanced: %v", w.LastSeenAt)
	}
}

func TestRunStopsAtAlreadySeenGround(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	trades := newFakeTradeStore()
	trades.latest = now.Add(-time.Hour)

	old := trade("0xold", "wallet-2", now.Add(-3*time.Hour), 15_000)
	recent := trade("0xnew", "wallet-1", now.Add(-time.Minute), 15_000)
	src := &fakeTradeSource{pages: [][]domain.Trade{{recent, old}}}
	wallets := newFakeWalletStore()
	signals := &recordingSignalStore{}

	n, err := testClassifier(src, trades, wallets, signals, now).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 1 {
		t.Fatalf("inserted = %d, want only the trade newer than the stop point", n)
	}
	if _, err := wallets.Get(context.Background(), "wallet-2"); err == nil {
		t.Fatalf("trade behind the stop point was processed")
	}
}
