package universe

import (
	"context"
	"testing"

	"github.com/cwyatt/polywatch/internal/domain"
)

type stubMarketStore struct {
	markets []domain.Market
}

func (s *stubMarketStore) Upsert(context.Context, domain.Market) error { return nil }
func (s *stubMarketStore) GetByCondition(context.Context, string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (s *stubMarketStore) ListTracked(context.Context, int) ([]domain.Market, error) {
	return s.markets, nil
}

func TestTokenIDs(t *testing.T) {
	store := &stubMarketStore{markets: []domain.Market{
		{ConditionID: "c1", Outcomes: []string{"Yes", "No"}, TokenIDs: []string{"a", "b"}},
		{ConditionID: "c2", Outcomes: []string{"No", "Yes"}, TokenIDs: []string{"d", "c"}},
		{ConditionID: "c3", TokenIDs: []string{"only-one"}},     // not binary, skipped
		{ConditionID: "c4", TokenIDs: []string{"a", "e"}},       // "a" deduplicated
	}}

	tokens, err := NewProvider(store, 0).TokenIDs(context.Background())
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}

	want := []string{"a", "b", "c", "d", "e"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	// c2's labels are reversed, so its YES token ("c") comes first.
	if tokens[2] != "c" || tokens[3] != "d" {
		t.Fatalf("label-reversed market not resolved: %v", tokens)
	}
}
