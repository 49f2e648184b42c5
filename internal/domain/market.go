package domain

import (
	"strings"
	"time"
)

// Market represents a binary prediction market: one condition with exactly
// two complementary outcome tokens.
type Market struct {
	ConditionID string
	MarketID    string
	Slug        string
	Question    string
	Outcomes    []string // e.g. ["Yes","No"]
	TokenIDs    []string // one token id per outcome, same order
	NegRisk     bool
	StartTime   *time.Time
	EndTime     *time.Time
	UpdatedAt   time.Time
}

// BinaryTokens resolves the YES and NO token ids for the market. Outcome
// labels "yes"/"no" (case-insensitive) take precedence; when the labels are
// anything else, the first token is treated as YES and the second as NO.
// ok is false when the market does not carry exactly two tokens.
func (m Market) BinaryTokens() (yesToken, noToken string, ok bool) {
	if len(m.TokenIDs) != 2 {
		return "", "", false
	}
	if len(m.Outcomes) == 2 {
		first := strings.ToLower(strings.TrimSpace(m.Outcomes[0]))
		second := strings.ToLower(strings.TrimSpace(m.Outcomes[1]))
		if first == "no" && second == "yes" {
			return m.TokenIDs[1], m.TokenIDs[0], true
		}
	}
	return m.TokenIDs[0], m.TokenIDs[1], true
}
