package alerts

import (
	"fmt"

	"github.com/cwyatt/polywatch/internal/domain"
)

// FormatTitle is the short headline used by transports that render one.
func FormatTitle(signal domain.SignalEvent) string {
	return fmt.Sprintf("[SEV%d] %s", signal.Severity, signal.Type)
}

// FormatMessage renders the one-line human summary of a signal.
func FormatMessage(signal domain.SignalEvent) string {
	prefix := fmt.Sprintf("[SEV%d]", signal.Severity)

	switch signal.Type {
	case domain.SignalArbBuyBoth:
		qMax, _ := signal.PayloadNumber("q_max")
		if edge, ok := signal.PayloadNumber("edge_at_q_max"); ok {
			return fmt.Sprintf("%s Arb buy-both %.2f%% edge @ %g shares", prefix, edge*100, qMax)
		}
		return fmt.Sprintf("%s Arb buy-both @ %g shares", prefix, qMax)

	case domain.SignalLargeTakerTrade, domain.SignalLargeNewWalletTrade, domain.SignalDormantReactivation:
		notional, _ := signal.PayloadNumber("notional_usd")
		title, _ := signal.Payload["market_title"].(string)
		if title == "" {
			title, _ = signal.Payload["market_slug"].(string)
		}
		return fmt.Sprintf("%s Trade $%.0f %s", prefix, notional, title)

	default:
		return fmt.Sprintf("%s %s", prefix, signal.Type)
	}
}
