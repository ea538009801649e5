package bus

import "strings"

// Topic names shared by every transport.
const (
	MarketTopicPrefix = "market"
	MarketPattern     = "market.#"
	TradeEventsTopic  = "portfolio.events"
)

// MarketTopic returns the per-instrument quote topic, e.g. market.mch.
func MarketTopic(symbol string) string {
	return MarketTopicPrefix + "." + strings.ToLower(strings.ReplaceAll(symbol, " ", "_"))
}

// Match reports whether topic matches an AMQP-style pattern:
// "*" matches exactly one word and "#" matches zero or more words.
func Match(pattern, topic string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(topic, "."))
}

func matchWords(pattern, topic []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "#":
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(topic); i++ {
				if matchWords(pattern[1:], topic[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(topic) == 0 {
				return false
			}
		default:
			if len(topic) == 0 || pattern[0] != topic[0] {
				return false
			}
		}
		pattern = pattern[1:]
		topic = topic[1:]
	}
	return len(topic) == 0
}
