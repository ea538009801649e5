package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"market.#", "market.mch", true},
		{"market.#", "market", true},
		{"market.*", "market.mch", true},
		{"market.*", "market.mch.extra", false},
		{"market.*", "market", false},
		{"market.mch", "market.mch", true},
		{"market.mch", "market.dvn", false},
		{"#", "portfolio.events", true},
		{"*.events", "portfolio.events", true},
		{"market.#.usd", "market.btc.usd", true},
		{"market.#.usd", "market.usd", true},
		{"market.#.usd", "market.btc.jpy", false},
		{"portfolio.events", "market.mch", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Match(c.pattern, c.topic), "%s vs %s", c.pattern, c.topic)
	}
}

func TestMarketTopic(t *testing.T) {
	assert.Equal(t, "market.mch", MarketTopic("MCH"))
	assert.Equal(t, "market.black_coat", MarketTopic("Black Coat"))
	assert.True(t, Match(MarketPattern, MarketTopic("DVN")))
}
