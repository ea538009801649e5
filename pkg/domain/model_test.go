package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortfolio_CloneIsIndependent(t *testing.T) {
	p := NewPortfolio(100)
	p.Shares["MacroHard"] = 3

	c := p.Clone()
	c.Shares["MacroHard"] = 1
	c.Cash = 0

	assert.Equal(t, 3, p.Amount("MacroHard"))
	assert.Equal(t, 100.0, p.Cash)
	assert.Equal(t, 0, p.Amount("Divinator"))
}

func TestServiceRecord_Root(t *testing.T) {
	r := ServiceRecord{Name: ServiceQuotes, Metadata: map[string]string{MetadataRoot: "/quotes"}}
	assert.Equal(t, "/quotes", r.Root())
	assert.Empty(t, ServiceRecord{}.Root())
}

func TestErrorCategories(t *testing.T) {
	assert.True(t, errors.Is(ErrInvalidAmount, ErrValidation))
	assert.True(t, errors.Is(ErrInsufficientFunds, ErrInsufficientResource))
	assert.True(t, errors.Is(ErrInsufficientHoldings, ErrInsufficientResource))
	assert.True(t, errors.Is(ErrInsufficientMarketSupply, ErrInsufficientResource))
	assert.True(t, errors.Is(ErrServiceNotFound, ErrDownstreamUnavailable))
	assert.True(t, errors.Is(ErrCircuitOpen, ErrDownstreamUnavailable))
	assert.False(t, errors.Is(ErrInsufficientFunds, ErrValidation))
}
