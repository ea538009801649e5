package domain

import (
	"errors"
	"fmt"
)

// Error categories. Specific errors wrap one of these.
var (
	ErrValidation            = errors.New("validation error")
	ErrInsufficientResource  = errors.New("insufficient resource")
	ErrDownstreamUnavailable = errors.New("downstream unavailable")
	ErrTransport             = errors.New("transport failure")
)

var (
	ErrInvalidAmount            = fmt.Errorf("%w: amount must be greater than 0", ErrValidation)
	ErrInvalidQuote             = fmt.Errorf("%w: invalid quote", ErrValidation)
	ErrInsufficientFunds        = fmt.Errorf("%w: not enough money", ErrInsufficientResource)
	ErrInsufficientHoldings     = fmt.Errorf("%w: not enough stocks in portfolio", ErrInsufficientResource)
	ErrInsufficientMarketSupply = fmt.Errorf("%w: not enough stocks on the market", ErrInsufficientResource)
	ErrServiceNotFound          = fmt.Errorf("%w: no service record", ErrDownstreamUnavailable)
	ErrCircuitOpen              = fmt.Errorf("%w: circuit open", ErrDownstreamUnavailable)
	ErrQuoteNotFound            = errors.New("quote not found")
	ErrBusClosed                = fmt.Errorf("%w: bus closed", ErrTransport)
)
