// Package kraken is a client for the Kraken spot REST API and the
// authenticated WebSocket v2 trading API.
//
// CoreClient signs and sends requests. RateLimitedClient wraps any Client
// and spaces calls out so they stay inside Kraken's published limits,
// including the per-order penalties charged for editing or cancelling
// orders shortly after placing them. WSTradingClient places and cancels
// orders over WebSocket against the same trading budget.
//
// Kraken API documentation: https://docs.kraken.com/api/
package kraken
