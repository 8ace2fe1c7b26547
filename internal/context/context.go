package context

import (
	"context"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// WalletKey is the context key for the authenticated wallet address
	WalletKey ContextKey = "wallet_address"
	// SubdomainKey is the context key for the wallet's registered subdomain
	SubdomainKey ContextKey = "subdomain"
)

// WithWallet stores the authenticated wallet and subdomain in ctx
func WithWallet(ctx context.Context, wallet, subdomain string) context.Context {
	ctx = context.WithValue(ctx, WalletKey, wallet)
	return context.WithValue(ctx, SubdomainKey, subdomain)
}

// ExtractWallet extracts the wallet address from the request context
func ExtractWallet(ctx context.Context) (string, bool) {
	wallet, ok := ctx.Value(WalletKey).(string)
	return wallet, ok && wallet != ""
}

// ExtractSubdomain extracts the subdomain from the request context
func ExtractSubdomain(ctx context.Context) (string, bool) {
	subdomain, ok := ctx.Value(SubdomainKey).(string)
	return subdomain, ok
}
