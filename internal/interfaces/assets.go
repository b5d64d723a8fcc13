package interfaces

import "context"

// ResolvedAsset is a short-lived fetchable URL for a stored binary asset.
// The URL must be treated as unusable after ExpiresInSeconds and must not be
// cached beyond one export attempt.
type ResolvedAsset struct {
	URL              string `json:"url"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// AssetResolver turns an opaque storage path into a time-limited URL
type AssetResolver interface {
	Resolve(ctx context.Context, assetRef string) (*ResolvedAsset, error)

	// Verify checks a signed token from an incoming asset request and
	// returns the storage path it grants access to.
	Verify(token string, expires int64, assetRef string) error
}
