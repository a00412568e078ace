package parser

import "errors"

// The four error kinds that cross the parser boundary. Everything a single
// strategy throws internally is contained at the strategy boundary and
// surfaces only as "no data"; callers never see partial records.
var (
	// ErrUnsupportedMarketplace means the URL host matched no site profile.
	ErrUnsupportedMarketplace = errors.New("unsupported marketplace")

	// ErrBlockedByAntiBot means navigation resolved to a challenge page.
	// Retrying from the same session would re-trigger the same defense.
	ErrBlockedByAntiBot = errors.New("blocked by anti-bot challenge")

	// ErrPageLoadTimeout means the stabilization wait exceeded its bound.
	ErrPageLoadTimeout = errors.New("page load timed out")

	// ErrProductDataNotFound means every escalation stage completed without
	// a usable title.
	ErrProductDataNotFound = errors.New("product data not found")
)
