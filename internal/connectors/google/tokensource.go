package google

import (
	"golang.org/x/oauth2"
)

// NewStaticTokenSource returns a TokenSource that always yields accessToken.
// The token is never refreshed; callers rotate it by rebuilding the source.
func NewStaticTokenSource(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})
}
