package token

import "github.com/golang-jwt/jwt/v5"

// DecodeExpiry reads the exp claim out of an access token and returns it
// as epoch milliseconds. Returns 0 for anything that is not a decodable
// three-segment JWT or that lacks an exp claim.
//
// This is a best-effort, non-validating decode: the token comes from a
// trusted local exchange, so no signature check is performed (verifying
// would require shipping the identity provider's key material).
func DecodeExpiry(accessToken string) int64 {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return 0
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.UnixMilli()
}
