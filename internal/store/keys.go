package store

// Persisted session keys. The session manager writes these at every state
// transition so that persisted state always matches in-memory state.
const (
	KeyConnectionStatus = "connectionStatus"
	KeyEdaURL           = "edaUrl"
	KeyClientSecret     = "clientSecret"
	KeyAccessToken      = "accessToken"
	KeyRefreshToken     = "refreshToken"
	KeyExpiresAt        = "accessTokenExpiresAt"
	KeyActiveTargetID   = "activeTargetId"
	KeyAutoLogin        = "autoLogin"
)

// SessionKeys are the keys cleared on disconnect. Target profiles and the
// autoLogin consent flag survive.
var SessionKeys = []string{
	KeyEdaURL,
	KeyClientSecret,
	KeyAccessToken,
	KeyRefreshToken,
	KeyExpiresAt,
	KeyActiveTargetID,
}
