// Package auth provides structural validation of the dashboard bearer
// token. Signature and expiry are the server's job at handshake time,
// signaled back through WebSocket close codes 4001-4007.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMalformedToken = errors.New("malformed token")

// Identity is the unverified claim set carried by a dashboard token.
type Identity struct {
	Subject   string    // user email
	UserID    int64     // 0 when the claim is absent
	ClientID  int64     // 0 when the claim is absent
	ExpiresAt time.Time // zero when the claim is absent
}

// IsWellFormed reports whether token has the structure of a JWT: three
// dot-separated segments with a base64 middle segment that decodes to a
// JSON object. A cheap local gate before attempting a connection; it
// does not verify anything.
func IsWellFormed(token string) bool {
	_, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	return err == nil
}

// Inspect decodes the claims without verifying them, for display and
// logging only.
func Inspect(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}, errors.Join(ErrMalformedToken, err)
	}

	var id Identity

	if sub, err := claims.GetSubject(); err == nil {
		id.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	if v, ok := claims["user_id"].(float64); ok {
		id.UserID = int64(v)
	}
	if v, ok := claims["client_id"].(float64); ok {
		id.ClientID = int64(v)
	}

	return id, nil
}
