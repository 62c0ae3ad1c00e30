package local

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"spendly/internal/identity"
)

// Claims is the id token payload. Subject carries the uid and ID the session.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (p *Provider) issueToken(uid, sid, email string, now time.Time) (string, error) {
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ID:        sid,
			Issuer:    p.opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.opts.SessionTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.opts.Secret)
}

func (p *Provider) parseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return p.opts.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.opts.Issuer),
		jwt.WithTimeFunc(p.opts.Clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, identity.NewError(identity.CodeIDTokenExpired, "id token expired")
		}
		return nil, &identity.Error{Code: identity.CodeInvalidCredential, Message: "invalid id token", Err: err}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, identity.NewError(identity.CodeInvalidCredential, "invalid id token")
	}
	return claims, nil
}
