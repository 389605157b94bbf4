package oauth2

import "errors"

var (
	// ErrUnknownKeyID is returned when a JWKS refresh still has no entry
	// for the kid a token's header asked for.
	ErrUnknownKeyID = errors.New("oauth2: unknown key id")

	// ErrJWKSFetch wraps any failure reaching or parsing the JWKS endpoint.
	ErrJWKSFetch = errors.New("oauth2: jwks fetch failed")
)
