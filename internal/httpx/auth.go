package httpx

import (
	"errors"
	"net/http"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// AuthFunc resolves the authenticated principal for a request. Token
// verification lives with the auth collaborator in front of this service;
// handlers only ever see the resolved user id, passed explicitly downward.
type AuthFunc func(r *http.Request) (string, error)

// UserHeaderAuth trusts the user id header injected by the gateway after it
// verified the caller's token.
func UserHeaderAuth(header string) AuthFunc {
	return func(r *http.Request) (string, error) {
		uid := r.Header.Get(header)
		if uid == "" {
			return "", ErrUnauthenticated
		}
		return uid, nil
	}
}
