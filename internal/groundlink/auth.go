package groundlink

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// abortAuthenticator checks a bearer JWT signed with the shared ground
// secret before allowing a remote abort. An empty secret disables the
// endpoint entirely rather than accepting an unsigned token.
type abortAuthenticator struct {
	secret []byte
}

func newAbortAuthenticator(secret string) *abortAuthenticator {
	return &abortAuthenticator{secret: []byte(secret)}
}

func (a *abortAuthenticator) authenticate(r *http.Request) error {
	if len(a.secret) == 0 {
		return errors.New("abort endpoint disabled: no ground secret configured")
	}

	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return errors.New("missing bearer token")
	}
	raw := strings.TrimPrefix(header, prefix)

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}
