package sink

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
)

var errAuthFailed = errors.New("authentication failed")

// credentials is the single username/password pair the sink accepts.
type credentials struct {
	username string
	password string
}

// enabled reports whether AUTH is required.
func (c credentials) enabled() bool {
	return c.username != "" || c.password != ""
}

// match compares in constant time.
func (c credentials) match(user, pass string) bool {
	u := subtle.ConstantTimeCompare([]byte(user), []byte(c.username))
	p := subtle.ConstantTimeCompare([]byte(pass), []byte(c.password))
	return u&p == 1
}

// verifyPlain checks an AUTH PLAIN response: base64(authzid \0 user \0 pass).
func (c credentials) verifyPlain(encoded string) error {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return errors.New("invalid base64 encoding")
	}

	parts := strings.SplitN(string(decoded), "\x00", 3)
	if len(parts) != 3 {
		return errors.New("invalid AUTH PLAIN format")
	}
	if !c.match(parts[1], parts[2]) {
		return errAuthFailed
	}
	return nil
}

// verifyLogin checks the two base64 answers of an AUTH LOGIN exchange.
func (c credentials) verifyLogin(encodedUser, encodedPass string) error {
	user, err := base64.StdEncoding.DecodeString(encodedUser)
	if err != nil {
		return errors.New("invalid base64 username")
	}
	pass, err := base64.StdEncoding.DecodeString(encodedPass)
	if err != nil {
		return errors.New("invalid base64 password")
	}
	if !c.match(string(user), string(pass)) {
		return errAuthFailed
	}
	return nil
}
