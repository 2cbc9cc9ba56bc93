// Package ids generates the short identifiers used for persisted entities.
package ids

import (
	"crypto/rand"
	"encoding/base64"
)

// idLen is the length of a generated identifier in characters.
const idLen = 6

// New returns a url-safe random identifier of 6 characters.
//
// Postcondition: Returns a string matching [A-Za-z0-9_-]{6}.
func New() string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the platform random source is broken;
		// nothing sensible to do but stop.
		panic("ids: reading random bytes: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:idLen]
}
