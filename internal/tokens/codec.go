package tokens

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var errNotObject = errors.New("claims payload is not a JSON object")

// segmentParser decodes base64url segments, tolerating '=' padding.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// stdToURL maps the standard base64 alphabet onto the URL-safe one so payloads
// produced by either encoder decode the same way.
var stdToURL = strings.NewReplacer("+", "-", "/", "_")

// Decode extracts the claims segment of a three-part token. The signature is
// not verified. Any structural, base64 or JSON failure yields (nil, false).
func Decode(token string) (*Claims, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, false
	}
	payload, err := segmentParser.DecodeSegment(stdToURL.Replace(parts[1]))
	if err != nil {
		return nil, false
	}
	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, false
	}
	return &c, true
}

// ParseStored decodes claims persisted as JSON (the token_payload entry).
func ParseStored(b []byte) (*Claims, error) {
	var c Claims
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
