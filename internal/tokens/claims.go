package tokens

import (
	"encoding/json"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded payload of a bearer token issued by the auth backend.
// A Claims value is read-only once decoded: MarshalJSON replays the original
// payload bytes so a persisted copy decodes back to the same structure.
type Claims struct {
	Email     string `json:"email,omitempty"`
	Role      Role   `json:"role,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	jwt.RegisteredClaims

	// Extra holds the complete payload object, including fields not mapped above.
	Extra map[string]any `json:"-"`

	raw json.RawMessage
}

type claimsAlias Claims

// UnmarshalJSON keeps the full object and the raw bytes, then fills the typed
// fields from values of the expected JSON type. A mistyped field is left empty
// rather than failing the decode; a non-numeric exp reads as absent.
func (c *Claims) UnmarshalJSON(b []byte) error {
	var extra map[string]any
	if err := json.Unmarshal(b, &extra); err != nil {
		return err
	}
	if extra == nil {
		return errNotObject
	}
	*c = Claims{
		Email:     stringClaim(extra, "email"),
		Role:      Role(stringClaim(extra, "role")),
		CompanyID: stringClaim(extra, "company_id"),
		UserID:    stringClaim(extra, "user_id"),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stringClaim(extra, "iss"),
			Subject:   stringClaim(extra, "sub"),
			Audience:  audienceClaim(extra["aud"]),
			ExpiresAt: numericClaim(extra, "exp"),
			NotBefore: numericClaim(extra, "nbf"),
			IssuedAt:  numericClaim(extra, "iat"),
			ID:        stringClaim(extra, "jti"),
		},
		Extra: extra,
		raw:   append(json.RawMessage(nil), b...),
	}
	return nil
}

func stringClaim(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func numericClaim(m map[string]any, key string) *jwt.NumericDate {
	f, ok := m[key].(float64)
	if !ok || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	sec, frac := math.Modf(f)
	return jwt.NewNumericDate(time.Unix(int64(sec), int64(frac*1e9)))
}

// audienceClaim accepts a string or a list of strings; other entries are dropped.
func audienceClaim(v any) jwt.ClaimStrings {
	switch t := v.(type) {
	case string:
		return jwt.ClaimStrings{t}
	case []any:
		var out jwt.ClaimStrings
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// MarshalJSON returns the payload bytes the claims were decoded from, or the
// typed fields for claims built in code.
func (c Claims) MarshalJSON() ([]byte, error) {
	if len(c.raw) > 0 {
		return c.raw, nil
	}
	return json.Marshal(claimsAlias(c))
}

// Expiry returns the exp claim and whether it is present.
func (c *Claims) Expiry() (time.Time, bool) {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// RoleOrDefault returns the role claim, falling back to admin when absent.
func (c *Claims) RoleOrDefault() Role {
	if c == nil || c.Role == "" {
		return RoleAdmin
	}
	return c.Role
}

// IsExpired reports whether claims are unusable at now. Missing claims or a
// missing exp count as expired.
func IsExpired(c *Claims, now time.Time) bool {
	exp, ok := c.Expiry()
	if !ok {
		return true
	}
	return exp.Unix() <= now.Unix()
}
