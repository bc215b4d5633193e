package oauth

import (
	"github.com/pquerna/otp/totp"
)

// GenerateMFACode produces the current TOTP code for a broker login flow
// that gates authorization behind app-based MFA. Brokers that do not
// require MFA simply never configure a TOTP secret, and Start() skips this
// step entirely (see oauth.go).
func GenerateMFACode(secret string) (string, error) {
	return totp.GenerateCode(secret, nowFunc())
}
