package identity

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Token is an authenticated caller credential in its canonical form.
//
// Two raw token strings that differ only in Unicode normalization form denote
// the same caller, so every token entering the system passes through
// NormalizeToken before it is used as a map key or fed to the identifier
// derivation. This keeps equality explicit instead of leaning on byte
// identity of whatever representation the caller happened to send.
type Token string

// Anonymous is the unauthenticated principal. Mutating operations reject it.
const Anonymous Token = ""

// NormalizeToken converts a raw caller credential into its canonical Token
// form: NFC-normalized with surrounding whitespace trimmed. An all-whitespace
// or empty credential normalizes to Anonymous.
func NormalizeToken(raw string) Token {
	return Token(norm.NFC.String(strings.TrimSpace(raw)))
}

// IsAnonymous reports whether the token is the unauthenticated principal.
func (t Token) IsAnonymous() bool {
	return t == Anonymous
}

// String returns the canonical token string.
func (t Token) String() string {
	return string(t)
}
