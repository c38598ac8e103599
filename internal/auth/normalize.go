package auth

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail canonicalises an address for storage and uniqueness checks.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	// A Caser is stateful, so one is built per call.
	return cases.Fold().String(norm.NFKC.String(email))
}
