package store

import (
	"fmt"
	"regexp"
)

// KeyColumn is the name of the first column of every table.
const KeyColumn = "IPN"

// ipnPattern matches internal part numbers: 3 uppercase letters, 4 digits,
// 4 alphanumerics.
var ipnPattern = regexp.MustCompile(`^[A-Z]{3}-[0-9]{4}-[a-zA-Z0-9]{4}$`)

// IsValidIPN reports whether ipn matches the IPN pattern.
func IsValidIPN(ipn string) bool {
	return ipnPattern.MatchString(ipn)
}

// TableForIPN returns the category code encoded in an IPN.
// Returns "" if ipn is shorter than a category code.
func TableForIPN(ipn string) string {
	if len(ipn) < 3 {
		return ""
	}
	return ipn[:3]
}

// ValidateIPN checks that ipn is well formed and belongs to table.
func ValidateIPN(table, ipn string) error {
	if !IsValidIPN(ipn) {
		return fmt.Errorf("%w: %s", ErrInvalidIdentifier, ipn)
	}
	if TableForIPN(ipn) != table {
		return fmt.Errorf("%w: %s does not belong to table %s", ErrInvalidIdentifier, ipn, table)
	}
	return nil
}
