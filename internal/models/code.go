package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var codePattern = regexp.MustCompile(`^([A-Za-z]+)-(\d+)$`)

// NormalizeCode canonicalizes a ticket code to the PROJECT-NNN form:
// uppercase project part, number zero-padded to three digits. "mdt-66"
// becomes "MDT-066". Returns an error for anything else.
func NormalizeCode(code string) (string, error) {
	m := codePattern.FindStringSubmatch(strings.TrimSpace(code))
	if m == nil {
		return "", fmt.Errorf("invalid ticket code %q: expected format PROJECT-NUMBER (e.g. MDT-066)", code)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", fmt.Errorf("invalid ticket number in %q: %w", code, err)
	}
	return fmt.Sprintf("%s-%03d", strings.ToUpper(m[1]), n), nil
}
