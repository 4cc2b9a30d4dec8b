package swish

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("not a Swedish mobile number")

// NormalizePhone converts a Swedish mobile number in any common notation
// (+46 70-123 45 67, 0046701234567, 0701234567) to the Swish alias format
// 46701234567.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "0046"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "07"):
		digits = "46" + digits[1:]
	}

	if len(digits) != 11 || !strings.HasPrefix(digits, "467") {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

// MaskPhone keeps the country prefix and the last two digits for logging.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
