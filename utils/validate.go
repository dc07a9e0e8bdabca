package utils

import "regexp"

var (
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// Kenyan MSISDNs as Daraja accepts them: 2547XXXXXXXX / 2541XXXXXXXX,
	// with optional leading + or the local 07/01 form.
	phoneRe = regexp.MustCompile(`^(\+?254|0)(7|1)\d{8}$`)
)

func ValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

func ValidPhoneNumber(phone string) bool {
	return phoneRe.MatchString(phone)
}

// NormalizePhoneNumber rewrites local 07.../01... numbers into the 254 form
// used for payment requests and invitation matching. Input is assumed valid.
func NormalizePhoneNumber(phone string) string {
	if len(phone) > 0 && phone[0] == '+' {
		phone = phone[1:]
	}
	if len(phone) > 0 && phone[0] == '0' {
		return "254" + phone[1:]
	}
	return phone
}
