package models

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	cardNumberRe = regexp.MustCompile(`^\d{13,19}$`)
	expiryRe     = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cvvRe        = regexp.MustCompile(`^\d{3,4}$`)
)

// Normalize returns a copy with surrounding blanks trimmed and every space
// removed from the card number.
func (f CardFields) Normalize() CardFields {
	return CardFields{
		CardName: strings.TrimSpace(f.CardName),
		CardNo: strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, f.CardNo),
		ExpiryDate: strings.TrimSpace(f.ExpiryDate),
		CVV:        strings.TrimSpace(f.CVV),
		HolderName: strings.TrimSpace(f.HolderName),
	}
}

// Validate checks the card fields as a submission form would. now decides
// whether the expiry month has already passed.
func (f CardFields) Validate(now time.Time) error {
	var errs fieldErrors

	// cardName is an optional label; cards stored without one stay valid.
	// When given it needs at least 2 characters.
	if f.CardName != "" && utf8.RuneCountInString(f.CardName) < 2 {
		errs.add("cardName", "card name must be at least 2 characters")
	}
	switch {
	case !cardNumberRe.MatchString(f.CardNo):
		errs.add("cardNo", "card number must be 13-19 digits (no spaces)")
	case !Luhn(f.CardNo):
		errs.add("cardNo", "invalid card number")
	}
	switch {
	case !expiryRe.MatchString(f.ExpiryDate):
		errs.add("expiryDate", "must be in MM/YY format")
	case Expired(f.ExpiryDate, now):
		errs.add("expiryDate", "card has expired")
	}
	if !cvvRe.MatchString(f.CVV) {
		errs.add("cvv", "CVV must be 3 or 4 digits")
	}
	if utf8.RuneCountInString(f.HolderName) < 2 {
		errs.add("holderName", "cardholder name is required")
	}

	return errs.result()
}

// Normalize returns a copy with surrounding blanks trimmed. The secret is kept as typed.
func (f PasswordFields) Normalize() PasswordFields {
	return PasswordFields{
		WebsiteURL: strings.TrimSpace(f.WebsiteURL),
		Username:   strings.TrimSpace(f.Username),
		Password:   f.Password,
	}
}

// Validate checks the credential fields as a submission form would.
func (f PasswordFields) Validate() error {
	var errs fieldErrors

	if u, err := url.Parse(f.WebsiteURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.add("websiteUrl", "please enter a valid URL")
	}
	if utf8.RuneCountInString(f.Username) < 2 {
		errs.add("username", "username is required")
	}
	if utf8.RuneCountInString(f.Password) < 6 {
		errs.add("password", "password must be at least 6 characters")
	}

	return errs.result()
}

// Luhn reports whether the digit string passes the Luhn checksum.
func Luhn(number string) bool {
	if number == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return sum%10 == 0
}

// Expired reports whether an MM/YY expiry lies before the month of now.
// Malformed values count as expired.
func Expired(expiry string, now time.Time) bool {
	month, year, ok := strings.Cut(expiry, "/")
	if !ok {
		return true
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return true
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return true
	}
	currentYear := now.Year() % 100
	currentMonth := int(now.Month())
	return !(y > currentYear || (y == currentYear && m >= currentMonth))
}
