// Package validate holds checks shared by request binding and the services.
package validate

import (
	"errors"
)

var (
	errNotDigits  = errors.New("number must contain digits only")
	errLuhn       = errors.New("number fails Luhn checksum")
	errCardLength = errors.New("card number must have 12 to 19 digits")
)

// Luhn checks the mod 10 checksum of a digit string
func Luhn(number string) error {
	if number == "" {
		return errNotDigits
	}

	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return errNotDigits
		}

		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}

	if sum%10 != 0 {
		return errLuhn
	}
	return nil
}

// CardNumber accepts PAN-length digit strings that pass Luhn
func CardNumber(number string) error {
	if len(number) < 12 || len(number) > 19 {
		return errCardLength
	}
	return Luhn(number)
}
