package session

import (
	"fmt"
	"unicode/utf8"

	apperr "github.com/alexjbarnes/fedi-client/internal/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MaxStatusLength is the character limit for a status.
const MaxStatusLength = 1000

// checkStatusText counts characters after NFC normalization so a
// decomposed accent is not counted twice.
func checkStatusText(text string) error {
	if text == "" {
		return &apperr.ValidationError{
			Field:  "status",
			Detail: fmt.Sprintf("0 / %d", MaxStatusLength),
			Err:    apperr.ErrEmptyStatus,
		}
	}

	n := utf8.RuneCountInString(norm.NFC.String(text))
	if n > MaxStatusLength {
		return &apperr.ValidationError{
			Field:  "status",
			Detail: fmt.Sprintf("%d / %d", n, MaxStatusLength),
			Err:    apperr.ErrStatusTooLong,
		}
	}

	return nil
}

// checkLocale returns the canonical form of a BCP 47 tag. Empty means
// DefaultLocale.
func checkLocale(locale string) (string, error) {
	if locale == "" {
		return DefaultLocale, nil
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return "", &apperr.ValidationError{
			Field:  "locale",
			Detail: err.Error(),
			Err:    apperr.ErrInvalidLocale,
		}
	}

	return tag.String(), nil
}
