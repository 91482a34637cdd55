// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// NormalizeE164 formats a phone number to E.164, the canonical correlation-key
// format used by the click-log store and the matcher. If parsing fails, it
// returns the trimmed input.
func NormalizeE164(input, defaultRegion string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// CountryName resolves the English country name for a phone number.
// Detection uses region codes rather than calling codes because several
// countries share a calling code. Returns "" for unparseable or invalid input.
func CountryName(input, defaultRegion string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return ""
	}
	if !phonenumbers.IsValidNumber(number) {
		return ""
	}

	regionCode := phonenumbers.GetRegionCodeForNumber(number)
	region, err := language.ParseRegion(regionCode)
	if err != nil {
		return ""
	}

	return display.English.Regions().Name(region)
}
