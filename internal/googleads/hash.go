package googleads

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"clickbridge_backend/platform/phone"
)

var googleMailDomain = regexp.MustCompile(`^(gmail|googlemail)\.com$`)

// NormalizeAndHash lowercases, trims and SHA-256 hashes a string. The ad
// platform requires private customer data to be hashed this way before
// upload; a mismatch in normalization silently fails matching on their side.
func NormalizeAndHash(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NormalizeAndHashEmail normalizes an email address before hashing. Google
// additionally requires removal of '.' characters in the local part for
// gmail.com and googlemail.com addresses.
func NormalizeAndHashEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))

	local, domain, found := strings.Cut(normalized, "@")
	if found && googleMailDomain.MatchString(domain) {
		normalized = strings.ReplaceAll(local, ".", "") + "@" + domain
	}

	return NormalizeAndHash(normalized)
}

// NormalizeAndHashPhone hashes a phone number in E.164 form without separators.
func NormalizeAndHashPhone(phoneNumber, defaultRegion string) string {
	return NormalizeAndHash(phone.NormalizeE164(phoneNumber, defaultRegion))
}
