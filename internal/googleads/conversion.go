package googleads

import (
	"fmt"
	"time"

	"clickbridge_backend/platform/apperr"
)

// ConversionType identifies the conversion action family configured in the
// Google Ads account. The webhook's conversion_type query parameter selects
// one of these.
type ConversionType string

const (
	// ConversionMessageReceived fires when a matched lead first messages in.
	ConversionMessageReceived ConversionType = "message_received"
	// ConversionAppointmentMade fires when a lead books an appointment.
	ConversionAppointmentMade ConversionType = "appointment_made"
	// ConversionConvertedLead fires when a lead is won.
	ConversionConvertedLead ConversionType = "converted_lead"
)

// ParseConversionType validates a conversion_type parameter.
func ParseConversionType(value string) (ConversionType, error) {
	switch ConversionType(value) {
	case ConversionMessageReceived, ConversionAppointmentMade, ConversionConvertedLead:
		return ConversionType(value), nil
	default:
		return "", apperr.Validation(fmt.Sprintf("unknown conversion type %q", value))
	}
}

// DefaultValue returns the conversion value reported when the lead carries no
// explicit value field.
func (t ConversionType) DefaultValue() float64 {
	switch t {
	case ConversionAppointmentMade:
		return 40
	case ConversionConvertedLead:
		return 500
	default:
		return 5
	}
}

// RawLead is the flattened lead data needed to build one conversion upload.
type RawLead struct {
	LeadID          int64
	GCLID           string
	GBRAID          string
	Email           string
	Phone           string
	ConversionValue float64 // 0 means "use the type default"
	CurrencyCode    string
	ConversionTime  time.Time // zero means "now"
}

// OrderID derives the deduplication order ID for a lead.
func (r RawLead) OrderID() string {
	return fmt.Sprintf("order_%d", r.LeadID)
}

// Wire types for customers/{id}:uploadClickConversions.

type consent struct {
	AdUserData        string `json:"adUserData"`
	AdPersonalization string `json:"adPersonalization"`
}

type userIdentifier struct {
	HashedEmail          string `json:"hashedEmail,omitempty"`
	HashedPhoneNumber    string `json:"hashedPhoneNumber,omitempty"`
	UserIdentifierSource string `json:"userIdentifierSource"`
}

type clickConversion struct {
	GCLID              string           `json:"gclid,omitempty"`
	GBRAID             string           `json:"gbraid,omitempty"`
	ConversionAction   string           `json:"conversionAction"`
	ConversionDateTime string           `json:"conversionDateTime"`
	ConversionValue    float64          `json:"conversionValue"`
	CurrencyCode       string           `json:"currencyCode"`
	OrderID            string           `json:"orderId,omitempty"`
	Consent            consent          `json:"consent"`
	UserIdentifiers    []userIdentifier `json:"userIdentifiers,omitempty"`
}

// Conversion timestamps are reported in GMT+3 for consistency across the
// account's conversion actions.
var reportingZone = time.FixedZone("GMT+3", 3*60*60)

const conversionTimeLayout = "2006-01-02 15:04:05-07:00"

func formatConversionTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.In(reportingZone).Format(conversionTimeLayout)
}

// buildClickConversion maps a raw lead onto the wire payload. The API rejects
// conversions carrying both click identifiers; gclid wins when both are
// present since it denotes a direct ad click, while gbraid is only
// browser-level attribution.
func buildClickConversion(raw RawLead, conversionType ConversionType, actionPath, defaultPhoneRegion string) clickConversion {
	value := raw.ConversionValue
	if value == 0 {
		value = conversionType.DefaultValue()
	}

	currency := raw.CurrencyCode
	if currency == "" {
		currency = "USD"
	}

	conversion := clickConversion{
		ConversionAction:   actionPath,
		ConversionDateTime: formatConversionTime(raw.ConversionTime),
		ConversionValue:    value,
		CurrencyCode:       currency,
		OrderID:            raw.OrderID(),
		Consent: consent{
			AdUserData:        "GRANTED",
			AdPersonalization: "GRANTED",
		},
	}

	if raw.GCLID != "" {
		conversion.GCLID = raw.GCLID
	} else if raw.GBRAID != "" {
		conversion.GBRAID = raw.GBRAID
	}

	if raw.Email != "" {
		conversion.UserIdentifiers = append(conversion.UserIdentifiers, userIdentifier{
			HashedEmail:          NormalizeAndHashEmail(raw.Email),
			UserIdentifierSource: "FIRST_PARTY",
		})
	}
	if raw.Phone != "" {
		conversion.UserIdentifiers = append(conversion.UserIdentifiers, userIdentifier{
			HashedPhoneNumber:    NormalizeAndHashPhone(raw.Phone, defaultPhoneRegion),
			UserIdentifierSource: "FIRST_PARTY",
		})
	}

	return conversion
}
