package kommo

import (
	"fmt"
	"strconv"
)

// FieldValue is a single value of a Kommo custom field. Kommo returns values
// as strings or numbers depending on the field type.
type FieldValue struct {
	Value interface{} `json:"value"`
}

// String renders the value as text regardless of wire type.
func (v FieldValue) String() string {
	switch typed := v.Value.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", typed)
	}
}

// CustomFieldValue is one custom field on a lead or contact.
type CustomFieldValue struct {
	FieldID int64        `json:"field_id"`
	Values  []FieldValue `json:"values"`
}

// TextField builds a single-value custom field update.
func TextField(fieldID int64, value string) CustomFieldValue {
	return CustomFieldValue{
		FieldID: fieldID,
		Values:  []FieldValue{{Value: value}},
	}
}

// Lead is a CRM lead as returned by GET /leads/{id}?with=contacts.
// The service never creates leads, only reads them and patches custom fields.
type Lead struct {
	ID           int64              `json:"id"`
	Name         string             `json:"name"`
	StatusID     int64              `json:"status_id"`
	PipelineID   int64              `json:"pipeline_id"`
	CustomFields []CustomFieldValue `json:"custom_fields_values"`
	Embedded     struct {
		Contacts []struct {
			ID int64 `json:"id"`
		} `json:"contacts"`
	} `json:"_embedded"`
}

// FieldValue returns the first value of the custom field with the given ID,
// or "" when the field is absent or empty.
func (l *Lead) FieldValue(fieldID int64) string {
	return firstFieldValue(l.CustomFields, fieldID)
}

// Contact is a CRM contact linked to a lead.
type Contact struct {
	ID           int64              `json:"id"`
	Name         string             `json:"name"`
	CustomFields []CustomFieldValue `json:"custom_fields_values"`
}

// FieldValue returns the first value of the custom field with the given ID.
func (c *Contact) FieldValue(fieldID int64) string {
	return firstFieldValue(c.CustomFields, fieldID)
}

// ContactInfo holds the directly-identifying fields resolved from a lead's
// primary contact.
type ContactInfo struct {
	Email string
	Phone string
}

func firstFieldValue(fields []CustomFieldValue, fieldID int64) string {
	if fieldID == 0 {
		return ""
	}
	for _, field := range fields {
		if field.FieldID == fieldID && len(field.Values) > 0 {
			return field.Values[0].String()
		}
	}
	return ""
}
