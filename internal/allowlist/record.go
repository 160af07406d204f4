// Package allowlist decides whether an identity may use the application. It
// owns the canonical allow-list record, tolerant decoding of the schema-less
// documents that hold it, and the authorization service.
package allowlist

import (
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/tradegate/internal/docstore"
)

// Canonical document field names.
const (
	FieldEmail          = "email"
	FieldName           = "name"
	FieldExternalUserID = "externalUserId"
	FieldDeviceID       = "deviceId"
	FieldIsActive       = "isActive"
	FieldCreatedAt      = "createdAt"
	FieldLastLoginAt    = "lastLoginAt"
	FieldAddedBy        = "addedBy"
	FieldAddedAt        = "addedAt"
	FieldUpdatedAt      = "updatedAt"
)

// LegacyExternalIDFields lists historical names of the external user id
// field. They are consulted only when diagnosing a failed lookup.
var LegacyExternalIDFields = []string{
	"external_user_id",
	"userId",
	"user_id",
	"botUserId",
}

// Record is one allow-list entry.
type Record struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	ExternalUserID string    `json:"externalUserId"`
	DeviceID       string    `json:"deviceId"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	LastLoginAt    time.Time `json:"lastLoginAt"`
	AddedBy        string    `json:"addedBy"`
	AddedAt        time.Time `json:"addedAt"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty"`
}

// Identity is what the caller knows about the person being authorized.
type Identity struct {
	Email          string
	ExternalUserID string
	DeviceID       string
	Name           string
}

// Document converts r into its stored form. Zero timestamps are omitted.
func (r Record) Document() docstore.Document {
	doc := docstore.Document{
		FieldEmail:          r.Email,
		FieldName:           r.Name,
		FieldExternalUserID: r.ExternalUserID,
		FieldDeviceID:       r.DeviceID,
		FieldIsActive:       r.IsActive,
		FieldAddedBy:        r.AddedBy,
	}
	for k, t := range map[string]time.Time{
		FieldCreatedAt:   r.CreatedAt,
		FieldLastLoginAt: r.LastLoginAt,
		FieldAddedAt:     r.AddedAt,
		FieldUpdatedAt:   r.UpdatedAt,
	} {
		if !t.IsZero() {
			doc[k] = t
		}
	}
	return doc
}

// RecordFromDocument decodes a stored document, accepting the value shapes
// written by the different clients that have touched the collection over
// time. Unknown or malformed values decode as zero values.
func RecordFromDocument(id string, doc docstore.Document) Record {
	return Record{
		ID:             id,
		Email:          asString(doc[FieldEmail]),
		Name:           asString(doc[FieldName]),
		ExternalUserID: asString(doc[FieldExternalUserID]),
		DeviceID:       asString(doc[FieldDeviceID]),
		IsActive:       asBool(doc[FieldIsActive]),
		CreatedAt:      asTime(doc[FieldCreatedAt]),
		LastLoginAt:    asTime(doc[FieldLastLoginAt]),
		AddedBy:        asString(doc[FieldAddedBy]),
		AddedAt:        asTime(doc[FieldAddedAt]),
		UpdatedAt:      asTime(doc[FieldUpdatedAt]),
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case int:
		return strconv.Itoa(s)
	case int32:
		return strconv.FormatInt(int64(s), 10)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	case int, int32, int64, float64:
		return asString(b) != "0"
	}
	return false
}

type timer interface {
	Time() time.Time
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case timer:
		return t.Time().UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC()
		}
	case int64:
		return time.UnixMilli(t).UTC()
	case float64:
		return time.UnixMilli(int64(t)).UTC()
	}
	return time.Time{}
}
