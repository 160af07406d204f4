// Package session holds the authenticated client session: the record
// persisted after a successful allow-list authorization, the stores that
// keep it across restarts, and Context, which owns its lifecycle.
package session

import (
	"context"
	"time"
)

// AuthorizedSession is what the client keeps after authorization. Saving a
// new one replaces the previous one.
type AuthorizedSession struct {
	AuthToken      string    `json:"authToken"`
	ExternalUserID string    `json:"externalUserId"`
	DeviceID       string    `json:"deviceId"`
	Email          string    `json:"email"`
	Timezone       string    `json:"timezone"`
	UserAgent      string    `json:"userAgent"`
	DeviceType     string    `json:"deviceType"`
	Currency       string    `json:"currency"`
	CurrencyISO    string    `json:"currencyIso"`
	RecordID       string    `json:"recordId,omitempty"`
	SavedAt        time.Time `json:"savedAt"`
}

// Store persists at most one session. Get returns common.ErrNoSession when
// the store is empty.
type Store interface {
	Save(ctx context.Context, s AuthorizedSession) error
	Get(ctx context.Context) (AuthorizedSession, error)
	Clear(ctx context.Context) error
	IsAuthenticated(ctx context.Context) (bool, error)
}
