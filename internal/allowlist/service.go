package allowlist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/docstore"
	"github.com/dmitrijs2005/tradegate/internal/logging"
	"github.com/google/uuid"
)

// DefaultCollection is the collection holding allow-list records.
const DefaultCollection = "allowed_users"

var ErrWatchUnsupported = errors.New("store does not support live queries")

// recordNamespace scopes deterministic record ids.
var recordNamespace = uuid.MustParse("6f1c2a9e-3b57-4d0c-9a55-0e8f1f6a2d41")

// Service resolves identities against the allow-list.
type Service struct {
	store      docstore.Store
	collection string
	logger     logging.Logger
	now        func() time.Time
}

type Option func(*Service)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCollection(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.collection = name
		}
	}
}

func NewService(store docstore.Store, logger logging.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		collection: DefaultCollection,
		logger:     logger.With("module", "allowlist"),
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Authorize looks the identity up by email, then by external user id, and
// provisions a new active record when both miss. Store failures at any step
// yield TransientError. It never returns Go errors; see Verdict.Err.
func (s *Service) Authorize(ctx context.Context, id Identity) Verdict {
	if id.Email == "" && id.ExternalUserID == "" {
		return Verdict{Kind: IncompleteIdentity, Message: msgIncomplete}
	}

	if id.Email != "" {
		rec, found, err := s.lookup(ctx, FieldEmail, id.Email)
		if err != nil {
			return s.failed(ctx, "lookup by email", err)
		}
		if found {
			return s.resolve(ctx, rec)
		}
	}

	if id.ExternalUserID != "" {
		rec, found, err := s.lookup(ctx, FieldExternalUserID, id.ExternalUserID)
		if err != nil {
			return s.failed(ctx, "lookup by external id", err)
		}
		if found {
			return s.resolve(ctx, rec)
		}
	}

	return s.provision(ctx, id)
}

// AuthorizeExistingLogin serves the conventional login path: only the
// external user id is known. A miss yields NotRegistered together with a
// diagnosis of whether the record exists under a legacy field name.
func (s *Service) AuthorizeExistingLogin(ctx context.Context, externalUserID string) Verdict {
	if externalUserID == "" {
		return notRegistered(Diagnosis{Kind: DiagnosisMissing})
	}

	rec, found, err := s.lookup(ctx, FieldExternalUserID, externalUserID)
	if err != nil {
		return s.failed(ctx, "lookup by external id", err)
	}
	if found {
		return s.resolve(ctx, rec)
	}

	d := s.diagnose(ctx, externalUserID)
	s.logger.Info(ctx, "login for unregistered id", "external_user_id", externalUserID, "diagnosis", d.Kind, "field", d.Field)
	return notRegistered(d)
}

func (s *Service) diagnose(ctx context.Context, externalUserID string) Diagnosis {
	failed := false
	for _, field := range LegacyExternalIDFields {
		hits, err := s.store.FindByField(ctx, s.collection, field, externalUserID)
		if err != nil {
			s.logger.Warn(ctx, "diagnostic lookup failed", "field", field, "error", err)
			failed = true
			continue
		}
		if len(hits) > 0 {
			return Diagnosis{Kind: DiagnosisFieldMismatch, Field: field, RecordID: hits[0].ID}
		}
	}
	if failed {
		return Diagnosis{Kind: DiagnosisUnknown}
	}
	return Diagnosis{Kind: DiagnosisMissing}
}

// lookup returns the canonical record among the matches: the earliest added,
// ties broken by id.
func (s *Service) lookup(ctx context.Context, field, value string) (Record, bool, error) {
	hits, err := s.store.FindByField(ctx, s.collection, field, value)
	if err != nil {
		return Record{}, false, err
	}
	if len(hits) == 0 {
		return Record{}, false, nil
	}

	recs := make([]Record, 0, len(hits))
	for _, h := range hits {
		recs = append(recs, RecordFromDocument(h.ID, h.Data))
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].AddedAt.Equal(recs[j].AddedAt) {
			return recs[i].AddedAt.Before(recs[j].AddedAt)
		}
		return recs[i].ID < recs[j].ID
	})
	if len(recs) > 1 {
		s.logger.Warn(ctx, "duplicate allow-list records", "field", field, "count", len(recs), "chosen", recs[0].ID)
	}
	return recs[0], true, nil
}

func (s *Service) resolve(ctx context.Context, rec Record) Verdict {
	if !rec.IsActive {
		s.logger.Info(ctx, "inactive record blocked", "record_id", rec.ID)
		return inactive(rec)
	}

	now := s.now().UTC()
	if err := s.store.Update(ctx, s.collection, rec.ID, map[string]any{FieldLastLoginAt: now}); err != nil {
		return s.failed(ctx, "touch last login", err)
	}
	rec.LastLoginAt = now
	return authorized(rec)
}

func (s *Service) provision(ctx context.Context, id Identity) Verdict {
	now := s.now().UTC()
	rec := Record{
		ID:             recordID(id),
		Email:          id.Email,
		Name:           id.Name,
		ExternalUserID: id.ExternalUserID,
		DeviceID:       id.DeviceID,
		IsActive:       true,
		CreatedAt:      now,
		LastLoginAt:    now,
		AddedBy:        common.AddedByWebRegistration,
		AddedAt:        now,
	}

	if err := s.store.Set(ctx, s.collection, rec.ID, rec.Document()); err != nil {
		return s.failed(ctx, "create record", err)
	}

	s.logger.Info(ctx, "allow-list record provisioned", "record_id", rec.ID)
	return authorized(rec)
}

// recordID derives the id of a provisioned record from its primary key, so
// concurrent first registrations of the same identity write one document.
func recordID(id Identity) string {
	key := "email:" + id.Email
	if id.Email == "" {
		key = "external:" + id.ExternalUserID
	}
	return uuid.NewSHA1(recordNamespace, []byte(key)).String()
}

func (s *Service) failed(ctx context.Context, step string, err error) Verdict {
	s.logger.Warn(ctx, "allow-list store failure", "step", step, "error", err)
	return transient(fmt.Errorf("%s: %w", step, err))
}

// ListRecent returns up to limit records, newest first.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	snaps, err := s.store.ListOrdered(ctx, s.collection, FieldAddedAt, true, limit)
	if err != nil {
		s.logger.Error(ctx, "list records", "error", err)
		return nil, common.ErrorInternal
	}
	out := make([]Record, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, RecordFromDocument(sn.ID, sn.Data))
	}
	return out, nil
}

// SetActive toggles activation of an existing record.
func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	err := s.store.Update(ctx, s.collection, id, map[string]any{
		FieldIsActive:  active,
		FieldUpdatedAt: s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		s.logger.Error(ctx, "set active", "record_id", id, "error", err)
		return common.ErrorInternal
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, s.collection, id); err != nil {
		s.logger.Error(ctx, "delete record", "record_id", id, "error", err)
		return common.ErrorInternal
	}
	return nil
}

// RecordEvent is one observed state of a watched record.
type RecordEvent struct {
	Record  Record
	Deleted bool
}

// Watch follows one record. The channel closes when ctx ends or the
// underlying subscription stops.
func (s *Service) Watch(ctx context.Context, id string) (<-chan RecordEvent, error) {
	w, ok := s.store.(docstore.Watcher)
	if !ok {
		return nil, ErrWatchUnsupported
	}
	changes, err := w.Watch(ctx, s.collection, id)
	if err != nil {
		return nil, err
	}

	out := make(chan RecordEvent)
	go func() {
		defer close(out)
		for c := range changes {
			ev := RecordEvent{Deleted: c.Deleted}
			if !c.Deleted {
				ev.Record = RecordFromDocument(c.ID, c.Data)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
