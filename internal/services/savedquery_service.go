package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"qbeAdmin/internal/metrics"
	"qbeAdmin/internal/models"
	"qbeAdmin/internal/qbe"
	"qbeAdmin/internal/store"
)

// SavedQueryStore is the persistence the service needs.
type SavedQueryStore interface {
	Get(ctx context.Context, id int64) (*models.SavedQuery, error)
	ListVisible(ctx context.Context, user *models.User) ([]models.SavedQuery, error)
	Create(ctx context.Context, q *models.SavedQuery) error
	Update(ctx context.Context, q *models.SavedQuery) error
	Delete(ctx context.Context, id int64) error
}

// GrantChecker answers whether a can_run grant covers a user.
type GrantChecker interface {
	HasRunGrant(ctx context.Context, queryID, userID int64) (bool, error)
}

// PendingQueries is the session side of the QBE hand-off.
type PendingQueries interface {
	Has(hash string) bool
	Get(hash string) (models.QueryDefinition, error)
	PutIfAbsent(hash string, def models.QueryDefinition) (bool, error)
}

// SavedQueryService implements visibility, run, add guard and save for
// saved queries.
type SavedQueryService struct {
	queries SavedQueryStore
	grants  GrantChecker
	metrics *metrics.Metrics
}

func NewSavedQueryService(queries SavedQueryStore, grants GrantChecker, m *metrics.Metrics) *SavedQueryService {
	return &SavedQueryService{queries: queries, grants: grants, metrics: m}
}

// CanRun decides whether user may see and run q. Superusers and owners
// always can; anyone else needs a can_run grant for themselves or one of
// their groups. A missing grant is a plain false.
func (s *SavedQueryService) CanRun(ctx context.Context, user *models.User, q *models.SavedQuery) (bool, error) {
	if user == nil {
		return false, nil
	}
	if user.IsSuperuser || q.OwnerID == user.ID {
		return true, nil
	}
	return s.grants.HasRunGrant(ctx, q.ID, user.ID)
}

// VisibleQueries filters queries down to those user may see.
func (s *SavedQueryService) VisibleQueries(ctx context.Context, user *models.User, queries []models.SavedQuery) ([]models.SavedQuery, error) {
	if user != nil && user.IsSuperuser {
		return queries, nil
	}

	visible := make([]models.SavedQuery, 0, len(queries))
	for i := range queries {
		ok, err := s.CanRun(ctx, user, &queries[i])
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, queries[i])
		}
	}
	return visible, nil
}

// List returns the queries visible to user, filtered in SQL.
func (s *SavedQueryService) List(ctx context.Context, user *models.User) ([]models.SavedQuery, error) {
	return s.queries.ListVisible(ctx, user)
}

// Get loads a saved query that user may see. Invisible and unknown ids both
// yield ErrNotFound.
func (s *SavedQueryService) Get(ctx context.Context, user *models.User, id int64) (*models.SavedQuery, error) {
	q, err := s.queries.Get(ctx, id)
	if store.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.CanRun(ctx, user, q)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return q, nil
}

// Run loads the saved query into the session and returns the hash the
// results page is keyed by. An existing session entry is left untouched, so
// repeated runs are idempotent.
func (s *SavedQueryService) Run(ctx context.Context, user *models.User, id int64, pending PendingQueries) (string, error) {
	logger := zerolog.Ctx(ctx)

	q, err := s.Get(ctx, user, id)
	if err != nil {
		s.metrics.QueryRuns.WithLabelValues(outcome(err)).Inc()
		return "", err
	}

	hash, err := qbe.QueryHash(q.QueryData)
	if err != nil {
		s.metrics.QueryRuns.WithLabelValues("error").Inc()
		return "", err
	}

	stored, err := pending.PutIfAbsent(hash, q.QueryData)
	if err != nil {
		s.metrics.QueryRuns.WithLabelValues("error").Inc()
		return "", err
	}
	if stored {
		s.metrics.PendingStored.Inc()
	}

	logger.Info().
		Int64("query_id", q.ID).
		Str("query_hash", hash).
		Bool("session_populated", stored).
		Msg("Saved query run")
	s.metrics.QueryRuns.WithLabelValues("ok").Inc()
	return hash, nil
}

// AllowAdd reports whether a saved query may be created for hash, i.e.
// whether the QBE form already put its definition in the session.
func (s *SavedQueryService) AllowAdd(pending PendingQueries, hash string) bool {
	if pending.Has(hash) {
		return true
	}
	s.metrics.AddRedirects.Inc()
	return false
}

// Save persists q with its query data taken from the session. When q has no
// hash yet, requestHash is used. Without a session entry nothing is written
// and ErrMissingSessionData is returned.
func (s *SavedQueryService) Save(ctx context.Context, pending PendingQueries, requestHash string, q *models.SavedQuery) error {
	if q.QueryHash == "" {
		q.QueryHash = requestHash
	}

	def, err := pending.Get(q.QueryHash)
	if err != nil {
		s.metrics.QueriesSaved.WithLabelValues("missing_session").Inc()
		return ErrMissingSessionData
	}

	hash, err := qbe.QueryHash(def)
	if err != nil {
		return err
	}
	if hash != q.QueryHash {
		s.metrics.QueriesSaved.WithLabelValues("hash_mismatch").Inc()
		return ErrHashMismatch
	}
	if err := ValidateDefinition(def); err != nil {
		s.metrics.QueriesSaved.WithLabelValues("invalid").Inc()
		return err
	}
	q.QueryData = def

	if q.ID == 0 {
		err = s.queries.Create(ctx, q)
	} else {
		err = s.queries.Update(ctx, q)
	}
	if err != nil {
		s.metrics.QueriesSaved.WithLabelValues("error").Inc()
		return err
	}

	zerolog.Ctx(ctx).Info().
		Int64("query_id", q.ID).
		Str("query_hash", q.QueryHash).
		Int64("owner_id", q.OwnerID).
		Msg("Saved query stored")
	s.metrics.QueriesSaved.WithLabelValues("ok").Inc()
	return nil
}

// Delete removes a saved query. Only its owner or a superuser may do so.
func (s *SavedQueryService) Delete(ctx context.Context, user *models.User, id int64) error {
	q, err := s.Get(ctx, user, id)
	if err != nil {
		return err
	}
	if !user.IsSuperuser && q.OwnerID != user.ID {
		return ErrForbidden
	}
	return s.queries.Delete(ctx, id)
}

// ValidateDefinition returns ErrInvalidQuery unless def has at least one row
// and every row is well formed.
func ValidateDefinition(def models.QueryDefinition) error {
	if !def.IsValid() {
		return ErrInvalidQuery
	}
	return nil
}

func outcome(err error) string {
	if errors.Is(err, ErrNotFound) {
		return "not_found"
	}
	return "error"
}
