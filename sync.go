package main

import (
	"context"
	"errors"
	"fmt"

	structValidator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// SyncResult describes one add-or-update run.
type SyncResult struct {
	User     *User
	Fetched  int
	Inserted int
}

// Syncer pulls timelines from a Fetcher into the Store.
type Syncer struct {
	store    *Store
	fetcher  Fetcher
	validate *structValidator.Validate
	limit    int
	metrics  *Metrics
	log      zerolog.Logger
}

func NewSyncer(store *Store, fetcher Fetcher, limit int, metrics *Metrics, log zerolog.Logger) *Syncer {
	return &Syncer{
		store:    store,
		fetcher:  fetcher,
		validate: newValidator(),
		limit:    limit,
		metrics:  metrics,
		log:      log,
	}
}

// AddOrUpdateUser fetches the recent posts of handle and stores the user
// together with every post not seen before. Nothing is written when the
// fetch fails, so an unknown account never gets a local user.
func (s *Syncer) AddOrUpdateUser(ctx context.Context, handle string) (*SyncResult, error) {
	res, err := s.addOrUpdate(ctx, normalizeHandle(handle))
	if s.metrics != nil {
		s.metrics.SyncTotal.WithLabelValues(errorKind(err)).Inc()
		if res != nil {
			s.metrics.TweetsInserted.Add(float64(res.Inserted))
		}
	}
	return res, err
}

func (s *Syncer) addOrUpdate(ctx context.Context, name string) (*SyncResult, error) {
	if err := s.validate.Var(name, "required,handle"); err != nil {
		return nil, fmt.Errorf("%q: %w", name, ErrInvalidHandle)
	}

	timeline, err := s.fetcher.FetchRecentPosts(ctx, name, s.limit)
	if err != nil {
		s.log.Warn().Str("user", name).Str("kind", errorKind(err)).Err(err).Msg("fetch failed")
		return nil, err
	}

	user, inserted, err := s.store.SaveTimeline(ctx, name, timeline)
	if err != nil {
		s.log.Error().Str("user", name).Err(err).Msg("store failed")
		return nil, err
	}

	s.log.Info().
		Str("user", name).
		Int("fetched", len(timeline.Posts)).
		Int("inserted", inserted).
		Msg("user synced")

	return &SyncResult{User: user, Fetched: len(timeline.Posts), Inserted: inserted}, nil
}

// UpdateAllUsers runs AddOrUpdateUser for every stored user, one after
// another. A failing user does not stop the others; all failures are
// returned joined.
func (s *Syncer) UpdateAllUsers(ctx context.Context) ([]SyncResult, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	var (
		results []SyncResult
		errs    []error
	)
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := s.AddOrUpdateUser(ctx, u.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.Name, err))
			continue
		}
		results = append(results, *res)
	}
	return results, errors.Join(errs...)
}
