// Package session decides which stored session part an incoming event
// belongs to. A broadcast that drops and reconnects within the continuation
// window keeps its part; a later restart becomes the next part of the same
// broadcast day, even if the calendar day has rolled over.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/liverelay/liverelay/internal/errors"
	"github.com/liverelay/liverelay/internal/logging"
	"github.com/liverelay/liverelay/internal/models"
	"github.com/liverelay/liverelay/internal/statestore"
)

// Clock abstracts time.Now for tests.
type Clock func() time.Time

// Outcome says how an assignment was produced.
type Outcome string

const (
	// OutcomeReused means the cached assignment was still valid.
	OutcomeReused Outcome = "reused"
	// OutcomeResumed means an active stored session was picked up again.
	OutcomeResumed Outcome = "resumed"
	// OutcomeNew means a new session part was created.
	OutcomeNew Outcome = "new"
)

// Assignment routes an event to a session part in a day-partition.
type Assignment struct {
	SessionID int64
	Part      int
	Day       string
	Outcome   Outcome
}

// Config carries the temporal rules of the resolver.
type Config struct {
	// CutoverHour is the local hour at which one broadcast day ends and the
	// next begins.
	CutoverHour int
	// UTCOffsetHours converts UTC to the broadcast's local time. It is a
	// fixed offset, deliberately ignoring daylight saving.
	UTCOffsetHours int
	// ContinuationWindow is how long after a part's start a reconnect still
	// resumes that part instead of opening the next one.
	ContinuationWindow time.Duration
	// MaxDaysBack is how many prior broadcast days to search for an active
	// session.
	MaxDaysBack int
}

// Resolver maps streamer identities to session assignments, caching the last
// assignment per identity. The cache is a hint only; every hit is
// re-validated against storage before use.
type Resolver struct {
	store  *statestore.Store
	clock  Clock
	cfg    Config
	logger *logging.Logger

	mu    sync.Mutex
	cache map[string]Assignment
}

// NewResolver builds a Resolver over the given store. A nil clock means
// time.Now.
func NewResolver(store *statestore.Store, cfg Config, clock Clock, logger *logging.Logger) *Resolver {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = logging.Get()
	}
	if cfg.ContinuationWindow <= 0 {
		cfg.ContinuationWindow = 2 * time.Hour
	}
	if cfg.MaxDaysBack <= 0 {
		cfg.MaxDaysBack = 2
	}
	return &Resolver{
		store:  store,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
		cache:  make(map[string]Assignment),
	}
}

// BroadcastDay computes the broadcast day a moment belongs to. Local time is
// UTC shifted by the fixed offset; hours before the cutover still belong to
// the previous day's broadcast.
func (r *Resolver) BroadcastDay(t time.Time) string {
	local := t.UTC().Add(time.Duration(r.cfg.UTCOffsetHours) * time.Hour)
	if local.Hour() < r.cfg.CutoverHour {
		local = local.AddDate(0, 0, -1)
	}
	return local.Format("2006-01-02")
}

// searchDays returns the current broadcast day followed by MaxDaysBack prior
// days, newest first.
func (r *Resolver) searchDays(now time.Time) []string {
	current, err := time.Parse("2006-01-02", r.BroadcastDay(now))
	if err != nil {
		// BroadcastDay always emits the parse layout
		panic(fmt.Sprintf("unparseable broadcast day: %v", err))
	}
	days := make([]string, 0, r.cfg.MaxDaysBack+1)
	for i := 0; i <= r.cfg.MaxDaysBack; i++ {
		days = append(days, current.AddDate(0, 0, -i).Format("2006-01-02"))
	}
	return days
}

// Resolve returns the session assignment for a streamer at the current
// moment. Storage failures propagate to the caller, which is expected to
// drop the event rather than guess a session.
func (r *Resolver) Resolve(ctx context.Context, streamer string) (Assignment, error) {
	now := r.clock()

	if a, ok := r.cached(streamer); ok {
		sess, err := r.store.GetSession(ctx, a.Day, a.SessionID)
		if err == nil && sess.IsActive && now.Sub(sess.StartTime) <= r.cfg.ContinuationWindow {
			a.Outcome = OutcomeReused
			return a, nil
		}
		// closed elsewhere, the partition is gone, or the part has aged
		// past the window and must roll over like any other stale session
		r.Invalidate(streamer)
	}

	sess, day, err := r.store.FindActiveSession(ctx, r.searchDays(now), streamer)
	switch {
	case err == nil:
		if now.Sub(sess.StartTime) <= r.cfg.ContinuationWindow {
			a := Assignment{SessionID: sess.ID, Part: sess.PartNumber, Day: day, Outcome: OutcomeResumed}
			r.remember(streamer, a)
			r.logger.Info("resumed session part", map[string]any{
				"streamer": streamer, "day": day, "part": sess.PartNumber,
			})
			return a, nil
		}
		today := r.BroadcastDay(now)
		if day != today {
			// an active row left behind on a prior broadcast day, typically
			// by a crash: today's broadcast is a fresh session, not part N+1
			// of yesterday's
			if err := r.store.CloseSession(ctx, day, sess.ID, now); err != nil {
				return Assignment{}, err
			}
			created, err := r.store.CreateSession(ctx, today, streamer, now)
			if err != nil {
				return Assignment{}, err
			}
			a := Assignment{SessionID: created.ID, Part: created.PartNumber, Day: today, Outcome: OutcomeNew}
			r.remember(streamer, a)
			return a, nil
		}

		// outside the window: same broadcast day, next part
		next, err := r.store.CreateContinuationPart(ctx, day, sess, now)
		if err != nil {
			return Assignment{}, err
		}
		a := Assignment{SessionID: next.ID, Part: next.PartNumber, Day: day, Outcome: OutcomeNew}
		r.remember(streamer, a)
		return a, nil

	case apperrors.Is(err, apperrors.ErrSessionNotFound):
		day := r.BroadcastDay(now)
		created, err := r.store.CreateSession(ctx, day, streamer, now)
		if err != nil {
			return Assignment{}, err
		}
		a := Assignment{SessionID: created.ID, Part: created.PartNumber, Day: day, Outcome: OutcomeNew}
		r.remember(streamer, a)
		return a, nil

	default:
		return Assignment{}, err
	}
}

// End closes the streamer's current session, if any, and forgets the cached
// assignment.
func (r *Resolver) End(ctx context.Context, streamer string) error {
	now := r.clock()

	a, ok := r.cached(streamer)
	if !ok {
		sess, day, err := r.store.FindActiveSession(ctx, r.searchDays(now), streamer)
		if apperrors.Is(err, apperrors.ErrSessionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		a = Assignment{SessionID: sess.ID, Part: sess.PartNumber, Day: day}
	}
	r.Invalidate(streamer)

	if err := r.store.CloseSession(ctx, a.Day, a.SessionID, now); err != nil {
		return err
	}
	r.logger.Info("session part closed", map[string]any{
		"streamer": streamer, "day": a.Day, "part": a.Part,
	})
	return nil
}

// Invalidate drops the cached assignment for a streamer.
func (r *Resolver) Invalidate(streamer string) {
	r.mu.Lock()
	delete(r.cache, streamer)
	r.mu.Unlock()
}

func (r *Resolver) cached(streamer string) (Assignment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.cache[streamer]
	return a, ok
}

func (r *Resolver) remember(streamer string, a Assignment) {
	r.mu.Lock()
	r.cache[streamer] = a
	r.mu.Unlock()
}

// Sessions is a read view used by the admin surface.
func (r *Resolver) Sessions(ctx context.Context, day string) ([]models.Session, error) {
	return r.store.SessionsSummary(ctx, day)
}
