package quiz

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/highlight"
	"github.com/kuitang/studynotes/internal/obs"
	"github.com/kuitang/studynotes/internal/statestore"
)

// Source returns the current content and highlights of a note or tile.
type Source interface {
	Body(ctx context.Context, ownerID string) (string, []highlight.Highlight, error)
}

// snapshot is the persisted form of an in-flight session. The open question
// is not persisted; a resumed quiz starts with no question selected.
type snapshot struct {
	Revealed []highlight.Highlight `json:"revealed"`
	Stats    Stats                 `json:"stats"`
	Active   bool                  `json:"active"`
	Finished bool                  `json:"finished"`
}

// Service holds the live quiz session of each owner.
//
// While a session is Active its snapshot is written to the state store after
// every change. Leaving Active, by finishing or disabling, deletes it.
type Service struct {
	source Source
	store  statestore.Store

	mu       sync.Mutex
	rng      *rand.Rand
	sessions map[string]Session
}

// NewService creates a quiz service. rng drives option sampling and order;
// nil seeds one from the runtime source.
func NewService(source Source, store statestore.Store, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Service{
		source:   source,
		store:    store,
		rng:      rng,
		sessions: make(map[string]Session),
	}
}

func key(ownerID string) statestore.Key {
	return statestore.Key{Owner: ownerID, Kind: statestore.KindQuizSession}
}

// State returns the owner's live session, Inactive when there is none.
// A live session is first brought in line with the current highlights.
func (s *Service) State(ctx context.Context, ownerID string) (Session, error) {
	if err := validateOwner(ownerID); err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	_, live := s.sessions[ownerID]
	s.mu.Unlock()
	if !live {
		return Session{}, nil
	}

	_, hs, err := s.source.Body(ctx, ownerID)
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.follow(ctx, ownerID, hs).clone(), nil
}

// Enable starts quiz mode. A persisted in-flight session for the owner is
// restored instead of starting fresh.
func (s *Service) Enable(ctx context.Context, ownerID string) (Session, error) {
	if err := validateOwner(ownerID); err != nil {
		return Session{}, err
	}
	_, hs, err := s.source.Body(ctx, ownerID)
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.sessions[ownerID]
	if cur.Phase == Active {
		return s.follow(ctx, ownerID, hs).clone(), nil
	}

	next := cur.Enable()
	if restored, ok := s.restore(ctx, ownerID); ok {
		// The record exists, so commit from the restored session: a restore
		// that finishes on the current highlights must delete it.
		cur = restored
		next, _ = restored.Follow(hs)
		obs.From(ctx).Info("quiz.session_restored",
			"owner_id", ownerID, "revealed", len(next.Revealed), "total", next.Stats.Total)
	}
	s.commit(ctx, ownerID, cur, next)
	if next.Phase == Finished {
		obs.From(ctx).Info("quiz.finished",
			"owner_id", ownerID, "correct", next.Stats.Correct, "wrong", next.Stats.Wrong)
	}
	return next.clone(), nil
}

// Select opens a question for the highlight at (word, index).
func (s *Service) Select(ctx context.Context, ownerID, word string, index int) (Session, error) {
	if err := validateOwner(ownerID); err != nil {
		return Session{}, err
	}
	content, hs, err := s.source.Body(ctx, ownerID)
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.follow(ctx, ownerID, hs)
	next, err := cur.Select(s.rng, content, hs, word, index)
	if err != nil {
		return cur.clone(), err
	}
	s.commit(ctx, ownerID, cur, next)
	return next.clone(), nil
}

// Choose answers the open question and reports whether option was correct.
func (s *Service) Choose(ctx context.Context, ownerID, option string) (Session, bool, error) {
	if err := validateOwner(ownerID); err != nil {
		return Session{}, false, err
	}
	_, hs, err := s.source.Body(ctx, ownerID)
	if err != nil {
		return Session{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.follow(ctx, ownerID, hs)
	next, correct, err := cur.Choose(hs, option)
	if err != nil {
		return cur.clone(), false, err
	}
	s.commit(ctx, ownerID, cur, next)
	if next.Phase == Finished {
		obs.From(ctx).Info("quiz.finished",
			"owner_id", ownerID, "correct", next.Stats.Correct, "wrong", next.Stats.Wrong)
	}
	return next.clone(), correct, nil
}

// Reset clears progress; retry restarts the quiz instead of leaving it.
func (s *Service) Reset(ctx context.Context, ownerID string, retry bool) (Session, error) {
	if err := validateOwner(ownerID); err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.sessions[ownerID]
	next := cur.Reset(retry)
	s.commit(ctx, ownerID, cur, next)
	return next.clone(), nil
}

// Disable leaves quiz mode and forgets the persisted session.
func (s *Service) Disable(ctx context.Context, ownerID string) (Session, error) {
	if err := validateOwner(ownerID); err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.sessions[ownerID]
	next := cur.Disable()
	s.commit(ctx, ownerID, cur, next)
	return next, nil
}

// Forget drops every trace of the owner's quiz. Called when the owning
// note or tile is deleted.
func (s *Service) Forget(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	delete(s.sessions, ownerID)
	s.mu.Unlock()
	return s.store.DeleteOwner(ctx, ownerID)
}

// follow remaps the live session onto hs and commits the result when the
// highlights moved under it. Callers hold s.mu.
func (s *Service) follow(ctx context.Context, ownerID string, hs []highlight.Highlight) Session {
	cur := s.sessions[ownerID]
	next, changed := cur.Follow(hs)
	if changed {
		s.commit(ctx, ownerID, cur, next)
		if next.Phase == Finished {
			obs.From(ctx).Info("quiz.finished",
				"owner_id", ownerID, "correct", next.Stats.Correct, "wrong", next.Stats.Wrong)
		}
	}
	return next
}

// commit installs next as the live session and applies the persistence
// policy. Storage failures are logged; the live session stays authoritative.
func (s *Service) commit(ctx context.Context, ownerID string, prev, next Session) {
	if next.Phase == Inactive {
		delete(s.sessions, ownerID)
	} else {
		s.sessions[ownerID] = next
	}

	switch {
	case next.Phase == Active:
		s.persist(ctx, ownerID, next)
	case prev.Phase == Active, next.Phase == Inactive:
		s.cleanup(ctx, ownerID)
	}
}

func (s *Service) persist(ctx context.Context, ownerID string, sess Session) {
	snap := snapshot{
		Revealed: sess.Revealed,
		Stats:    sess.Stats,
		Active:   true,
	}
	if err := s.store.Put(ctx, key(ownerID), snap); err != nil {
		obs.From(ctx).Warn("quiz.persist_failed", "owner_id", ownerID, "error", err)
	}
}

// cleanup is the single exit path for persisted sessions.
func (s *Service) cleanup(ctx context.Context, ownerID string) {
	if err := s.store.Delete(ctx, key(ownerID)); err != nil {
		obs.From(ctx).Warn("quiz.cleanup_failed", "owner_id", ownerID, "error", err)
	}
}

func (s *Service) restore(ctx context.Context, ownerID string) (Session, bool) {
	var snap snapshot
	ok, err := s.store.Get(ctx, key(ownerID), &snap)
	if err != nil {
		obs.From(ctx).Warn("quiz.restore_failed", "owner_id", ownerID, "error", err)
		return Session{}, false
	}
	if !ok || !snap.Active || snap.Finished {
		return Session{}, false
	}
	return Session{Phase: Active, Revealed: snap.Revealed, Stats: snap.Stats}, true
}

func validateOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return errs.New(errs.InvalidArgument, "owner id is required")
	}
	return nil
}
