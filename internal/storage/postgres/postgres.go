// Package postgres is the pgx-backed Store implementation.
//
// Composite effects run inside single transactions or single statements so
// they are atomic with respect to concurrent writers: casting a vote inserts
// the vote row and increments the count behind a row lock, and locking a
// request clears every other lock and sets the target in one UPDATE. There is
// no client-side read-modify-write path for votes or locks.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/notify"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/storage"
	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/logger"
)

// Store is the postgres request store.
type Store struct {
	pool     *pgxpool.Pool
	notifier notify.Notifier
	log      logger.Logger
}

// New creates a postgres store. A nil notifier disables change notifications.
func New(pool *pgxpool.Pool, notifier notify.Notifier, log logger.Logger) *Store {
	if log == nil {
		log = logger.Default()
	}
	return &Store{
		pool:     pool,
		notifier: notifier,
		log:      log.WithFields(logger.F("component", "postgres")),
	}
}

// Connect opens a pgx pool and verifies the connection.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Submit merges into the unplayed title match or creates a new request.
// The matched row is locked for the duration of the transaction, which
// narrows (but does not fully close) the duplicate-title window between two
// brand-new submissions of the same title.
func (s *Store) Submit(ctx context.Context, title, artist string, requester domain.Requester) (storage.SubmitResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storage.SubmitResult{}, fmt.Errorf("begin submit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	var result storage.SubmitResult
	var events []domain.ChangeEvent

	var requestID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM requests
		WHERE lower(title) = lower($1) AND is_played = FALSE
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE
	`, title).Scan(&requestID)

	switch {
	case err == nil:
		result = storage.SubmitResult{RequestID: requestID, Created: false}
	case errors.Is(err, pgx.ErrNoRows):
		requestID = uuid.New().String()
		_, err = tx.Exec(ctx, `
			INSERT INTO requests (id, title, artist, votes, is_locked, is_played, status, created_at)
			VALUES ($1, $2, $3, 0, FALSE, FALSE, 'pending', $4)
		`, requestID, title, artist, now)
		if err != nil {
			return storage.SubmitResult{}, fmt.Errorf("insert request: %w", err)
		}
		result = storage.SubmitResult{RequestID: requestID, Created: true}
		events = append(events, newEvent(domain.OpInsert, domain.RelationRequests, requestID, now))
	default:
		return storage.SubmitResult{}, fmt.Errorf("find merge target: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO requesters (id, request_id, name, photo, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New().String(), requestID, requester.Name, requester.Photo, requester.Message, now)
	if err != nil {
		return storage.SubmitResult{}, fmt.Errorf("insert requester: %w", err)
	}
	events = append(events, newEvent(domain.OpInsert, domain.RelationRequesters, requestID, now))

	if err := tx.Commit(ctx); err != nil {
		return storage.SubmitResult{}, fmt.Errorf("commit submit tx: %w", err)
	}

	s.publish(ctx, events)
	return result, nil
}

// CastVote inserts the vote and increments the count behind a row lock on the
// request, so two concurrent voters can never lose an increment.
func (s *Store) CastVote(ctx context.Context, requestID, voterID string) (domain.VoteOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin vote tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var isPlayed bool
	err = tx.QueryRow(ctx, `
		SELECT is_played FROM requests WHERE id = $1 FOR UPDATE
	`, requestID).Scan(&isPlayed)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrRequestNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock request row: %w", err)
	}
	if isPlayed {
		return domain.RequestPlayed, nil
	}

	now := time.Now()
	tag, err := tx.Exec(ctx, `
		INSERT INTO user_votes (id, request_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT user_votes_request_user_key DO NOTHING
	`, uuid.New().String(), requestID, voterID, now)
	if err != nil {
		return 0, fmt.Errorf("insert vote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.AlreadyVoted, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE requests SET votes = votes + 1 WHERE id = $1
	`, requestID)
	if err != nil {
		return 0, fmt.Errorf("increment votes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit vote tx: %w", err)
	}

	s.publish(ctx, []domain.ChangeEvent{
		newEvent(domain.OpInsert, domain.RelationVotes, requestID, now),
		newEvent(domain.OpUpdate, domain.RelationRequests, requestID, now),
	})
	return domain.VoteAccepted, nil
}

// Lock clears every other lock and sets the target in a single UPDATE, so no
// reader ever sees two locked unplayed requests.
func (s *Store) Lock(ctx context.Context, requestID string) error {
	var isPlayed bool
	err := s.pool.QueryRow(ctx, `
		SELECT is_played FROM requests WHERE id = $1
	`, requestID).Scan(&isPlayed)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrRequestNotFound
	}
	if err != nil {
		return fmt.Errorf("check lock target: %w", err)
	}
	if isPlayed {
		return domain.ErrRequestPlayed
	}

	now := time.Now()
	_, err = s.pool.Exec(ctx, `
		UPDATE requests
		SET is_locked = (id = $1),
		    status    = CASE WHEN id = $1 THEN 'locked' ELSE 'pending' END
		WHERE is_played = FALSE AND (is_locked = TRUE OR id = $1)
	`, requestID)
	if err != nil {
		return fmt.Errorf("lock request: %w", err)
	}

	s.publish(ctx, []domain.ChangeEvent{newEvent(domain.OpUpdate, domain.RelationRequests, requestID, now)})
	return nil
}

// Unlock clears the lock on requestID only.
func (s *Store) Unlock(ctx context.Context, requestID string) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE requests
		SET is_locked = FALSE, status = 'pending'
		WHERE id = $1 AND is_locked = TRUE AND is_played = FALSE
	`, requestID)
	if err != nil {
		return fmt.Errorf("unlock request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the request is gone or it simply was not locked.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, requestID).Scan(&exists); err != nil {
			return fmt.Errorf("check unlock target: %w", err)
		}
		if !exists {
			return domain.ErrRequestNotFound
		}
		return nil
	}

	s.publish(ctx, []domain.ChangeEvent{newEvent(domain.OpUpdate, domain.RelationRequests, requestID, now)})
	return nil
}

// MarkPlayed retires the request, dropping its lock in the same statement.
func (s *Store) MarkPlayed(ctx context.Context, requestID string) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE requests
		SET is_played = TRUE, is_locked = FALSE, status = 'played'
		WHERE id = $1
	`, requestID)
	if err != nil {
		return fmt.Errorf("mark played: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRequestNotFound
	}

	s.publish(ctx, []domain.ChangeEvent{newEvent(domain.OpUpdate, domain.RelationRequests, requestID, now)})
	return nil
}

// Reset hard-deletes every request; requesters and votes cascade.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM requests`); err != nil {
		return fmt.Errorf("reset queue: %w", err)
	}
	s.publish(ctx, []domain.ChangeEvent{newEvent(domain.OpDelete, domain.RelationRequests, "", time.Now())})
	return nil
}

// ListRequests returns all requests with requesters, newest first.
func (s *Store) ListRequests(ctx context.Context) ([]domain.Request, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, artist, votes, is_locked, is_played, status, created_at
		FROM requests
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []domain.Request
	index := make(map[string]int)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		index[req.ID] = len(requests)
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}

	if len(requests) == 0 {
		return []domain.Request{}, nil
	}

	reqRows, err := s.pool.Query(ctx, `
		SELECT id, request_id, name, photo, message, created_at
		FROM requesters
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list requesters: %w", err)
	}
	defer reqRows.Close()

	for reqRows.Next() {
		var rq domain.Requester
		if err := reqRows.Scan(&rq.ID, &rq.RequestID, &rq.Name, &rq.Photo, &rq.Message, &rq.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan requester: %w", err)
		}
		if i, ok := index[rq.RequestID]; ok {
			requests[i].Requesters = append(requests[i].Requesters, rq)
		}
	}
	if err := reqRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requesters: %w", err)
	}

	return requests, nil
}

// GetRequest returns one request with its requesters.
func (s *Store) GetRequest(ctx context.Context, requestID string) (*domain.Request, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, artist, votes, is_locked, is_played, status, created_at
		FROM requests
		WHERE id = $1
	`, requestID)

	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	reqRows, err := s.pool.Query(ctx, `
		SELECT id, request_id, name, photo, message, created_at
		FROM requesters
		WHERE request_id = $1
		ORDER BY created_at ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list requesters: %w", err)
	}
	defer reqRows.Close()

	for reqRows.Next() {
		var rq domain.Requester
		if err := reqRows.Scan(&rq.ID, &rq.RequestID, &rq.Name, &rq.Photo, &rq.Message, &rq.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan requester: %w", err)
		}
		req.Requesters = append(req.Requesters, rq)
	}
	if err := reqRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requesters: %w", err)
	}

	return &req, nil
}

// PurgePlayed hard-deletes played requests older than the cutoff.
func (s *Store) PurgePlayed(ctx context.Context, olderThanDays int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM requests
		WHERE is_played = TRUE AND created_at < now() - make_interval(days => $1)
	`, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("purge played requests: %w", err)
	}
	purged := int(tag.RowsAffected())
	if purged > 0 {
		s.publish(ctx, []domain.ChangeEvent{newEvent(domain.OpDelete, domain.RelationRequests, "", time.Now())})
	}
	return purged, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (domain.Request, error) {
	var (
		req        domain.Request
		isLocked   bool
		isPlayed   bool
		statusName string
	)
	err := row.Scan(&req.ID, &req.Title, &req.Artist, &req.Votes, &isLocked, &isPlayed, &statusName, &req.CreatedAt)
	if err != nil {
		return domain.Request{}, err
	}
	req.Status = domain.ParseStatus(statusName, isLocked, isPlayed)
	req.Requesters = []domain.Requester{}
	return req, nil
}

func newEvent(op domain.ChangeOp, relation, requestID string, at time.Time) domain.ChangeEvent {
	return domain.ChangeEvent{
		ID:         uuid.New().String(),
		Op:         op,
		Relation:   relation,
		RequestID:  requestID,
		OccurredAt: at,
	}
}

func (s *Store) publish(ctx context.Context, events []domain.ChangeEvent) {
	if s.notifier == nil {
		return
	}
	for _, event := range events {
		if err := s.notifier.Publish(ctx, event); err != nil {
			s.log.Warn("change notification failed", logger.Err(err),
				logger.F("relation", event.Relation), logger.F("op", string(event.Op)))
		}
	}
}
