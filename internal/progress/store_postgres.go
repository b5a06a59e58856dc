package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) GetProgress(ctx context.Context, userID string) (*UserProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		p         UserProgress
		completed []byte
		lastDate  *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, user_id, xp_points, current_streak, longest_streak,
		        completed_lessons, last_activity_date, created_at, updated_at
		 FROM user_progress
		 WHERE user_id = $1`,
		userID,
	).Scan(
		&p.ID,
		&p.UserID,
		&p.XPPoints,
		&p.CurrentStreak,
		&p.LongestStreak,
		&completed,
		&lastDate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}

	p.CompletedLessons = decodeCompletedLessons(userID, completed)
	if lastDate != nil {
		d := civil.DateOf(*lastDate)
		p.LastActivityDate = &d
	}
	return &p, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var displayName, avatarURL *string
	err := s.pool.QueryRow(ctx,
		`SELECT display_name, avatar_url FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&displayName, &avatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}

	p := &Profile{UserID: userID}
	if displayName != nil {
		p.DisplayName = *displayName
	}
	if avatarURL != nil {
		p.AvatarURL = *avatarURL
	}
	return p, nil
}

// UpdateProgress upserts the completion fields in a single statement.
func (s *PostgresStore) UpdateProgress(ctx context.Context, userID string, u ProgressUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	completed := u.CompletedLessons
	if completed == nil {
		completed = []string{}
	}
	data, err := json.Marshal(completed)
	if err != nil {
		return fmt.Errorf("marshal completed lessons: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_progress
		   (id, user_id, xp_points, current_streak, longest_streak, completed_lessons, last_activity_date)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6::jsonb, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
		   xp_points          = EXCLUDED.xp_points,
		   current_streak     = EXCLUDED.current_streak,
		   longest_streak     = EXCLUDED.longest_streak,
		   completed_lessons  = EXCLUDED.completed_lessons,
		   last_activity_date = EXCLUDED.last_activity_date,
		   updated_at         = NOW()`,
		uuid.NewString(),
		userID,
		u.XPPoints,
		u.CurrentStreak,
		u.LongestStreak,
		string(data),
		u.LastActivityDate.In(time.UTC),
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// UpsertProfile creates or replaces a user's display profile.
func (s *PostgresStore) UpsertProfile(ctx context.Context, p Profile) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (id, user_id, display_name, avatar_url)
		 VALUES ($1::uuid, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   avatar_url   = EXCLUDED.avatar_url,
		   updated_at   = NOW()`,
		uuid.NewString(),
		p.UserID,
		nullIfEmpty(p.DisplayName),
		nullIfEmpty(p.AvatarURL),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// decodeCompletedLessons reads the stored jsonb list. Anything that is not a
// list of strings is coerced: non-string elements are dropped, duplicates
// collapse, and a value that is not a list becomes empty.
func decodeCompletedLessons(userID string, raw []byte) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}

	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		slog.Warn("malformed completed_lessons, treating as empty",
			"user_id", userID,
			"error", err,
		)
		return out
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		id, ok := item.(string)
		if !ok || id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
