package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAgentNotFound  = errors.New("agent not found")
	ErrInvalidAgentID = errors.New("invalid agent ID")
	ErrInvalidToken   = errors.New("invalid agent token")
	ErrKeyNotFound    = errors.New("enrollment key not found")
	ErrKeyExpired     = errors.New("enrollment key expired")
	ErrKeyExhausted   = errors.New("enrollment key exhausted")
)

// DefaultLivenessWindow is how long an agent may stay silent before it is
// reported offline.
const DefaultLivenessWindow = 2 * time.Minute

type Service struct {
	pool           *pgxpool.Pool
	livenessWindow time.Duration
}

func NewService(pool *pgxpool.Pool, livenessWindow time.Duration) *Service {
	if livenessWindow <= 0 {
		livenessWindow = DefaultLivenessWindow
	}
	return &Service{
		pool:           pool,
		livenessWindow: livenessWindow,
	}
}

// CreateEnrollmentKey generates and stores a key that lets new desks join a
// hotel. The plaintext key is returned once and never stored.
func (s *Service) CreateEnrollmentKey(ctx context.Context, hotelID string, maxUses, expiresInHours int, notes string) (*EnrollmentKey, string, error) {
	key, err := GenerateEnrollmentKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate key: %w", err)
	}

	expiresAt := time.Now().Add(time.Duration(expiresInHours) * time.Hour)

	var ek EnrollmentKey
	var id uuid.UUID
	err = s.pool.QueryRow(ctx, `
		INSERT INTO enrollment_keys (key_hash, hotel_id, max_uses, expires_at, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, hotel_id, max_uses, used_count, expires_at, created_at, coalesce(notes, '')`,
		HashEnrollmentKey(key), hotelID, maxUses,
		pgtype.Timestamptz{Time: expiresAt, Valid: true},
		pgtype.Text{String: notes, Valid: notes != ""}).
		Scan(&id, &ek.HotelID, &ek.MaxUses, &ek.UsedCount, &ek.ExpiresAt, &ek.CreatedAt, &ek.Notes)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store enrollment key: %w", err)
	}
	ek.ID = id.String()

	slog.Info("Enrollment key created",
		"key_id", ek.ID,
		"hotel_id", hotelID,
		"max_uses", maxUses,
		"expires_at", ek.ExpiresAt)
	return &ek, key, nil
}

func (s *Service) ListEnrollmentKeys(ctx context.Context, hotelID string) ([]EnrollmentKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hotel_id, max_uses, used_count, expires_at, created_at, revoked_at, coalesce(notes, '')
		FROM enrollment_keys
		WHERE hotel_id = $1
		ORDER BY created_at DESC`, hotelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollment keys: %w", err)
	}
	defer rows.Close()

	var result []EnrollmentKey
	for rows.Next() {
		var ek EnrollmentKey
		var id uuid.UUID
		var revokedAt pgtype.Timestamptz
		if err := rows.Scan(&id, &ek.HotelID, &ek.MaxUses, &ek.UsedCount,
			&ek.ExpiresAt, &ek.CreatedAt, &revokedAt, &ek.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment key: %w", err)
		}
		ek.ID = id.String()
		if revokedAt.Valid {
			t := revokedAt.Time
			ek.RevokedAt = &t
		}
		result = append(result, ek)
	}
	return result, rows.Err()
}

func (s *Service) RevokeEnrollmentKey(ctx context.Context, keyID string) error {
	id, err := uuid.Parse(keyID)
	if err != nil {
		return fmt.Errorf("invalid key ID: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE enrollment_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke enrollment key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}

	slog.Info("Enrollment key revoked", "key_id", keyID)
	return nil
}

// Enroll validates an enrollment key and registers a new desk agent for the
// key's hotel. The returned bearer token is shown once; only its bcrypt
// hash is stored.
func (s *Service) Enroll(ctx context.Context, key, name string) (*EnrollResult, error) {
	var keyID uuid.UUID
	var hotelID string
	var expiresAt time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT id, hotel_id, expires_at
		FROM enrollment_keys
		WHERE key_hash = $1 AND revoked_at IS NULL`,
		HashEnrollmentKey(key)).
		Scan(&keyID, &hotelID, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			slog.Warn("Enrollment attempt with unknown key")
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to look up enrollment key: %w", err)
	}

	if time.Now().After(expiresAt) {
		slog.Warn("Enrollment attempt with expired key", "key_id", keyID.String())
		return nil, ErrKeyExpired
	}

	// Atomic usage bump: the WHERE clause means concurrent enrollments can
	// never exceed max_uses, only one request wins the last slot.
	tag, err := s.pool.Exec(ctx, `
		UPDATE enrollment_keys
		SET used_count = used_count + 1
		WHERE id = $1 AND used_count < max_uses AND revoked_at IS NULL`, keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to increment key usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		slog.Warn("Enrollment attempt with exhausted key", "key_id", keyID.String())
		return nil, ErrKeyExhausted
	}

	token, err := GenerateAgentToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate agent token: %w", err)
	}
	tokenHash, err := HashAgentToken(token)
	if err != nil {
		return nil, err
	}

	var agentID uuid.UUID
	err = s.pool.QueryRow(ctx, `
		INSERT INTO agents (hotel_id, name, token_hash, enrolled_with_key_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		hotelID, name, tokenHash, keyID).
		Scan(&agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	slog.Info("Agent enrolled",
		"agent_id", agentID.String(),
		"hotel_id", hotelID,
		"name", name,
		"key_id", keyID.String())

	return &EnrollResult{
		AgentID: agentID.String(),
		HotelID: hotelID,
		Token:   token,
	}, nil
}

// VerifyToken authenticates a desk agent's bearer token.
func (s *Service) VerifyToken(ctx context.Context, agentID, token string) (*Agent, error) {
	id, err := uuid.Parse(agentID)
	if err != nil {
		return nil, ErrInvalidAgentID
	}

	var agent Agent
	var tokenHash string
	var lastSeen pgtype.Timestamptz
	err = s.pool.QueryRow(ctx, `
		SELECT id, hotel_id, name, token_hash, enrolled_at, last_seen_at
		FROM agents WHERE id = $1`, id).
		Scan(&id, &agent.HotelID, &agent.Name, &tokenHash, &agent.EnrolledAt, &lastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	if !CheckAgentToken(token, tokenHash) {
		slog.Warn("Agent token verification failed", "agent_id", agentID)
		return nil, ErrInvalidToken
	}

	agent.ID = id.String()
	if lastSeen.Valid {
		agent.LastSeenAt = lastSeen.Time
	}
	agent.Status = s.statusFor(agent.LastSeenAt)
	return &agent, nil
}

// Heartbeat records that a desk agent is alive.
func (s *Service) Heartbeat(ctx context.Context, agentID string, at time.Time) error {
	id, err := uuid.Parse(agentID)
	if err != nil {
		return ErrInvalidAgentID
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET last_seen_at = $2 WHERE id = $1`,
		id, pgtype.Timestamptz{Time: at, Valid: true})
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// GetByID returns one agent with its computed online/offline status.
func (s *Service) GetByID(ctx context.Context, agentID string) (*Agent, error) {
	id, err := uuid.Parse(agentID)
	if err != nil {
		return nil, ErrInvalidAgentID
	}

	agent, err := s.scanAgentRow(s.pool.QueryRow(ctx, `
		SELECT id, hotel_id, name, enrolled_at, last_seen_at
		FROM agents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

// ListByHotel returns all desk agents for a hotel. Online/offline is decided
// here, at read time, from the last heartbeat against the liveness window —
// an agent that crashed ten minutes ago reports offline even though it never
// sent a disconnect.
func (s *Service) ListByHotel(ctx context.Context, hotelID string) ([]Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hotel_id, name, enrolled_at, last_seen_at
		FROM agents
		WHERE hotel_id = $1
		ORDER BY enrolled_at`, hotelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var result []Agent
	for rows.Next() {
		agent, err := s.scanAgentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		result = append(result, *agent)
	}
	return result, rows.Err()
}

// AnyOnline reports whether at least one desk for the hotel is alive. Used
// to warn callers that a queued issue may sit pending indefinitely.
func (s *Service) AnyOnline(ctx context.Context, hotelID string) (bool, error) {
	agents, err := s.ListByHotel(ctx, hotelID)
	if err != nil {
		return false, err
	}
	for _, a := range agents {
		if a.Status == AgentOnline {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) statusFor(lastSeen time.Time) AgentStatus {
	if lastSeen.IsZero() || time.Since(lastSeen) > s.livenessWindow {
		return AgentOffline
	}
	return AgentOnline
}

func (s *Service) scanAgentRow(row pgx.Row) (*Agent, error) {
	var agent Agent
	var id uuid.UUID
	var lastSeen pgtype.Timestamptz
	if err := row.Scan(&id, &agent.HotelID, &agent.Name, &agent.EnrolledAt, &lastSeen); err != nil {
		return nil, err
	}
	agent.ID = id.String()
	if lastSeen.Valid {
		agent.LastSeenAt = lastSeen.Time
	}
	agent.Status = s.statusFor(agent.LastSeenAt)
	return &agent, nil
}
