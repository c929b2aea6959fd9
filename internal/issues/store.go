package issues

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lodgeon/keybridge/internal/cards"
)

var (
	ErrIssueNotFound  = errors.New("card issue not found")
	ErrInvalidIssueID = errors.New("invalid card issue ID")
	ErrNotRetryable   = errors.New("only failed card issues can be retried")
	ErrNoneAvailable  = errors.New("no claimable card issues")
	ErrBadTransition  = errors.New("card issue status cannot move backward")
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const issueColumns = `id, hotel_id, booking_id, card_type, status, payload,
	coalesce(error_message, ''), coalesce(agent_id::text, ''), created_at, updated_at`

type CreateParams struct {
	HotelID   string
	BookingID string
	CardType  cards.CardType
	Payload   json.RawMessage
}

// Create stores a new issue in status pending.
func (s *Store) Create(ctx context.Context, p CreateParams) (*CardIssue, error) {
	if !cards.ValidCardType(p.CardType) {
		return nil, fmt.Errorf("invalid card type: %q", p.CardType)
	}
	if len(p.Payload) == 0 {
		p.Payload = json.RawMessage("{}")
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO card_issues (hotel_id, booking_id, card_type, status, payload)
		VALUES ($1, $2, $3, 'pending', $4)
		RETURNING `+issueColumns,
		p.HotelID, p.BookingID, string(p.CardType), p.Payload)

	issue, err := scanIssue(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create card issue: %w", err)
	}

	slog.Info("Card issue created",
		"issue_id", issue.ID,
		"hotel_id", issue.HotelID,
		"booking_id", issue.BookingID,
		"card_type", issue.CardType)
	return issue, nil
}

func (s *Store) GetByID(ctx context.Context, issueID string) (*CardIssue, error) {
	id, err := uuid.Parse(issueID)
	if err != nil {
		return nil, ErrInvalidIssueID
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM card_issues WHERE id = $1`, id)
	issue, err := scanIssue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIssueNotFound
		}
		return nil, fmt.Errorf("failed to get card issue: %w", err)
	}
	return issue, nil
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	Statuses  []Status
	BookingID string
	Limit     int
}

func (s *Store) List(ctx context.Context, hotelID string, filter Filter) ([]CardIssue, error) {
	query := `SELECT ` + issueColumns + ` FROM card_issues WHERE hotel_id = $1`
	args := []any{hotelID}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			if !ValidStatus(st) {
				return nil, fmt.Errorf("invalid status filter: %q", st)
			}
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		query += fmt.Sprintf(" AND status = ANY($%d::card_issue_status[])", len(args))
	}
	if filter.BookingID != "" {
		args = append(args, filter.BookingID)
		query += fmt.Sprintf(" AND booking_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list card issues: %w", err)
	}
	defer rows.Close()

	var result []CardIssue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card issue: %w", err)
		}
		result = append(result, *issue)
	}
	return result, rows.Err()
}

// Claim atomically hands the oldest available issue for a hotel to one
// agent. The conditional update closes the window where two desks poll the
// same row; exactly one wins, the other sees ErrNoneAvailable or the next
// issue in line.
func (s *Store) Claim(ctx context.Context, hotelID, agentID string) (*CardIssue, error) {
	agentUUID, err := uuid.Parse(agentID)
	if err != nil {
		return nil, fmt.Errorf("invalid agent ID: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE card_issues
		SET status = 'in_progress', agent_id = $2, updated_at = now()
		WHERE id = (
			SELECT id FROM card_issues
			WHERE hotel_id = $1 AND status IN ('pending', 'queued')
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+issueColumns,
		hotelID, agentUUID)

	issue, err := scanIssue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoneAvailable
		}
		return nil, fmt.Errorf("failed to claim card issue: %w", err)
	}

	slog.Info("Card issue claimed",
		"issue_id", issue.ID,
		"agent_id", agentID,
		"card_type", issue.CardType)
	return issue, nil
}

// UpdateStatus moves an issue forward. Backward moves (other than retry,
// which has its own path) are rejected by the WHERE clause so a stale
// writer cannot regress a terminal issue.
func (s *Store) UpdateStatus(ctx context.Context, issueID string, status Status, errorMessage string) (*CardIssue, error) {
	id, err := uuid.Parse(issueID)
	if err != nil {
		return nil, ErrInvalidIssueID
	}
	if !ValidStatus(status) {
		return nil, fmt.Errorf("invalid status: %q", status)
	}
	from := allowedFrom(status)
	if len(from) == 0 {
		return nil, ErrBadTransition
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE card_issues
		SET status = $2::card_issue_status, error_message = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($4::card_issue_status[])
		RETURNING `+issueColumns,
		id, string(status),
		pgtype.Text{String: errorMessage, Valid: errorMessage != ""},
		from)

	issue, err := scanIssue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the row is gone or the move is backward; tell them apart.
			if _, getErr := s.GetByID(ctx, issueID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrBadTransition
		}
		return nil, fmt.Errorf("failed to update card issue: %w", err)
	}
	return issue, nil
}

// Retry resets a failed issue to pending. The payload is deliberately left
// untouched: the retry must reproduce the original card/room/guest binding,
// never a re-derivation from booking state that may have changed underneath
// an already-communicated request.
func (s *Store) Retry(ctx context.Context, issueID string) (*CardIssue, error) {
	id, err := uuid.Parse(issueID)
	if err != nil {
		return nil, ErrInvalidIssueID
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE card_issues
		SET status = 'pending', error_message = NULL, agent_id = NULL, updated_at = now()
		WHERE id = $1 AND status = 'failed'
		RETURNING `+issueColumns, id)

	issue, err := scanIssue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetByID(ctx, issueID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrNotRetryable
		}
		return nil, fmt.Errorf("failed to retry card issue: %w", err)
	}

	slog.Info("Card issue reset for retry", "issue_id", issue.ID, "booking_id", issue.BookingID)
	return issue, nil
}

// RecordProgramLog appends an audit row for one card write.
func (s *Store) RecordProgramLog(ctx context.Context, entry ProgramLogEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO card_program_log (hotel_id, booking_id, card_type, status, card_uid, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.HotelID, entry.BookingID, string(entry.CardType), string(entry.Status),
		pgtype.Text{String: entry.CardUID, Valid: entry.CardUID != ""},
		pgtype.Text{String: entry.ErrorMessage, Valid: entry.ErrorMessage != ""})
	if err != nil {
		return fmt.Errorf("failed to record program log: %w", err)
	}
	return nil
}

func (s *Store) ListProgramLog(ctx context.Context, hotelID, bookingID string, limit int) ([]ProgramLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, hotel_id, booking_id, card_type, status,
			coalesce(card_uid, ''), coalesce(error_message, ''), recorded_at
		FROM card_program_log
		WHERE hotel_id = $1 AND ($2 = '' OR booking_id = $2)
		ORDER BY recorded_at DESC
		LIMIT $3`,
		hotelID, bookingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list program log: %w", err)
	}
	defer rows.Close()

	var result []ProgramLogEntry
	for rows.Next() {
		var e ProgramLogEntry
		var id uuid.UUID
		var cardType, status string
		if err := rows.Scan(&id, &e.HotelID, &e.BookingID, &cardType, &status,
			&e.CardUID, &e.ErrorMessage, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan program log: %w", err)
		}
		e.ID = id.String()
		e.CardType = cards.CardType(cardType)
		e.Status = cards.Status(status)
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanIssue(row pgx.Row) (*CardIssue, error) {
	var issue CardIssue
	var id uuid.UUID
	var cardType, status string
	var createdAt, updatedAt time.Time

	if err := row.Scan(&id, &issue.HotelID, &issue.BookingID, &cardType, &status,
		&issue.Payload, &issue.ErrorMessage, &issue.AgentID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	issue.ID = id.String()
	issue.CardType = cards.CardType(cardType)
	issue.Status = Status(status)
	issue.CreatedAt = createdAt
	issue.UpdatedAt = updatedAt
	return &issue, nil
}
