package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// ErrPersist wraps any document-write failure. The stored-object write and
// the share-record write are not transactional; callers surface this
// distinctly so the UI can show "uploaded but not shared".
var ErrPersist = errors.New("share: persist failed")

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("share: record not found")

// DB is the subset of pgxpool.Pool the publisher needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Record is a create-once, read-many entry mapping an opaque id to a
// previously stored artifact.
type Record struct {
	ID              string
	StoredObjectURL string
	DisplayName     string
	AttributionID   string
	AccessCount     int
	CreatedAt       time.Time
}

// PublishInput carries everything needed to mint a share link. RequestOrigin
// and RequestHost come from the incoming HTTP request and drive share-URL
// resolution.
type PublishInput struct {
	StoredObjectURL string
	DisplayName     string
	AttributionID   string
	RequestOrigin   string
	RequestHost     string
}

// Result is the created record plus its canonical share URL.
type Result struct {
	ID       string
	ShareURL string
}

// Publisher persists share records and produces canonical share URLs.
type Publisher struct {
	db     DB
	appURL string
	logger zerolog.Logger
}

// NewPublisher builds a Publisher. appURL is the statically configured
// application URL used when the request carries no origin.
func NewPublisher(db DB, appURL string, logger zerolog.Logger) *Publisher {
	return &Publisher{db: db, appURL: appURL, logger: logger}
}

const insertShareSQL = `
INSERT INTO shared_images (id, stored_object_url, display_name, attribution_id, created_at)
VALUES ($1, $2, $3, $4, now())
RETURNING created_at`

// Publish creates a new share record and returns its id and share URL. It is
// deliberately not idempotent: every call creates a new record, because each
// share is a distinct event.
func (p *Publisher) Publish(ctx context.Context, in PublishInput) (Result, error) {
	if strings.TrimSpace(in.StoredObjectURL) == "" {
		return Result{}, fmt.Errorf("share: stored object URL is required")
	}

	id := uuid.NewString()
	var createdAt time.Time
	row := p.db.QueryRow(ctx, insertShareSQL, id, in.StoredObjectURL, in.DisplayName, nullable(in.AttributionID))
	if err := row.Scan(&createdAt); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrPersist, err)
	}

	origin := resolveOrigin(in.RequestOrigin, in.RequestHost, p.appURL)
	result := Result{ID: id, ShareURL: origin + "/shared?id=" + id}

	p.logger.Info().
		Str("share_id", id).
		Str("display_name", in.DisplayName).
		Msg("share record created")
	return result, nil
}

const selectShareSQL = `
SELECT id, stored_object_url, display_name, COALESCE(attribution_id, ''), access_count, created_at
FROM shared_images
WHERE id = $1`

// Get loads a share record by id.
func (p *Publisher) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	row := p.db.QueryRow(ctx, selectShareSQL, id)
	if err := row.Scan(&rec.ID, &rec.StoredObjectURL, &rec.DisplayName, &rec.AttributionID, &rec.AccessCount, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return rec, nil
}

const incrementAccessSQL = `
UPDATE shared_images SET access_count = access_count + 1 WHERE id = $1`

// IncrementAccessCount bumps the record's view counter. Best-effort: callers
// typically log and move on when this fails.
func (p *Publisher) IncrementAccessCount(ctx context.Context, id string) error {
	if _, err := p.db.Exec(ctx, incrementAccessSQL, id); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// resolveOrigin picks the origin for the share URL: the request's declared
// origin first, then its host over https, then the configured application
// URL, then a localhost default.
func resolveOrigin(origin, host, appURL string) string {
	if origin = strings.TrimSpace(origin); origin != "" {
		return strings.TrimRight(origin, "/")
	}
	if host = strings.TrimSpace(host); host != "" {
		return "https://" + host
	}
	if appURL = strings.TrimSpace(appURL); appURL != "" {
		return strings.TrimRight(appURL, "/")
	}
	return "http://localhost:3000"
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
