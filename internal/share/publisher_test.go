package share

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type stubDB struct {
	inserts  [][]any
	rowErr   error
	execErr  error
	execSQL  string
	execArgs []any
}

func (s *stubDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if strings.Contains(sql, "INSERT INTO shared_images") {
		s.inserts = append(s.inserts, args)
		return stubRow{scan: func(dest ...any) error {
			if s.rowErr != nil {
				return s.rowErr
			}
			if ts, ok := dest[0].(*time.Time); ok {
				*ts = time.Now()
			}
			return nil
		}}
	}
	return stubRow{}
}

func (s *stubDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execSQL = sql
	s.execArgs = args
	return pgconn.CommandTag{}, s.execErr
}

func TestPublishIsNotIdempotent(t *testing.T) {
	db := &stubDB{}
	p := NewPublisher(db, "https://genie.example.com", zerolog.Nop())

	in := PublishInput{StoredObjectURL: "https://cdn.example.com/filtered/a.png", DisplayName: "Noir"}
	first, err := p.Publish(context.Background(), in)
	if err != nil {
		t.Fatalf("first Publish returned error: %v", err)
	}
	second, err := p.Publish(context.Background(), in)
	if err != nil {
		t.Fatalf("second Publish returned error: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("identical inputs produced the same id: %s", first.ID)
	}
	if first.ShareURL == second.ShareURL {
		t.Fatalf("identical inputs produced the same share URL: %s", first.ShareURL)
	}
	if len(db.inserts) != 2 {
		t.Fatalf("insert count: got %d want 2", len(db.inserts))
	}
}

func TestPublishShareURLOriginChain(t *testing.T) {
	db := &stubDB{}

	cases := []struct {
		name   string
		origin string
		host   string
		appURL string
		want   string
	}{
		{name: "request origin wins", origin: "https://app.example.com", host: "ignored", appURL: "https://cfg", want: "https://app.example.com"},
		{name: "host over https", host: "genie.example.com", appURL: "https://cfg", want: "https://genie.example.com"},
		{name: "configured app url", appURL: "https://cfg.example.com/", want: "https://cfg.example.com"},
		{name: "localhost default", want: "http://localhost:3000"},
	}
	for _, tc := range cases {
		p := NewPublisher(db, tc.appURL, zerolog.Nop())
		res, err := p.Publish(context.Background(), PublishInput{
			StoredObjectURL: "https://cdn.example.com/x.png",
			RequestOrigin:   tc.origin,
			RequestHost:     tc.host,
		})
		if err != nil {
			t.Fatalf("%s: Publish returned error: %v", tc.name, err)
		}
		want := tc.want + "/shared?id=" + res.ID
		if res.ShareURL != want {
			t.Fatalf("%s: share URL: got %q want %q", tc.name, res.ShareURL, want)
		}
	}
}

func TestPublishRequiresStoredObjectURL(t *testing.T) {
	p := NewPublisher(&stubDB{}, "", zerolog.Nop())
	if _, err := p.Publish(context.Background(), PublishInput{DisplayName: "x"}); err == nil {
		t.Fatal("Publish accepted an empty stored object URL")
	}
}

func TestPublishWrapsPersistFailure(t *testing.T) {
	db := &stubDB{rowErr: errors.New("connection refused")}
	p := NewPublisher(db, "", zerolog.Nop())
	_, err := p.Publish(context.Background(), PublishInput{StoredObjectURL: "https://cdn.example.com/x.png"})
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("error: got %v want ErrPersist", err)
	}
}

func TestGetNotFound(t *testing.T) {
	p := NewPublisher(&stubDB{}, "", zerolog.Nop())
	if _, err := p.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error: got %v want ErrNotFound", err)
	}
}

func TestIncrementAccessCount(t *testing.T) {
	db := &stubDB{}
	p := NewPublisher(db, "", zerolog.Nop())
	if err := p.IncrementAccessCount(context.Background(), "abc"); err != nil {
		t.Fatalf("IncrementAccessCount returned error: %v", err)
	}
	if !strings.Contains(db.execSQL, "access_count + 1") {
		t.Fatalf("unexpected SQL: %q", db.execSQL)
	}
	if len(db.execArgs) != 1 || db.execArgs[0] != "abc" {
		t.Fatalf("unexpected args: %#v", db.execArgs)
	}

	db.execErr = errors.New("closed")
	if err := p.IncrementAccessCount(context.Background(), "abc"); !errors.Is(err, ErrPersist) {
		t.Fatalf("error: got %v want ErrPersist", err)
	}
}
