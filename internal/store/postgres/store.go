// Package postgres stores applications directly in PostgreSQL. Callers are
// identified by verifying their Supabase access token locally. Every
// operation runs in a transaction under the authenticated role with the
// caller's claims installed, so the table's row level security policies
// apply in addition to the explicit created_by predicates.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/applyflow/internal/applications"
	"github.com/R3E-Network/applyflow/internal/auth"
	"github.com/R3E-Network/applyflow/internal/errors"
	"github.com/R3E-Network/applyflow/internal/metrics"
)

const (
	backendName = "postgres"
	callerRole  = "authenticated"
)

const selectColumns = `id, created_by, company, role_title, job_url, stage,
	CAST(applied_at AS text) AS applied_at, CAST(next_follow_up_at AS text) AS next_follow_up_at,
	salary_min, salary_max, location, remote_type, notes, created_at, updated_at`

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Factory builds token-bound stores over a shared connection pool.
type Factory struct {
	db       *sqlx.DB
	verifier *auth.Verifier
	metrics  *metrics.Metrics
}

// NewFactory creates a factory. m may be nil.
func NewFactory(db *sqlx.DB, verifier *auth.Verifier, m *metrics.Metrics) *Factory {
	return &Factory{db: db, verifier: verifier, metrics: m}
}

// ForToken returns a store for the caller holding token.
func (f *Factory) ForToken(token string) (auth.Handle, error) {
	if f.db == nil {
		return nil, fmt.Errorf("postgres store: no database configured")
	}
	if f.verifier == nil {
		return nil, fmt.Errorf("postgres store: no token verifier configured")
	}
	return &Store{db: f.db, token: token, verifier: f.verifier, metrics: f.metrics}, nil
}

// Store is an applications.Store for one caller.
type Store struct {
	db       *sqlx.DB
	token    string
	verifier *auth.Verifier
	metrics  *metrics.Metrics
}

// CurrentUser verifies the bound token.
func (s *Store) CurrentUser(context.Context) (*auth.User, error) {
	return s.verifier.Verify(s.token)
}

const insertQuery = `INSERT INTO applications (
	created_by, company, role_title, job_url, stage, applied_at, next_follow_up_at,
	salary_min, salary_max, location, remote_type, notes
) VALUES (
	:created_by, :company, :role_title, :job_url, :stage, :applied_at, :next_follow_up_at,
	:salary_min, :salary_max, :location, :remote_type, :notes
) RETURNING ` + selectColumns

func (s *Store) Insert(ctx context.Context, app applications.NewApplication) (*applications.Application, error) {
	var out applications.Application
	err := s.observe("insert", func() error {
		query, args, err := sqlx.Named(insertQuery, app)
		if err != nil {
			return fmt.Errorf("bind insert: %w", err)
		}
		return s.asCaller(ctx, nil, func(tx *sqlx.Tx) error {
			return tx.QueryRowxContext(ctx, tx.Rebind(query), args...).StructScan(&out)
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) Select(ctx context.Context, ownerID, id string) (*applications.Application, error) {
	var out applications.Application
	err := s.observe("select", func() error {
		return s.asCaller(ctx, nil, func(tx *sqlx.Tx) error {
			return tx.GetContext(ctx, &out,
				`SELECT `+selectColumns+` FROM applications WHERE created_by = $1 AND id = $2`,
				ownerID, id)
		})
	})
	return rowOrNil(&out, err)
}

func (s *Store) Update(ctx context.Context, ownerID, id string, patch applications.Patch) (*applications.Application, error) {
	query, args := buildUpdate(ownerID, id, patch)

	var out applications.Application
	err := s.observe("update", func() error {
		return s.asCaller(ctx, nil, func(tx *sqlx.Tx) error {
			return tx.GetContext(ctx, &out, query, args...)
		})
	})
	return rowOrNil(&out, err)
}

// buildUpdate renders a single conditional UPDATE. Column names come only
// from the closed set of patch fields.
func buildUpdate(ownerID, id string, patch applications.Patch) (string, []any) {
	var (
		sets []string
		args []any
	)
	for _, f := range patch.Fields() {
		v, _ := patch.Get(f)
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", f, len(args)))
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, ownerID, id)
	where := fmt.Sprintf("created_by = $%d AND id = $%d", len(args)-1, len(args))

	if g := patch.Guard(); g != nil {
		cmp := "<="
		if g.Op == applications.GuardGTE {
			cmp = ">="
		}
		args = append(args, g.Value)
		where += fmt.Sprintf(" AND (%s IS NULL OR %s %s $%d)", g.Column, g.Column, cmp, len(args))
	}

	query := `UPDATE applications SET ` + strings.Join(sets, ", ") +
		` WHERE ` + where + ` RETURNING ` + selectColumns
	return query, args
}

func (s *Store) Delete(ctx context.Context, ownerID, id string) (*applications.Application, error) {
	var out applications.Application
	err := s.observe("delete", func() error {
		return s.asCaller(ctx, nil, func(tx *sqlx.Tx) error {
			return tx.GetContext(ctx, &out,
				`DELETE FROM applications WHERE created_by = $1 AND id = $2 RETURNING `+selectColumns,
				ownerID, id)
		})
	})
	return rowOrNil(&out, err)
}

func (s *Store) List(ctx context.Context, ownerID string, query applications.ListQuery) ([]applications.Application, int, error) {
	where, args := listFilter(ownerID, query)

	sort := query.Sort
	if !applications.IsSortColumn(sort) {
		sort = applications.DefaultSort
	}
	dir := "DESC"
	if query.Ascending() {
		dir = "ASC"
	}

	var (
		rows  []applications.Application
		total int
	)
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := s.observe("list", func() error {
		return s.asCaller(ctx, opts, func(tx *sqlx.Tx) error {
			if err := tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM applications WHERE `+where, args...); err != nil {
				return err
			}

			pageArgs := append(append([]any{}, args...), query.Limit, query.Offset)
			listQuery := fmt.Sprintf(`SELECT %s FROM applications WHERE %s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
				selectColumns, where, sort, dir, dir, len(args)+1, len(args)+2)
			return tx.SelectContext(ctx, &rows, listQuery, pageArgs...)
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// asCaller runs fn in a transaction bound to the caller: the role is
// switched to authenticated and request.jwt.claims holds the verified token
// claims for the lifetime of the transaction. The token is checked before
// any statement is sent.
func (s *Store) asCaller(ctx context.Context, opts *sql.TxOptions, fn func(tx *sqlx.Tx) error) error {
	claims, err := s.verifier.Claims(s.token)
	if err != nil {
		return errors.InvalidToken(err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("encode claims: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SET LOCAL ROLE `+callerRole); err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, string(payload)); err != nil {
		return fmt.Errorf("set claims: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// listFilter renders the WHERE clause shared by the count and page queries.
func listFilter(ownerID string, query applications.ListQuery) (string, []any) {
	args := []any{ownerID}
	where := "created_by = $1"

	if query.Stage != "" {
		args = append(args, string(query.Stage))
		where += fmt.Sprintf(" AND stage = $%d", len(args))
	}
	if query.Search != "" {
		args = append(args, "%"+escapeLike(query.Search)+"%")
		where += fmt.Sprintf(" AND (company ILIKE $%d OR role_title ILIKE $%d)", len(args), len(args))
	}
	return where, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func rowOrNil(app *applications.Application, err error) (*applications.Application, error) {
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return app, nil
}

// observe runs op, records its metrics and maps driver failures to service
// errors. sql.ErrNoRows and service errors pass through untouched.
func (s *Store) observe(operation string, op func() error) error {
	start := time.Now()
	err := op()
	if stderrors.Is(err, sql.ErrNoRows) {
		s.record(operation, start, nil)
		return err
	}
	s.record(operation, start, err)
	if err == nil {
		return nil
	}
	if errors.GetServiceError(err) != nil {
		return err
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && isClientError(pqErr) {
		return errors.Store(http.StatusBadRequest, pqErr.Message, err)
	}
	return errors.Store(0, "", fmt.Errorf("%s application: %w", operation, err))
}

func (s *Store) record(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordStoreOperation(backendName, operation, time.Since(start), err)
	}
}

// isClientError reports whether the database rejected the statement because
// of the data it carried (data exceptions and integrity violations).
func isClientError(err *pq.Error) bool {
	switch err.Code.Class() {
	case "22", "23":
		return true
	default:
		return false
	}
}

var _ auth.Handle = (*Store)(nil)
