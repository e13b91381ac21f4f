// Package supabasestore stores applications through Supabase PostgREST with
// the caller's own access token, so row level security applies on top of the
// explicit owner predicates built here.
package supabasestore

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/applyflow/internal/applications"
	"github.com/R3E-Network/applyflow/internal/auth"
	"github.com/R3E-Network/applyflow/internal/errors"
	"github.com/R3E-Network/applyflow/internal/metrics"
	"github.com/R3E-Network/applyflow/supabase/client"
)

const backendName = "supabase"

// Config configures the factory.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	// Verifier, when set, is tried before asking Supabase Auth for the user.
	Verifier *auth.Verifier
	Metrics  *metrics.Metrics
}

// Factory builds token-bound stores. A factory built from incomplete
// configuration fails every ForToken call.
type Factory struct {
	base     *client.Client
	err      error
	verifier *auth.Verifier
	metrics  *metrics.Metrics
}

// NewFactory creates a factory.
func NewFactory(cfg Config) *Factory {
	base, err := client.New(client.Config{
		URL:        cfg.URL,
		APIKey:     cfg.APIKey,
		HTTPClient: cfg.HTTPClient,
	})
	return &Factory{
		base:     base,
		err:      err,
		verifier: cfg.Verifier,
		metrics:  cfg.Metrics,
	}
}

// ForToken returns a store presenting token on every call.
func (f *Factory) ForToken(token string) (auth.Handle, error) {
	if f.err != nil {
		return nil, fmt.Errorf("supabase store: %w", f.err)
	}
	return &Store{
		client:   f.base.WithAccessToken(token),
		verifier: f.verifier,
		metrics:  f.metrics,
	}, nil
}

// Store is an applications.Store bound to one caller's token.
type Store struct {
	client   *client.Client
	verifier *auth.Verifier
	metrics  *metrics.Metrics
}

// CurrentUser returns the user owning the bound token.
func (s *Store) CurrentUser(ctx context.Context) (*auth.User, error) {
	if s.verifier != nil {
		if user, err := s.verifier.Verify(s.client.AccessToken()); err == nil {
			return user, nil
		}
	}

	u, err := s.client.Auth().GetUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &auth.User{ID: u.ID, Email: u.Email, Role: u.Role}, nil
}

func (s *Store) table() *client.QueryBuilder {
	return s.client.From(applications.Table).Select("*")
}

func (s *Store) owned(ownerID, id string) *client.QueryBuilder {
	return s.table().Eq("created_by", ownerID).Eq("id", id)
}

func (s *Store) Insert(ctx context.Context, app applications.NewApplication) (*applications.Application, error) {
	var out *applications.Application
	err := s.observe("insert", func() error {
		resp, err := s.table().ExecuteInsert(ctx, app)
		if err != nil {
			return err
		}
		out, err = singleRow(resp)
		return err
	})
	return out, err
}

func (s *Store) Select(ctx context.Context, ownerID, id string) (*applications.Application, error) {
	var out *applications.Application
	err := s.observe("select", func() error {
		resp, err := s.owned(ownerID, id).Limit(1).Execute(ctx)
		if err != nil {
			return err
		}
		out, err = singleRow(resp)
		return err
	})
	return out, err
}

func (s *Store) Update(ctx context.Context, ownerID, id string, patch applications.Patch) (*applications.Application, error) {
	var out *applications.Application
	err := s.observe("update", func() error {
		q := s.owned(ownerID, id)
		if g := patch.Guard(); g != nil {
			q = q.Or(
				string(g.Column)+".is.null",
				fmt.Sprintf("%s.%s.%s", g.Column, g.Op, strconv.FormatFloat(g.Value, 'f', -1, 64)),
			)
		}
		resp, err := q.ExecuteUpdate(ctx, patch)
		if err != nil {
			return err
		}
		out, err = singleRow(resp)
		return err
	})
	return out, err
}

func (s *Store) Delete(ctx context.Context, ownerID, id string) (*applications.Application, error) {
	var out *applications.Application
	err := s.observe("delete", func() error {
		resp, err := s.owned(ownerID, id).ExecuteDelete(ctx)
		if err != nil {
			return err
		}
		out, err = singleRow(resp)
		return err
	})
	return out, err
}

func (s *Store) List(ctx context.Context, ownerID string, query applications.ListQuery) ([]applications.Application, int, error) {
	var (
		rows  []applications.Application
		total int
	)
	err := s.observe("list", func() error {
		q := s.table().Eq("created_by", ownerID).Count("exact")
		if query.Stage != "" {
			q = q.Eq("stage", query.Stage)
		}
		if query.Search != "" {
			pattern := ilikeValue(query.Search)
			q = q.Or(
				"company.ilike."+pattern,
				"role_title.ilike."+pattern,
			)
		}
		sort := query.Sort
		if !applications.IsSortColumn(sort) {
			sort = applications.DefaultSort
		}
		q = q.Order(sort, query.Ascending()).Limit(query.Limit).Offset(query.Offset)

		resp, err := q.Execute(ctx)
		if err != nil {
			return err
		}
		if err := resp.Error(); err != nil {
			return err
		}
		if err := resp.JSON(&rows); err != nil {
			return fmt.Errorf("decode rows: %w", err)
		}
		if n, ok := resp.Total(); ok {
			total = n
		} else {
			total = query.Offset + len(rows)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// likeEscaper makes search text literal inside an ILIKE pattern. PostgREST
// rewrites every * to %, so a literal * can only be approximated by the
// single character wildcard.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `_`)

// quoteEscaper escapes a value for a double-quoted PostgREST operand.
var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// ilikeValue renders a case-insensitive substring match for search as a
// quoted logic-tree operand, so separators such as , ( ) stay part of the
// value.
func ilikeValue(search string) string {
	return `"` + quoteEscaper.Replace("*"+likeEscaper.Replace(search)+"*") + `"`
}

// singleRow decodes a representation response holding zero or one row.
func singleRow(resp *client.Response) (*applications.Application, error) {
	if err := resp.Error(); err != nil {
		return nil, err
	}
	var rows []applications.Application
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, fmt.Errorf("expected at most one row, got %d", len(rows))
	}
}

// observe runs op, records its metrics and maps failures to service errors.
func (s *Store) observe(operation string, op func() error) error {
	start := time.Now()
	err := op()
	if s.metrics != nil {
		s.metrics.RecordStoreOperation(backendName, operation, time.Since(start), err)
	}
	if err == nil {
		return nil
	}

	var apiErr *client.APIError
	if stderrors.As(err, &apiErr) {
		return errors.Store(apiErr.StatusCode, apiErr.Message, err)
	}
	return errors.Store(0, "", fmt.Errorf("%s application: %w", operation, err))
}

var _ auth.Handle = (*Store)(nil)
