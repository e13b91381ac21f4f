package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/applyflow/internal/errors"
)

// Outcome is the verdict of a single strategy.
type Outcome int

const (
	// Skipped means the channel is not present on the request.
	Skipped Outcome = iota
	// Resolved means the channel identified the caller.
	Resolved
	// Rejected means the channel is present but did not identify the caller.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is what a strategy returns. Credential is set only when Resolved;
// Err only when Rejected.
type Result struct {
	Outcome    Outcome
	Credential *Credential
	Err        error
}

func skip() Result { return Result{Outcome: Skipped} }

func reject(err error) Result { return Result{Outcome: Rejected, Err: err} }

// Strategy resolves a caller from one credential channel.
type Strategy interface {
	Channel() Channel
	Resolve(ctx context.Context, r *http.Request) Result
}

// resolveToken builds a handle for token and asks it for the current user.
// The handle that answered is the one carried by the credential.
func resolveToken(ctx context.Context, factory HandleFactory, channel Channel, token string) Result {
	handle, err := factory.ForToken(token)
	if err != nil {
		cfgErr := errors.Config("Server missing store configuration")
		cfgErr.Err = err
		return reject(cfgErr)
	}

	user, err := handle.CurrentUser(ctx)
	if err != nil {
		return reject(errors.InvalidToken(err))
	}
	if user == nil || user.ID == "" {
		return reject(errors.InvalidToken(fmt.Errorf("token has no user")))
	}

	return Result{
		Outcome: Resolved,
		Credential: &Credential{
			User:    *user,
			Channel: channel,
			Handle:  handle,
		},
	}
}

// =============================================================================
// Bearer
// =============================================================================

var bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)

// BearerStrategy reads "Authorization: Bearer <token>".
type BearerStrategy struct {
	factory HandleFactory
}

func NewBearerStrategy(factory HandleFactory) *BearerStrategy {
	return &BearerStrategy{factory: factory}
}

func (s *BearerStrategy) Channel() Channel { return ChannelBearer }

func (s *BearerStrategy) Resolve(ctx context.Context, r *http.Request) Result {
	m := bearerPattern.FindStringSubmatch(r.Header.Get("Authorization"))
	if m == nil {
		return skip()
	}
	token := strings.TrimSpace(m[1])
	if token == "" {
		return reject(errors.InvalidToken(fmt.Errorf("empty bearer token")))
	}
	return resolveToken(ctx, s.factory, ChannelBearer, token)
}

// =============================================================================
// Session cookie
// =============================================================================

const base64Prefix = "base64-"

// SessionStrategy reads the Supabase SSR auth cookie. The cookie may be split
// into chunks named <name>.0, <name>.1 and so on; its value is the session
// JSON, optionally "base64-" prefixed and base64url encoded.
type SessionStrategy struct {
	factory    HandleFactory
	cookieName string
}

// NewSessionStrategy creates a session strategy reading cookieName.
func NewSessionStrategy(factory HandleFactory, cookieName string) *SessionStrategy {
	return &SessionStrategy{factory: factory, cookieName: cookieName}
}

// CookieNameForProject derives the default auth cookie name from the
// Supabase project URL: sb-<project-ref>-auth-token.
func CookieNameForProject(projectURL string) (string, error) {
	u, err := url.Parse(projectURL)
	if err != nil {
		return "", fmt.Errorf("parse project url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("project url %q has no host", projectURL)
	}
	ref, _, _ := strings.Cut(host, ".")
	return "sb-" + ref + "-auth-token", nil
}

func (s *SessionStrategy) Channel() Channel { return ChannelSession }

func (s *SessionStrategy) Resolve(ctx context.Context, r *http.Request) Result {
	raw, ok := readChunkedCookie(r, s.cookieName)
	if !ok {
		return reject(errors.Unauthorized(""))
	}

	token, err := accessTokenFromSession(raw)
	if err != nil {
		return reject(errors.InvalidToken(err))
	}
	return resolveToken(ctx, s.factory, ChannelSession, token)
}

// readChunkedCookie returns the value of name, or the concatenation of its
// numbered chunks when the whole cookie is absent.
func readChunkedCookie(r *http.Request, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if c, err := r.Cookie(name); err == nil && c.Value != "" {
		return c.Value, true
	}

	chunks := map[int]string{}
	prefix := name + "."
	for _, c := range r.Cookies() {
		if !strings.HasPrefix(c.Name, prefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(c.Name, prefix))
		if err != nil || idx < 0 {
			continue
		}
		chunks[idx] = c.Value
	}
	if len(chunks) == 0 {
		return "", false
	}

	indexes := make([]int, 0, len(chunks))
	for idx := range chunks {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var b strings.Builder
	for want, idx := range indexes {
		if idx != want {
			break
		}
		b.WriteString(chunks[idx])
	}
	return b.String(), b.Len() > 0
}

// accessTokenFromSession extracts access_token from a session cookie value.
func accessTokenFromSession(raw string) (string, error) {
	if strings.Contains(raw, "%") {
		if unescaped, err := url.QueryUnescape(raw); err == nil {
			raw = unescaped
		}
	}

	payload := raw
	if strings.HasPrefix(raw, base64Prefix) {
		decoded, err := decodeBase64(strings.TrimPrefix(raw, base64Prefix))
		if err != nil {
			return "", fmt.Errorf("decode session cookie: %w", err)
		}
		payload = string(decoded)
	}

	if !gjson.Valid(payload) {
		return "", fmt.Errorf("session cookie is not JSON")
	}

	parsed := gjson.Parse(payload)
	var token gjson.Result
	if parsed.IsArray() {
		token = parsed.Get("0")
	} else {
		token = parsed.Get("access_token")
	}
	if token.Type != gjson.String || token.String() == "" {
		return "", fmt.Errorf("session cookie has no access token")
	}
	return token.String(), nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
