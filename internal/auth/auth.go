// Package auth resolves the caller of a request from one of several
// credential channels and hands back a data-access handle scoped to that
// caller.
package auth

import (
	"context"

	"github.com/R3E-Network/applyflow/internal/applications"
)

// Channel names the credential channel a caller was resolved from.
type Channel string

const (
	ChannelBearer  Channel = "bearer"
	ChannelSession Channel = "session"
)

// User is an authenticated caller.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Handle is a data-access handle that presents one caller's token to the
// store. CurrentUser asks the identity provider who that token belongs to.
type Handle interface {
	applications.Store
	CurrentUser(ctx context.Context) (*User, error)
}

// HandleFactory builds handles bound to an access token. It fails only when
// the server itself is misconfigured.
type HandleFactory interface {
	ForToken(token string) (Handle, error)
}

// Credential is the request-scoped result of a successful resolution. Handle
// is the same handle that resolved User.
type Credential struct {
	User    User
	Channel Channel
	Handle  Handle
}

type credentialKey struct{}

// WithCredential stores cred in ctx.
func WithCredential(ctx context.Context, cred *Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, cred)
}

// FromContext returns the credential stored by the auth middleware.
func FromContext(ctx context.Context) (*Credential, bool) {
	cred, ok := ctx.Value(credentialKey{}).(*Credential)
	return cred, ok && cred != nil
}
