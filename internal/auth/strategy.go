package auth

import (
	"context"

	"github.com/corehost/platform/internal/access"
)

// AuthenticationStrategy lets the core accept pluggable credential
// schemes beyond its own session tokens - spec.md §4.6.2 requires the
// precedence chain to end in "session user via pluggable strategy"
// rather than a single hardcoded session-lookup implementation, so a
// deployment can swap in SSO (internal/oidcstrategy) without the core
// changing.
type AuthenticationStrategy interface {
	// Authenticate inspects the incoming request's credential material
	// (already extracted from the Authorization header/cookie by the
	// caller) and returns the resolved user id, or an error if the
	// credential does not belong to this strategy - returning
	// (empty-string, nil) is reserved for "this strategy declines to
	// handle this credential, try the next one".
	Authenticate(ctx context.Context, credential string) (userID string, err error)

	// Name identifies the strategy for logging.
	Name() string
}

// SessionStrategy wraps SessionStore as the default
// AuthenticationStrategy - the core's own opaque session tokens.
type SessionStrategy struct {
	store *SessionStore
}

func NewSessionStrategy(store *SessionStore) *SessionStrategy {
	return &SessionStrategy{store: store}
}

func (s *SessionStrategy) Name() string { return "session" }

func (s *SessionStrategy) Authenticate(ctx context.Context, credential string) (string, error) {
	return s.store.Validate(ctx, credential)
}

// Authenticator resolves the final Caller for an incoming request by
// trying, in order: service token, application bearer token, then
// every configured AuthenticationStrategy (spec.md §4.6.2's
// precedence). The first one to recognize the credential wins.
type Authenticator struct {
	serviceTokens *ServiceTokenIssuer
	apps          *access.ApplicationRepo
	evaluator     *access.Evaluator
	strategies    []AuthenticationStrategy
}

func NewAuthenticator(serviceTokens *ServiceTokenIssuer, apps *access.ApplicationRepo, evaluator *access.Evaluator, strategies ...AuthenticationStrategy) *Authenticator {
	return &Authenticator{serviceTokens: serviceTokens, apps: apps, evaluator: evaluator, strategies: strategies}
}

// Resolve authenticates a bearer-style credential extracted from the
// Authorization header, falling through the precedence chain.
// An empty credential resolves to the anonymous caller.
func (a *Authenticator) Resolve(ctx context.Context, credential string) (*access.Caller, error) {
	if credential == "" {
		return a.evaluator.ResolveAnonymous(ctx)
	}

	if claims, err := a.serviceTokens.Verify(credential); err == nil {
		return &access.Caller{
			Type:        access.CallerTypeService,
			PluginID:    claims.PluginID,
			AccessRules: map[string]struct{}{access.WildcardRule: {}},
			TeamIDs:     map[string]struct{}{},
		}, nil
	}

	if _, _, ok := access.ParseToken(credential); ok {
		app, err := a.apps.VerifyToken(ctx, credential)
		if err != nil {
			return nil, err
		}
		return a.evaluator.ResolveApplication(ctx, app.ID)
	}

	for _, strategy := range a.strategies {
		userID, err := strategy.Authenticate(ctx, credential)
		if err != nil {
			continue
		}
		if userID == "" {
			continue
		}
		return a.evaluator.ResolveUser(ctx, userID)
	}

	// No strategy recognized the credential. spec.md §4.6.2 ends the
	// precedence chain in "otherwise the caller is anonymous" - an
	// unrecognized or malformed credential is not an authentication
	// failure to reject, it just carries no identity.
	return a.evaluator.ResolveAnonymous(ctx)
}
