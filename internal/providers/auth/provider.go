package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/http/client"
)

const refreshPath = "/api/v1/auth/token/refresh/"

// Identity is the signed-in user and its bearer credentials
type Identity struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

// Poster sends an unauthenticated JSON POST
type Poster interface {
	Post(ctx context.Context, operation, path string, body, out interface{}) error
}

// ChangeHook runs after the signed-in user changes. userID is empty after
// sign-out.
type ChangeHook func(ctx context.Context, userID string)

// Provider holds the current identity and refreshes its access token.
// It satisfies client.TokenSource.
type Provider struct {
	refresher Poster
	logger    *logging.Logger

	mu       sync.RWMutex
	identity Identity
	hooks    []ChangeHook

	group singleflight.Group
}

// NewProvider creates a signed-out provider. refresher must not itself use
// the provider as its token source.
func NewProvider(refresher Poster, logger *logging.Logger) *Provider {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Provider{
		refresher: refresher,
		logger:    logger.Named("auth"),
	}
}

// OnChange registers a hook fired when the user changes
func (p *Provider) OnChange(hook ChangeHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, hook)
}

// Login installs an identity. Hooks fire only when the user id differs
// from the previous one; a same-user login just rotates tokens.
func (p *Provider) Login(ctx context.Context, identity Identity) error {
	if identity.AccessToken == "" {
		return fmt.Errorf("%w: access token required", client.ErrUnauthenticated)
	}

	p.mu.Lock()
	prev := p.identity.UserID
	p.identity = identity
	hooks := p.hooksLocked()
	p.mu.Unlock()

	p.logger.Info("Signed in", zap.String("user_id", identity.UserID))
	if prev != identity.UserID {
		fire(ctx, hooks, identity.UserID)
	}
	return nil
}

// Logout clears the identity and fires hooks
func (p *Provider) Logout(ctx context.Context) {
	p.mu.Lock()
	prev := p.identity.UserID
	wasSignedIn := p.identity.AccessToken != ""
	p.identity = Identity{}
	hooks := p.hooksLocked()
	p.mu.Unlock()

	if !wasSignedIn {
		return
	}
	p.logger.Info("Signed out", zap.String("user_id", prev))
	fire(ctx, hooks, "")
}

// Current returns a copy of the identity and whether anyone is signed in
func (p *Provider) Current() (Identity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity, p.identity.AccessToken != ""
}

// Token returns the access token
func (p *Provider) Token() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity.AccessToken, p.identity.AccessToken != ""
}

// Refresh exchanges the refresh token for a new access token. Concurrent
// callers share one round trip. A rejected refresh signs the user out.
func (p *Provider) Refresh(ctx context.Context) (string, error) {
	v, err, _ := p.group.Do("refresh", func() (interface{}, error) {
		return p.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Provider) refresh(ctx context.Context) (string, error) {
	p.mu.RLock()
	current := p.identity
	p.mu.RUnlock()

	if current.RefreshToken == "" {
		return "", client.ErrUnauthenticated
	}

	var out struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	err := p.refresher.Post(ctx, "refresh", refreshPath, map[string]string{"refresh": current.RefreshToken}, &out)
	if err == nil && out.Access == "" {
		err = errors.New("refresh response carried no access token")
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		p.logger.Warn("Token refresh failed, signing out", zap.Error(err))
		p.Logout(context.WithoutCancel(ctx))
		return "", fmt.Errorf("%w: %w", client.ErrUnauthenticated, err)
	}

	p.mu.Lock()
	// A different login may have happened while the refresh was in flight.
	if p.identity.UserID == current.UserID && p.identity.RefreshToken == current.RefreshToken {
		p.identity.AccessToken = out.Access
		if out.Refresh != "" {
			p.identity.RefreshToken = out.Refresh
		}
	}
	p.mu.Unlock()

	p.logger.Debug("Access token refreshed")
	return out.Access, nil
}

func (p *Provider) hooksLocked() []ChangeHook {
	return append([]ChangeHook(nil), p.hooks...)
}

func fire(ctx context.Context, hooks []ChangeHook, userID string) {
	for _, hook := range hooks {
		hook(ctx, userID)
	}
}
