package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/http/client"
)

type fakePoster struct {
	calls  int32
	delay  time.Duration
	err    error
	access string
}

func (f *fakePoster) Post(ctx context.Context, operation, path string, body, out interface{}) error {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return f.err
	}
	res := out.(*struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	})
	res.Access = f.access
	res.Refresh = "rotated"
	return nil
}

func TestLoginFiresHooksOnUserChange(t *testing.T) {
	p := NewProvider(&fakePoster{}, nil)
	var seen []string
	p.OnChange(func(ctx context.Context, userID string) { seen = append(seen, userID) })

	ctx := context.Background()
	require.NoError(t, p.Login(ctx, Identity{UserID: "u1", AccessToken: "a1"}))
	require.NoError(t, p.Login(ctx, Identity{UserID: "u1", AccessToken: "a2"}))
	require.NoError(t, p.Login(ctx, Identity{UserID: "u2", AccessToken: "b1"}))
	p.Logout(ctx)
	p.Logout(ctx)

	assert.Equal(t, []string{"u1", "u2", ""}, seen)

	_, ok := p.Token()
	assert.False(t, ok)
}

func TestLoginRequiresToken(t *testing.T) {
	p := NewProvider(&fakePoster{}, nil)
	err := p.Login(context.Background(), Identity{UserID: "u1"})
	assert.ErrorIs(t, err, client.ErrUnauthenticated)
}

func TestRefreshRotatesTokens(t *testing.T) {
	poster := &fakePoster{access: "fresh"}
	p := NewProvider(poster, nil)
	require.NoError(t, p.Login(context.Background(), Identity{UserID: "u1", AccessToken: "stale", RefreshToken: "r1"}))

	token, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)

	id, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "fresh", id.AccessToken)
	assert.Equal(t, "rotated", id.RefreshToken)
}

func TestRefreshIsShared(t *testing.T) {
	poster := &fakePoster{access: "fresh", delay: 50 * time.Millisecond}
	p := NewProvider(poster, nil)
	require.NoError(t, p.Login(context.Background(), Identity{UserID: "u1", AccessToken: "stale", RefreshToken: "r1"}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := p.Refresh(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "fresh", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&poster.calls))
}

func TestFailedRefreshSignsOut(t *testing.T) {
	p := NewProvider(&fakePoster{err: errors.New("token_not_valid")}, nil)
	var signedOut bool
	p.OnChange(func(ctx context.Context, userID string) { signedOut = userID == "" })
	require.NoError(t, p.Login(context.Background(), Identity{UserID: "u1", AccessToken: "stale", RefreshToken: "r1"}))

	_, err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, client.ErrUnauthenticated)
	assert.True(t, signedOut)

	_, ok := p.Current()
	assert.False(t, ok)
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	poster := &fakePoster{access: "fresh"}
	p := NewProvider(poster, nil)
	require.NoError(t, p.Login(context.Background(), Identity{UserID: "u1", AccessToken: "a"}))

	_, err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, client.ErrUnauthenticated)
	assert.Equal(t, int32(0), atomic.LoadInt32(&poster.calls))
}
