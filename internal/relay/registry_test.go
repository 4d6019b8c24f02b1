package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edaconn/internal/transport"
)

// fakePeer is a controllable relay peer.
type fakePeer struct {
	origin     string
	pingErr    error
	fetchResp  *transport.Response
	fetchErr   error
	pingCalls  int
	fetchCalls int
}

func (f *fakePeer) Origin() string { return f.origin }

func (f *fakePeer) Ping(ctx context.Context) error {
	f.pingCalls++
	return f.pingErr
}

func (f *fakePeer) Fetch(ctx context.Context, url, method string, headers map[string]string, body string) (*transport.Response, error) {
	f.fetchCalls++
	return f.fetchResp, f.fetchErr
}

// fakeOpener records open calls.
type fakeOpener struct {
	urls []string
	err  error
}

func (f *fakeOpener) Open(url string) error {
	f.urls = append(f.urls, url)
	return f.err
}

func TestNormalizeOrigin(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://eda.example/some/path", "https://eda.example"},
		{"https://EDA.example:8443/", "https://eda.example:8443"},
		{"not a url", ""},
		{"", ""},
		{"/relative/path", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeOrigin(c.in), "input %q", c.in)
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry(nil)
	p := &fakePeer{origin: "https://eda.example"}

	r.Register(p)
	assert.Equal(t, Peer(p), r.Lookup("https://eda.example"))

	r.Unregister(p)
	assert.Nil(t, r.Lookup("https://eda.example"))
}

func TestNewestRegistrationWinsActiveSlot(t *testing.T) {
	r := NewRegistry(nil)
	old := &fakePeer{origin: "https://eda.example"}
	newer := &fakePeer{origin: "https://eda.example"}

	r.Register(old)
	r.Register(newer)
	assert.Equal(t, Peer(newer), r.Lookup("https://eda.example"))

	// Dropping the newer one leaves no active peer, but the older one
	// remains discoverable.
	r.Unregister(newer)
	assert.Nil(t, r.Lookup("https://eda.example"))
	assert.Equal(t, Peer(old), r.Discover(context.Background(), "https://eda.example"))
}

func TestDiscoverSkipsDeadPeers(t *testing.T) {
	r := NewRegistry(nil)
	dead := &fakePeer{origin: "https://eda.example", pingErr: errors.New("gone")}
	live := &fakePeer{origin: "https://eda.example"}
	r.Register(dead)
	r.Register(live)
	r.Forget("https://eda.example")

	got := r.Discover(context.Background(), "https://eda.example")
	require.NotNil(t, got)
	assert.Equal(t, Peer(live), got)
	assert.Equal(t, Peer(live), r.Lookup("https://eda.example"), "discovery promotes the live peer")
}

func TestEnsure(t *testing.T) {
	t.Run("live peer is a no-op", func(t *testing.T) {
		opener := &fakeOpener{}
		r := NewRegistry(opener)
		r.Register(&fakePeer{origin: "https://eda.example"})

		opened, pending, err := r.Ensure(context.Background(), "https://eda.example/")
		require.NoError(t, err)
		assert.False(t, opened)
		assert.False(t, pending)
		assert.Empty(t, opener.urls, "no browser launch for a live peer")
	})

	t.Run("dead peer within cooldown reports pending", func(t *testing.T) {
		now := time.Now()
		opener := &fakeOpener{}
		r := NewRegistry(opener, WithClock(func() time.Time { return now }))

		opened, pending, err := r.Ensure(context.Background(), "https://eda.example")
		require.NoError(t, err)
		assert.True(t, opened)

		// A peer shows up but then dies; we are still inside the window.
		r.Register(&fakePeer{origin: "https://eda.example", pingErr: errors.New("gone")})
		now = now.Add(5 * time.Second)

		opened, pending, err = r.Ensure(context.Background(), "https://eda.example")
		require.NoError(t, err)
		assert.False(t, opened)
		assert.True(t, pending)
		assert.Len(t, opener.urls, 1, "no second launch inside the cooldown")
	})

	t.Run("no peer yet within cooldown reports pending", func(t *testing.T) {
		now := time.Now()
		opener := &fakeOpener{}
		r := NewRegistry(opener, WithClock(func() time.Time { return now }))

		opened, pending, err := r.Ensure(context.Background(), "https://eda.example")
		require.NoError(t, err)
		assert.True(t, opened)

		// The relay page has not announced itself yet; repeated calls in
		// the window must not spawn more windows.
		now = now.Add(5 * time.Second)
		opened, pending, err = r.Ensure(context.Background(), "https://eda.example")
		require.NoError(t, err)
		assert.False(t, opened)
		assert.True(t, pending)
		assert.Len(t, opener.urls, 1, "no second launch before any peer registers")

		now = now.Add(ReopenCooldown)
		opened, pending, err = r.Ensure(context.Background(), "https://eda.example")
		require.NoError(t, err)
		assert.True(t, opened)
		assert.False(t, pending)
		assert.Len(t, opener.urls, 2, "launches again once the window has passed")
	})

	t.Run("dead peer after cooldown reopens", func(t *testing.T) {
		now := time.Now()
		opener := &fakeOpener{}
		r := NewRegistry(opener, WithClock(func() time.Time { return now }))

		_, _, err := r.Ensure(context.Background(), "https://eda.example")
		require.NoError(t, err)

		r.Register(&fakePeer{origin: "https://eda.example", pingErr: errors.New("gone")})
		now = now.Add(ReopenCooldown + time.Second)

		opened, pending, err := r.Ensure(context.Background(), "https://eda.example")
		require.NoError(t, err)
		assert.True(t, opened)
		assert.False(t, pending)
		assert.Len(t, opener.urls, 2)
		assert.Equal(t, "https://eda.example/", opener.urls[1], "opens the origin root")
	})

	t.Run("invalid url", func(t *testing.T) {
		r := NewRegistry(&fakeOpener{})
		_, _, err := r.Ensure(context.Background(), "not a url")
		assert.ErrorIs(t, err, ErrInvalidURL)
	})

	t.Run("opener failure propagates", func(t *testing.T) {
		r := NewRegistry(&fakeOpener{err: errors.New("no browser")})
		_, _, err := r.Ensure(context.Background(), "https://eda.example")
		assert.Error(t, err)
	})
}

func TestStrategyFetch(t *testing.T) {
	req := transport.Request{
		BaseURL: "https://eda.example",
		URL:     "https://eda.example/api/thing",
		Method:  "GET",
	}

	t.Run("no peer yields nil, nil", func(t *testing.T) {
		s := NewStrategy(NewRegistry(nil))
		resp, err := s.Fetch(context.Background(), req)
		assert.NoError(t, err)
		assert.Nil(t, resp, "unavailable fallback is not an error")
	})

	t.Run("relays through the active peer", func(t *testing.T) {
		r := NewRegistry(nil)
		p := &fakePeer{origin: "https://eda.example", fetchResp: &transport.Response{OK: true, Status: 200, Body: "relayed"}}
		r.Register(p)

		s := NewStrategy(r)
		resp, err := s.Fetch(context.Background(), req)
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, "relayed", resp.Body)
	})

	t.Run("failed peer triggers one rediscovery", func(t *testing.T) {
		r := NewRegistry(nil)
		broken := &fakePeer{origin: "https://eda.example", fetchErr: errors.New("socket closed"), pingErr: errors.New("gone")}
		healthy := &fakePeer{origin: "https://eda.example", fetchResp: &transport.Response{OK: true, Status: 200, Body: "second try"}}
		r.Register(healthy)
		r.Register(broken) // broken holds the active slot

		s := NewStrategy(r)
		resp, err := s.Fetch(context.Background(), req)
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, "second try", resp.Body)
	})

	t.Run("unregistered peer makes the origin unavailable", func(t *testing.T) {
		r := NewRegistry(nil)
		p := &fakePeer{origin: "https://eda.example", fetchResp: &transport.Response{OK: true, Status: 200}}
		r.Register(p)
		r.Unregister(p)

		s := NewStrategy(r)
		resp, err := s.Fetch(context.Background(), req)
		assert.NoError(t, err)
		assert.Nil(t, resp)
	})

	t.Run("invalid base url yields nil, nil", func(t *testing.T) {
		s := NewStrategy(NewRegistry(nil))
		resp, err := s.Fetch(context.Background(), transport.Request{BaseURL: "::::", URL: "https://x/y"})
		assert.NoError(t, err)
		assert.Nil(t, resp)
	})
}
