package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustguard/internal/models"
)

type failingStore struct{ err error }

func (f failingStore) Increment(context.Context, string, time.Duration, time.Time) (Hit, error) {
	return Hit{}, f.err
}

type recordingStore struct {
	*MemoryStore
	keys []string
}

func (r *recordingStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Hit, error) {
	r.keys = append(r.keys, key)
	return r.MemoryStore.Increment(ctx, key, window, now)
}

func defaultSet(t *testing.T, store Store) *PolicySet {
	t.Helper()
	set, err := NewPolicySet(store, DefaultPolicies())
	require.NoError(t, err)
	return set
}

func TestPolicy_Check_LoginLimit(t *testing.T) {
	login := defaultSet(t, NewMemoryStore()).MustGet(models.PolicyLogin)
	id := Identity{IP: "1.2.3.4", Email: "a@b.com"}

	for i := 1; i <= 10; i++ {
		d := login.Check(context.Background(), id, ms(0))
		require.True(t, d.Admit, "request %d", i)
		assert.Equal(t, int64(i), d.TotalHits)
		assert.Equal(t, 10-i, d.Remaining)
	}

	d := login.Check(context.Background(), id, ms(1))
	assert.False(t, d.Admit)
	assert.False(t, d.FailedOpen)
	assert.Equal(t, int64(11), d.TotalHits)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 900*time.Second, d.RetryAfter)
	assert.Equal(t, int64(900000), d.ResetTime.UnixMilli())
	assert.Equal(t, "login:1.2.3.4:a@b.com", d.Key)
	assert.Equal(t, "Too many login attempts. Please try again after 15 minutes.", d.Message)

	d = login.Check(context.Background(), id, ms(900000))
	assert.True(t, d.Admit, "next window admits again")
	assert.Equal(t, int64(1), d.TotalHits)
}

func TestPolicy_Check_ResultsLimit(t *testing.T) {
	results := defaultSet(t, NewMemoryStore()).MustGet(models.PolicyResults)
	id := Identity{IP: "9.9.9.9"}
	now := ms(30_000)

	for i := 0; i < 60; i++ {
		require.True(t, results.Check(context.Background(), id, now).Admit)
	}
	d := results.Check(context.Background(), id, now)
	assert.False(t, d.Admit)
	assert.Equal(t, 30*time.Second, d.RetryAfter)
	assert.Equal(t, "Too many results requests. Please wait 30 seconds before refreshing.", d.Message)
}

func TestPolicy_Check_RejectedRequestsKeepCounting(t *testing.T) {
	voting := defaultSet(t, NewMemoryStore()).MustGet(models.PolicyVoting)
	id := Identity{UserID: "u1", StudentID: "s1"}

	var last Decision
	for i := 0; i < 6; i++ {
		last = voting.Check(context.Background(), id, ms(0))
	}
	assert.False(t, last.Admit)
	assert.Equal(t, int64(6), last.TotalHits)
}

func TestPolicy_Check_PrefixIsolation(t *testing.T) {
	set := defaultSet(t, NewMemoryStore())
	id := Identity{IP: "5.5.5.5", UserID: "u1", Email: "x@y.z"}

	for i := 0; i < 200; i++ {
		set.MustGet(models.PolicyAPI).Check(context.Background(), id, ms(0))
	}
	assert.False(t, set.MustGet(models.PolicyAPI).Check(context.Background(), id, ms(0)).Admit)

	d := set.MustGet(models.PolicyResults).Check(context.Background(), id, ms(0))
	assert.True(t, d.Admit)
	assert.Equal(t, int64(1), d.TotalHits)

	d = set.MustGet(models.PolicyLogin).Check(context.Background(), id, ms(0))
	assert.True(t, d.Admit)
	assert.Equal(t, int64(1), d.TotalHits)
}

func TestPolicy_Key_Fallbacks(t *testing.T) {
	set := defaultSet(t, NewMemoryStore())
	empty := Identity{}

	tests := []struct {
		policy string
		want   string
	}{
		{models.PolicyLogin, "login:unknown:unknown"},
		{models.PolicyAPI, "api:unknown:anonymous"},
		{models.PolicyVoting, "vote:anonymous:unknown"},
		{models.PolicyBallot, "ballot:anonymous:unknown"},
		{models.PolicyResults, "results:unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			assert.Equal(t, tt.want, set.MustGet(tt.policy).Key(empty))
		})
	}
}

func TestPolicy_Key_Derivation(t *testing.T) {
	set := defaultSet(t, NewMemoryStore())
	id := Identity{IP: "1.2.3.4", UserID: "u7", Email: "a@b.com", StudentID: "s9", ElectionID: "e3"}

	assert.Equal(t, "login:1.2.3.4:a@b.com", set.MustGet(models.PolicyLogin).Key(id))
	assert.Equal(t, "api:1.2.3.4:u7", set.MustGet(models.PolicyAPI).Key(id))
	assert.Equal(t, "vote:u7:s9", set.MustGet(models.PolicyVoting).Key(id))
	assert.Equal(t, "ballot:u7:e3", set.MustGet(models.PolicyBallot).Key(id))
	assert.Equal(t, "results:1.2.3.4", set.MustGet(models.PolicyResults).Key(id))
}

func TestPolicy_Check_AnonymousCallersShareBucket(t *testing.T) {
	store := &recordingStore{MemoryStore: NewMemoryStore()}
	api := defaultSet(t, store).MustGet(models.PolicyAPI)

	api.Check(context.Background(), Identity{IP: "1.1.1.1"}, ms(0))
	d := api.Check(context.Background(), Identity{IP: "1.1.1.1", UserID: "   "}, ms(0))

	assert.Equal(t, int64(2), d.TotalHits)
	assert.Equal(t, []string{"api:1.1.1.1:anonymous", "api:1.1.1.1:anonymous"}, store.keys)
}

func TestPolicy_Check_FailsOpenOnStoreError(t *testing.T) {
	set := defaultSet(t, failingStore{err: errors.New("connection refused")})

	for _, p := range set.Policies() {
		d := p.Check(context.Background(), Identity{IP: "1.2.3.4"}, ms(0))
		assert.True(t, d.Admit, p.Name())
		assert.True(t, d.FailedOpen, p.Name())
		assert.Equal(t, p.MaxRequests(), d.Remaining)
		assert.Equal(t, int64(0), d.TotalHits)
	}
}

func TestPolicy_Check_FailsOpenOnKeyPanic(t *testing.T) {
	store := NewMemoryStore()
	p, err := NewPolicy(store, PolicyConfig{
		Name:        "broken",
		Prefix:      "broken",
		Window:      time.Minute,
		MaxRequests: 1,
		Key:         func(Identity) string { panic("nil dereference") },
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		d := p.Check(context.Background(), Identity{}, ms(0))
		assert.True(t, d.Admit)
		assert.True(t, d.FailedOpen)
		assert.Empty(t, d.Key)
	}
	assert.Equal(t, 0, store.Len(), "nothing is counted when the key cannot be derived")
}

func TestNewPolicy_Validation(t *testing.T) {
	valid := PolicyConfig{Name: "p", Prefix: "p", Window: time.Second, MaxRequests: 1, Key: ResultsKey}

	tests := []struct {
		name    string
		mutate  func(*PolicyConfig)
		wantErr error
	}{
		{"zero window", func(c *PolicyConfig) { c.Window = 0 }, ErrInvalidWindow},
		{"negative window", func(c *PolicyConfig) { c.Window = -time.Second }, ErrInvalidWindow},
		{"sub-millisecond window", func(c *PolicyConfig) { c.Window = 10 * time.Microsecond }, ErrInvalidWindow},
		{"zero limit", func(c *PolicyConfig) { c.MaxRequests = 0 }, ErrInvalidLimit},
		{"empty prefix", func(c *PolicyConfig) { c.Prefix = "" }, ErrInvalidPrefix},
		{"prefix with separator", func(c *PolicyConfig) { c.Prefix = "a:b" }, ErrInvalidPrefix},
		{"missing name", func(c *PolicyConfig) { c.Name = "" }, nil},
		{"missing key func", func(c *PolicyConfig) { c.Key = nil }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewPolicy(NewMemoryStore(), cfg)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	_, err := NewPolicy(nil, valid)
	assert.Error(t, err)

	p, err := NewPolicy(NewMemoryStore(), valid)
	require.NoError(t, err)
	assert.Equal(t, time.Second, p.RetryAfter())
}

func TestPolicy_RetryAfterRoundsUp(t *testing.T) {
	tests := []struct {
		window   time.Duration
		expected time.Duration
	}{
		{time.Millisecond, time.Second},
		{400 * time.Millisecond, time.Second},
		{1500 * time.Millisecond, 2 * time.Second},
		{time.Second, time.Second},
		{15 * time.Minute, 900 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.window.String(), func(t *testing.T) {
			p := MustPolicy(NewMemoryStore(), PolicyConfig{Name: "p", Prefix: "p", Window: tt.window, MaxRequests: 1, Key: ResultsKey})
			assert.Equal(t, tt.expected, p.RetryAfter())

			p.Check(context.Background(), Identity{}, ms(0))
			d := p.Check(context.Background(), Identity{}, ms(0))
			assert.False(t, d.Admit)
			assert.Equal(t, tt.expected, d.RetryAfter)
		})
	}
}

func TestMustPolicy_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustPolicy(NewMemoryStore(), PolicyConfig{Name: "p", Prefix: "p", Window: 0, MaxRequests: 1, Key: ResultsKey})
	})
}

func TestHumanizeWindow(t *testing.T) {
	assert.Equal(t, "15 minutes", humanizeWindow(15*time.Minute))
	assert.Equal(t, "1 minute", humanizeWindow(time.Minute))
	assert.Equal(t, "30 seconds", humanizeWindow(30*time.Second))
	assert.Equal(t, "2 hours", humanizeWindow(2*time.Hour))
	assert.Equal(t, "1500 milliseconds", humanizeWindow(1500*time.Millisecond))
}
