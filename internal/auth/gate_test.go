package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Will-Jameson/portfolio-website/internal/db"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGate(t *testing.T) (*Gate, *fakeClock, *db.Memory, *db.Memory) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	scoped, durable := db.NewMemory(0), db.NewMemory(0)
	return NewGate(scoped, durable, []byte("test-secret"), clk), clk, scoped, durable
}

func TestCredentialLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate, _, _, durable := newTestGate(t)

	if gate.IsCredentialSet(ctx) {
		t.Fatalf("fresh gate must have no credential")
	}
	if gate.VerifyCredential(ctx, "anything") {
		t.Fatalf("verify must fail without a credential")
	}
	if err := gate.SetCredential(ctx, "short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected too-short error, got %v", err)
	}
	if gate.IsCredentialSet(ctx) {
		t.Fatalf("rejected password must not be stored")
	}
	if err := gate.SetCredential(ctx, "hunter22"); err != nil {
		t.Fatalf("set credential: %v", err)
	}
	stored, _, _ := durable.Get(ctx, credentialKey)
	if stored != digest("hunter22") {
		t.Fatalf("unexpected digest %q", stored)
	}
	if !gate.VerifyCredential(ctx, "hunter22") || gate.VerifyCredential(ctx, "hunter23") {
		t.Fatalf("verify mismatch")
	}

	if err := gate.ChangeCredential(ctx, "wrong-one", "newpassword"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if !gate.VerifyCredential(ctx, "hunter22") {
		t.Fatalf("failed change must keep the old password")
	}
	if err := gate.ChangeCredential(ctx, "hunter22", "newpassword"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if !gate.VerifyCredential(ctx, "newpassword") {
		t.Fatalf("expected new password to verify")
	}
}

func TestDigestIsLowercaseHexSHA256(t *testing.T) {
	t.Parallel()
	const want = "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"
	if got := digest("password"); got != want {
		t.Fatalf("digest mismatch: %s", got)
	}
}

func TestLoginFirstTimeThenNormal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate, _, _, _ := newTestGate(t)

	first := gate.Login(ctx, "opensesame", false)
	if !first.Success || !first.FirstTime || first.Token == "" {
		t.Fatalf("unexpected first login %+v", first)
	}
	second := gate.Login(ctx, "opensesame", false)
	if !second.Success || second.FirstTime {
		t.Fatalf("unexpected second login %+v", second)
	}
	wrong := gate.Login(ctx, "nope-nope", false)
	if wrong.Success || wrong.FirstTime || wrong.Token != "" {
		t.Fatalf("unexpected wrong login %+v", wrong)
	}
}

func TestFirstLoginRejectsShortPassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate, _, _, _ := newTestGate(t)

	res := gate.Login(ctx, "abc", false)
	if res.Success || !res.FirstTime {
		t.Fatalf("unexpected result %+v", res)
	}
	if gate.IsCredentialSet(ctx) || gate.IsAuthenticated(ctx) {
		t.Fatalf("short setup password must not change state")
	}
}

func TestSessionScopes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate, _, scoped, durable := newTestGate(t)

	if _, err := gate.CreateSession(ctx, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok, _ := scoped.Get(ctx, sessionKey); !ok {
		t.Fatalf("short session must live in the scoped tier")
	}
	if _, ok, _ := durable.Get(ctx, sessionKey); ok {
		t.Fatalf("short session must not reach the durable tier")
	}

	gate.Logout(ctx)
	if gate.IsAuthenticated(ctx) {
		t.Fatalf("logout must end the session")
	}

	if _, err := gate.CreateSession(ctx, true); err != nil {
		t.Fatalf("create remembered: %v", err)
	}
	if _, ok, _ := durable.Get(ctx, sessionKey); !ok {
		t.Fatalf("remembered session must live in the durable tier")
	}
	session, ok := gate.Session(ctx)
	if !ok || session.ExpiresAt-session.Timestamp != RememberDuration.Milliseconds() {
		t.Fatalf("unexpected remembered session %+v", session)
	}
	gate.Logout(ctx)
	if _, ok, _ := durable.Get(ctx, sessionKey); ok {
		t.Fatalf("logout must clear the durable tier")
	}
}

func TestSessionExpiresAfterADay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate, clk, scoped, _ := newTestGate(t)

	if _, err := gate.CreateSession(ctx, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	clk.Advance(24 * time.Hour)
	if !gate.IsAuthenticated(ctx) {
		t.Fatalf("session must still be valid at exactly 24h")
	}
	clk.Advance(time.Second)
	if gate.IsAuthenticated(ctx) {
		t.Fatalf("session must be expired at 24h+1s")
	}
	if _, ok, _ := scoped.Get(ctx, sessionKey); ok {
		t.Fatalf("expired session must be cleared")
	}
}

func TestScopedSessionTakesPriority(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate, _, _, _ := newTestGate(t)

	remembered, err := gate.CreateSession(ctx, true)
	if err != nil {
		t.Fatalf("create remembered: %v", err)
	}
	short, err := gate.CreateSession(ctx, false)
	if err != nil {
		t.Fatalf("create short: %v", err)
	}
	if !gate.Authenticate(ctx, short) {
		t.Fatalf("scoped session must win the lookup")
	}
	if gate.Authenticate(ctx, remembered) {
		t.Fatalf("shadowed durable token must not authenticate")
	}
}

func TestAuthenticateRejectsForeignTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate, _, _, _ := newTestGate(t)
	other, _, _, _ := newTestGate(t)
	other.secret = []byte("someone-else")

	token, err := gate.CreateSession(ctx, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	forged, err := other.CreateSession(ctx, false)
	if err != nil {
		t.Fatalf("create forged: %v", err)
	}
	if !gate.Authenticate(ctx, token) {
		t.Fatalf("own token must authenticate")
	}
	for _, bad := range []string{"", "garbage", forged} {
		if gate.Authenticate(ctx, bad) {
			t.Fatalf("token %q must not authenticate", bad)
		}
	}
}

func TestCorruptSessionIsDiscarded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate, _, scoped, _ := newTestGate(t)
	if err := scoped.Set(ctx, sessionKey, "{not a token"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if gate.IsAuthenticated(ctx) {
		t.Fatalf("corrupt session must not authenticate")
	}
	if _, ok, _ := scoped.Get(ctx, sessionKey); ok {
		t.Fatalf("corrupt session must be removed")
	}
}

func TestRequireAuthRecordsRedirect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate, _, _, _ := newTestGate(t)

	if gate.RequireAuth(ctx, "/admin/editor?id=abc") {
		t.Fatalf("expected access to be refused")
	}
	if got := gate.TakeRedirect(ctx); got != "/admin/editor?id=abc" {
		t.Fatalf("unexpected redirect %q", got)
	}
	if got := gate.TakeRedirect(ctx); got != "" {
		t.Fatalf("redirect must be consumed, got %q", got)
	}
	if _, err := gate.CreateSession(ctx, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !gate.RequireAuth(ctx, "/admin") {
		t.Fatalf("expected access once logged in")
	}
}

func TestExtendSessionKeepsTokenValid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate, clk, _, durable := newTestGate(t)

	if gate.ExtendSession(ctx) {
		t.Fatalf("extend must fail without a session")
	}
	token, err := gate.CreateSession(ctx, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	clk.Advance(time.Hour)
	if !gate.ExtendSession(ctx) {
		t.Fatalf("extend failed")
	}
	session, _ := gate.Session(ctx)
	if want := clk.Now().Add(SessionDuration).UnixMilli(); session.ExpiresAt != want {
		t.Fatalf("expected expiry %d, got %d", want, session.ExpiresAt)
	}
	if _, ok, _ := durable.Get(ctx, sessionKey); !ok {
		t.Fatalf("extension must stay in the tier that held the session")
	}
	if !gate.Authenticate(ctx, token) {
		t.Fatalf("token issued before extension must still authenticate")
	}
}

func TestAutoExtendOncePerWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate, clk, _, _ := newTestGate(t)
	if _, err := gate.CreateSession(ctx, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	ext := gate.setupAutoExtend(ctx, time.Hour)
	defer ext.Stop()

	// Far from expiry: the signal is spent without extending.
	gate.NoteActivity(ctx)
	before, _ := gate.Session(ctx)
	clk.Advance(SessionDuration - 2*time.Minute)
	gate.NoteActivity(ctx)
	after, _ := gate.Session(ctx)
	if after.ExpiresAt != before.ExpiresAt {
		t.Fatalf("only the first signal in a window may act")
	}

	ext.armed.Store(true)
	gate.NoteActivity(ctx)
	extended, ok := gate.Session(ctx)
	if !ok || extended.ExpiresAt != clk.Now().Add(SessionDuration).UnixMilli() {
		t.Fatalf("expected extension near expiry, got %+v", extended)
	}
}

func TestAutoExtendRearmsAndStopsOnLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate, _, _, _ := newTestGate(t)
	if _, err := gate.CreateSession(ctx, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	ext := gate.setupAutoExtend(ctx, 5*time.Millisecond)
	ext.Touch(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for !ext.armed.Load() {
		if time.Now().After(deadline) {
			t.Fatalf("extender never re-armed")
		}
		time.Sleep(time.Millisecond)
	}

	gate.Logout(ctx)
	select {
	case <-ext.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("logout must stop the extender")
	}
}

func TestAutoExtendEndsWithSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate, clk, _, _ := newTestGate(t)
	if _, err := gate.CreateSession(ctx, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	ext := gate.setupAutoExtend(ctx, 5*time.Millisecond)
	clk.Advance(SessionDuration + time.Minute)
	select {
	case <-ext.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("extender must exit once the session has expired")
	}
}

func TestSetupAutoExtendReplacesPrevious(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	gate, _, _, _ := newTestGate(t)
	if _, err := gate.CreateSession(ctx, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	first := gate.setupAutoExtend(ctx, time.Hour)
	second := gate.setupAutoExtend(ctx, time.Hour)
	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("previous extender must be stopped")
	}
	cancel()
	select {
	case <-second.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("context cancellation must stop the extender")
	}
}
