package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Will-Jameson/portfolio-website/internal/clock"
	"github.com/Will-Jameson/portfolio-website/internal/db"
	"github.com/Will-Jameson/portfolio-website/internal/models"
)

const (
	credentialKey = "blog_admin_credential"
	sessionKey    = "blog_session"
	redirectKey   = "blog_redirect_after_login"

	MinPasswordLength = 6
	SessionDuration   = 24 * time.Hour
	RememberDuration  = 30 * 24 * time.Hour
)

var (
	ErrPasswordTooShort  = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidCredential = errors.New("current password is incorrect")
)

// Gate guards the editor with a single admin password. It is a deterrent
// for a personal site, not a security boundary.
type Gate struct {
	// tiers are queried in order: process-scoped first, durable last.
	tiers  []db.Backend
	secret []byte
	clock  clock.Clock

	mu       sync.Mutex
	extender *AutoExtender
}

type LoginResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	FirstTime bool   `json:"firstTime"`
	Token     string `json:"token,omitempty"`
}

type sessionClaims struct {
	models.Session
	jwt.RegisteredClaims
}

// NewGate keeps short sessions in scoped and remembered sessions and the
// credential in durable. An empty secret is replaced by a random one, so
// sessions then do not survive a restart.
func NewGate(scoped, durable db.Backend, secret []byte, clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.System{}
	}
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
		log.Printf("[auth] no session secret configured, sessions will not survive a restart")
	}
	return &Gate{tiers: []db.Backend{scoped, durable}, secret: secret, clock: clk}
}

func (g *Gate) durable() db.Backend {
	return g.tiers[len(g.tiers)-1]
}

func digest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (g *Gate) IsCredentialSet(ctx context.Context) bool {
	stored, ok, err := g.durable().Get(ctx, credentialKey)
	if err != nil {
		log.Printf("[auth] read credential: %v", err)
		return false
	}
	return ok && stored != ""
}

// SetCredential overwrites any existing password without asking for the
// old one. Use ChangeCredential from user-facing flows.
func (g *Gate) SetCredential(ctx context.Context, password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		log.Printf("[auth] rejected password: %v", ErrPasswordTooShort)
		return ErrPasswordTooShort
	}
	if err := g.durable().Set(ctx, credentialKey, digest(password)); err != nil {
		log.Printf("[auth] store credential: %v", err)
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

func (g *Gate) VerifyCredential(ctx context.Context, password string) bool {
	stored, ok, err := g.durable().Get(ctx, credentialKey)
	if err != nil {
		log.Printf("[auth] read credential: %v", err)
		return false
	}
	if !ok || stored == "" {
		return false
	}
	return digest(password) == stored
}

func (g *Gate) ChangeCredential(ctx context.Context, current, next string) error {
	if !g.VerifyCredential(ctx, current) {
		return ErrInvalidCredential
	}
	return g.SetCredential(ctx, next)
}

// Login doubles as first-time setup: with no credential stored, the given
// password becomes the credential and FirstTime is set.
func (g *Gate) Login(ctx context.Context, password string, rememberMe bool) LoginResult {
	if !g.IsCredentialSet(ctx) {
		if err := g.SetCredential(ctx, password); err != nil {
			return LoginResult{Message: err.Error(), FirstTime: true}
		}
		token, err := g.CreateSession(ctx, rememberMe)
		if err != nil {
			return LoginResult{Message: "password saved but the session could not be started", FirstTime: true}
		}
		return LoginResult{Success: true, Message: "Password set. Welcome!", FirstTime: true, Token: token}
	}

	if !g.VerifyCredential(ctx, password) {
		return LoginResult{Message: "Incorrect password"}
	}
	token, err := g.CreateSession(ctx, rememberMe)
	if err != nil {
		return LoginResult{Message: "could not start session"}
	}
	return LoginResult{Success: true, Message: "Login successful", Token: token}
}

// CreateSession writes a fresh session to the scoped tier, or to the
// durable tier when rememberMe is set, replacing the one already there.
func (g *Gate) CreateSession(ctx context.Context, rememberMe bool) (string, error) {
	now := g.clock.Now()
	duration, tier := SessionDuration, g.tiers[0]
	if rememberMe {
		duration, tier = RememberDuration, g.durable()
	}
	claims := sessionClaims{
		Session: models.Session{
			Authenticated: true,
			Timestamp:     now.UnixMilli(),
			ExpiresAt:     now.Add(duration).UnixMilli(),
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	}
	token, err := g.sign(claims)
	if err != nil {
		return "", err
	}
	if err := tier.Set(ctx, sessionKey, token); err != nil {
		log.Printf("[auth] store session: %v", err)
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func (g *Gate) sign(claims sessionClaims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

// parse checks the signature only; expiry is judged against the gate's
// clock by the caller.
func (g *Gate) parse(raw string) (sessionClaims, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return sessionClaims{}, err
	}
	return claims, nil
}

// lookup returns the first readable session record in tier order.
func (g *Gate) lookup(ctx context.Context) (sessionClaims, int, bool) {
	for i, tier := range g.tiers {
		raw, ok, err := tier.Get(ctx, sessionKey)
		if err != nil {
			log.Printf("[auth] read session: %v", err)
			continue
		}
		if !ok || raw == "" {
			continue
		}
		claims, err := g.parse(raw)
		if err != nil {
			log.Printf("[auth] discarding unreadable session: %v", err)
			_ = tier.Remove(ctx, sessionKey)
			continue
		}
		return claims, i, true
	}
	return sessionClaims{}, -1, false
}

// current returns the live session and clears every tier once it has
// expired.
func (g *Gate) current(ctx context.Context) (sessionClaims, int, bool) {
	claims, idx, ok := g.lookup(ctx)
	if !ok {
		return sessionClaims{}, -1, false
	}
	if g.clock.Now().UnixMilli() > claims.Session.ExpiresAt {
		log.Printf("[auth] session expired")
		g.clearSessions(ctx)
		g.stopAutoExtend()
		return sessionClaims{}, -1, false
	}
	if !claims.Authenticated {
		return sessionClaims{}, -1, false
	}
	return claims, idx, true
}

func (g *Gate) IsAuthenticated(ctx context.Context) bool {
	_, _, ok := g.current(ctx)
	return ok
}

// Authenticate reports whether token belongs to the live session. Tokens
// are matched by session id, so a token issued before ExtendSession keeps
// working.
func (g *Gate) Authenticate(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	claims, _, ok := g.current(ctx)
	if !ok {
		return false
	}
	presented, err := g.parse(token)
	if err != nil {
		return false
	}
	return presented.ID != "" && presented.ID == claims.ID
}

// Session returns the live session record, if any.
func (g *Gate) Session(ctx context.Context) (models.Session, bool) {
	claims, _, ok := g.current(ctx)
	return claims.Session, ok
}

func (g *Gate) clearSessions(ctx context.Context) {
	for _, tier := range g.tiers {
		if err := tier.Remove(ctx, sessionKey); err != nil {
			log.Printf("[auth] clear session: %v", err)
		}
	}
}

// Logout clears the session from every tier and stops auto-extension.
func (g *Gate) Logout(ctx context.Context) {
	g.clearSessions(ctx)
	g.stopAutoExtend()
}

// RequireAuth records location for the post-login redirect and returns
// false when nobody is logged in.
func (g *Gate) RequireAuth(ctx context.Context, location string) bool {
	if g.IsAuthenticated(ctx) {
		return true
	}
	if location != "" {
		if err := g.tiers[0].Set(ctx, redirectKey, location); err != nil {
			log.Printf("[auth] remember redirect: %v", err)
		}
	}
	return false
}

// TakeRedirect returns and forgets the location saved by RequireAuth.
func (g *Gate) TakeRedirect(ctx context.Context) string {
	location, ok, err := g.tiers[0].Get(ctx, redirectKey)
	if err != nil || !ok {
		return ""
	}
	_ = g.tiers[0].Remove(ctx, redirectKey)
	return location
}

// ExtendSession pushes the live session's expiry to now + 24h in the tier
// that holds it.
func (g *Gate) ExtendSession(ctx context.Context) bool {
	claims, idx, ok := g.current(ctx)
	if !ok {
		return false
	}
	now := g.clock.Now()
	claims.Session.ExpiresAt = now.Add(SessionDuration).UnixMilli()
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(SessionDuration))
	token, err := g.sign(claims)
	if err != nil {
		log.Printf("[auth] extend session: %v", err)
		return false
	}
	if err := g.tiers[idx].Set(ctx, sessionKey, token); err != nil {
		log.Printf("[auth] extend session: %v", err)
		return false
	}
	return true
}
