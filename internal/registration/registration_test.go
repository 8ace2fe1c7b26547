package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/welldanyogia/colancer-registry/internal/api"
	"github.com/welldanyogia/colancer-registry/internal/auth"
	"github.com/welldanyogia/colancer-registry/internal/identity"
	"github.com/welldanyogia/colancer-registry/internal/naming"
	"github.com/welldanyogia/colancer-registry/internal/registry"
)

const (
	testWallet     = "0x123456789a000000000000000000000000000000"
	testMerkleRoot = "0xabcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
)

type fakeVerifier struct {
	err   error
	calls int
}

func (f *fakeVerifier) Verify(ctx context.Context, p identity.Proof) error {
	f.calls++
	return f.err
}

// fakeRegistry holds labels in memory and mirrors the unique constraints
type fakeRegistry struct {
	mu         sync.Mutex
	taken      map[string]bool
	nullifiers map[string]bool
	oracleErr  error
	reserveErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{taken: map[string]bool{}, nullifiers: map[string]bool{}}
}

func (f *fakeRegistry) IsAvailable(ctx context.Context, label string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.oracleErr != nil {
		return false, f.oracleErr
	}
	return !f.taken[label], nil
}

func (f *fakeRegistry) Reserve(ctx context.Context, r registry.Reservation) (*registry.SubdomainInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	if f.taken[r.Label] {
		return nil, registry.ErrNameTaken
	}
	if f.nullifiers[r.NullifierHash] {
		return nil, registry.ErrNullifierUsed
	}
	f.taken[r.Label] = true
	f.nullifiers[r.NullifierHash] = true
	fullName := naming.FullName(r.Label, f.ParentDomain())
	return &registry.SubdomainInfo{
		Label:     r.Label,
		FullName:  fullName,
		Node:      naming.Namehash(fullName).Hex(),
		Owner:     strings.ToLower(r.OwnerAddress),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeRegistry) ParentDomain() string { return "colancer.eth" }

func (f *fakeRegistry) isTaken(label string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.taken[label]
}

// fakeSessions issues real token pairs and records which sessions are live
type fakeSessions struct {
	tokens  *auth.TokenService
	mu      sync.Mutex
	openErr error
	live    map[uuid.UUID]string
	revoked []uuid.UUID
}

func (f *fakeSessions) Open(ctx context.Context, wallet, subdomain string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	pair, err := f.tokens.IssuePair(wallet, subdomain)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	f.live[id] = subdomain
	return &auth.Session{
		ID:               id,
		AccessToken:      pair.Token,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresAt:        pair.ExpiresAt,
		ExpiresIn:        pair.ExpiresIn,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

func (f *fakeSessions) Revoke(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, id)
	f.revoked = append(f.revoked, id)
	return nil
}

func (f *fakeSessions) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

type fixture struct {
	svc        *Service
	verifier   *fakeVerifier
	registry   *fakeRegistry
	nullifiers *identity.MemoryNullifierStore
	tokens     *auth.TokenService
	sessions   *fakeSessions
}

func newFixture() *fixture {
	f := &fixture{
		verifier:   &fakeVerifier{},
		registry:   newFakeRegistry(),
		nullifiers: identity.NewMemoryNullifierStore(),
		tokens: auth.NewTokenService(auth.TokenServiceConfig{
			Secret: "registration-test-secret",
			Expiry: time.Hour,
			Issuer: "colancer-test",
		}),
	}
	f.sessions = &fakeSessions{tokens: f.tokens, live: map[uuid.UUID]string{}}
	f.svc = NewService(ServiceConfig{
		Verifier:   f.verifier,
		Nullifiers: f.nullifiers,
		Registry:   f.registry,
		Sessions:   f.sessions,
	})
	return f
}

// nullifier formats n as a 32-byte field element
func nullifier(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func proofFor(wallet, nullifier string) identity.Proof {
	return identity.Proof{
		MerkleRoot:     testMerkleRoot,
		NullifierHash:  nullifier,
		Proof:          "0x01",
		CredentialType: "orb",
		Action:         "register",
		Signal:         identity.Signal(wallet),
	}
}

func TestRegister_Success(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Register(context.Background(), Request{
		WalletAddress: testWallet,
		Proof:         proofFor(testWallet, nullifier(0xaa)),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Label != "user123456abcdef" {
		t.Errorf("expected base label, got %q", res.Label)
	}
	if res.FullName != "user123456abcdef.colancer.eth" {
		t.Errorf("unexpected full name %q", res.FullName)
	}

	claims, err := f.tokens.Validate(res.AccessToken)
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if claims.Wallet() != testWallet || claims.Subdomain != res.FullName {
		t.Errorf("unexpected claims %+v", claims)
	}
	if _, err := f.tokens.ValidateRefresh(res.RefreshToken); err != nil {
		t.Errorf("issued refresh token invalid: %v", err)
	}
	if f.sessions.liveCount() != 1 {
		t.Errorf("expected one live session, got %d", f.sessions.liveCount())
	}
}

func TestRegister_SessionFailureLeavesNothingReserved(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.sessions.openErr = errors.New("session store down")
	req := Request{WalletAddress: testWallet, Proof: proofFor(testWallet, nullifier(0x5e55))}

	if _, err := f.svc.Register(ctx, req); err == nil {
		t.Fatal("expected error when the session cannot be opened")
	}
	if f.registry.isTaken("user123456abcdef") {
		t.Fatal("label must not be reserved without a session")
	}

	// The same proof goes through once sessions are back
	f.sessions.openErr = nil
	res, err := f.svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if res.Label != "user123456abcdef" || res.AccessToken == "" {
		t.Errorf("unexpected retry result %+v", res)
	}
}

func TestRegister_ReserveFailureRevokesSession(t *testing.T) {
	tests := []struct {
		name        string
		reserveErr  error
		want        error
		releaseable bool
	}{
		{"lost race", registry.ErrNameTaken, registry.ErrNameTaken, true},
		{"nullifier in database", registry.ErrNullifierUsed, identity.ErrProofAlreadyUsed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.registry.reserveErr = tt.reserveErr
			req := Request{WalletAddress: testWallet, Proof: proofFor(testWallet, nullifier(9))}

			if _, err := f.svc.Register(context.Background(), req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(f.sessions.revoked) != 1 || f.sessions.liveCount() != 0 {
				t.Errorf("expected the session to be revoked, revoked=%d live=%d", len(f.sessions.revoked), f.sessions.liveCount())
			}
			ok, _ := f.nullifiers.Claim(context.Background(), req.Proof.NullifierHash)
			if ok != tt.releaseable {
				t.Errorf("expected nullifier claimable=%v, got %v", tt.releaseable, ok)
			}
		})
	}
}

func TestRegister_SecondWalletGetsSuffix(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, Request{WalletAddress: testWallet, Proof: proofFor(testWallet, nullifier(1))}); err != nil {
		t.Fatalf("first register: %v", err)
	}

	// Same [2:8] prefix, different wallet
	other := "0x123456789a0000000000000000000000000000ff"
	res, err := f.svc.Register(ctx, Request{WalletAddress: other, Proof: proofFor(other, nullifier(2))})
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if res.Label != "user123456abcdef1" {
		t.Errorf("expected suffixed label, got %q", res.Label)
	}
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture) Request
		want  error
	}{
		{
			name: "bad wallet",
			setup: func(f *fixture) Request {
				return Request{WalletAddress: "0x12", Proof: proofFor("0x12", nullifier(1))}
			},
			want: ErrInvalidRequest,
		},
		{
			name: "signal for another wallet",
			setup: func(f *fixture) Request {
				return Request{WalletAddress: testWallet, Proof: proofFor("0x0000000000000000000000000000000000000001", nullifier(1))}
			},
			want: identity.ErrSignalMismatch,
		},
		{
			name: "proof rejected",
			setup: func(f *fixture) Request {
				f.verifier.err = identity.ErrProofRejected
				return Request{WalletAddress: testWallet, Proof: proofFor(testWallet, nullifier(1))}
			},
			want: identity.ErrProofRejected,
		},
		{
			name: "oracle down",
			setup: func(f *fixture) Request {
				f.registry.oracleErr = errors.New("db down")
				return Request{WalletAddress: testWallet, Proof: proofFor(testWallet, nullifier(1))}
			},
			want: naming.ErrOracleUnavailable,
		},
		{
			name: "exhausted",
			setup: func(f *fixture) Request {
				base := "user123456abcdef"
				for i := 0; i < naming.DefaultMaxAttempts; i++ {
					f.registry.taken[naming.Candidate(base, i)] = true
				}
				return Request{WalletAddress: testWallet, Proof: proofFor(testWallet, nullifier(1))}
			},
			want: naming.ErrExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := tt.setup(f)
			if _, err := f.svc.Register(context.Background(), req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}

			// Any failure leaves the nullifier claimable again
			ok, _ := f.nullifiers.Claim(context.Background(), req.Proof.NullifierHash)
			if !ok {
				t.Error("nullifier should have been released")
			}
		})
	}
}

func TestRegister_ProofReuse(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := Request{WalletAddress: testWallet, Proof: proofFor(testWallet, nullifier(0xbeef))}

	if _, err := f.svc.Register(ctx, req); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := f.svc.Register(ctx, req); !errors.Is(err, identity.ErrProofAlreadyUsed) {
		t.Errorf("expected ErrProofAlreadyUsed, got %v", err)
	}
}

func TestRegister_NullifierBoundInDatabase(t *testing.T) {
	f := newFixture()
	f.registry.nullifiers[nullifier(0xcafe)] = true

	req := Request{WalletAddress: testWallet, Proof: proofFor(testWallet, nullifier(0xcafe))}
	if _, err := f.svc.Register(context.Background(), req); !errors.Is(err, identity.ErrProofAlreadyUsed) {
		t.Fatalf("expected ErrProofAlreadyUsed, got %v", err)
	}
	if ok, _ := f.nullifiers.Claim(context.Background(), nullifier(0xcafe)); ok {
		t.Error("nullifier bound in the database must stay claimed")
	}
}

// *For any* wallet and root, Preview agrees with what Register then reserves.
func TestProperty_PreviewMatchesRegister(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture()
		ctx := context.Background()

		wallet := "0x" + rapid.StringMatching(`[0-9a-f]{40}`).Draw(t, "wallet")
		pre := rapid.IntRange(0, 3).Draw(t, "preTaken")

		base, err := naming.DeriveBaseCandidate(wallet, testMerkleRoot)
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		for i := 0; i < pre; i++ {
			f.registry.taken[naming.Candidate(base, i)] = true
		}

		p, err := f.svc.Preview(ctx, wallet, testMerkleRoot, 0)
		if err != nil {
			t.Fatalf("preview: %v", err)
		}
		if f.registry.taken[p.Label] {
			t.Fatalf("preview returned taken label %q", p.Label)
		}

		res, err := f.svc.Register(ctx, Request{WalletAddress: wallet, Proof: proofFor(wallet, nullifier(1))})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if res.Label != p.Label || res.Node != p.Node {
			t.Fatalf("preview %q != registered %q", p.Label, res.Label)
		}
	})
}

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	passthrough := func(next http.Handler) http.Handler { return next }
	RegisterRoutes(r, NewHandler(f.svc, nil), passthrough, passthrough)
	return r
}

func post(h http.Handler, path string, body interface{}) (*httptest.ResponseRecorder, api.APIResponse) {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp api.APIResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestHandler_Register(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)
	req := Request{WalletAddress: testWallet, Proof: proofFor(testWallet, nullifier(0x77))}

	rec, resp := post(router, "/registrations", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp.Data.(map[string]interface{})["label"] != "user123456abcdef" {
		t.Errorf("unexpected data %v", resp.Data)
	}

	rec, resp = post(router, "/registrations", req)
	if rec.Code != http.StatusConflict || resp.Error.Code != CodeProofAlreadyUsed {
		t.Errorf("expected 409 %s, got %d", CodeProofAlreadyUsed, rec.Code)
	}
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		status int
		code   string
	}{
		{"rejected", func(f *fixture) { f.verifier.err = identity.ErrProofRejected }, http.StatusForbidden, CodeProofRejected},
		{"verifier down", func(f *fixture) { f.verifier.err = identity.ErrVerifierUnavailable }, http.StatusServiceUnavailable, CodeServiceUnavailable},
		{"oracle down", func(f *fixture) { f.registry.oracleErr = errors.New("down") }, http.StatusServiceUnavailable, CodeServiceUnavailable},
		{"lost race", func(f *fixture) { f.registry.reserveErr = registry.ErrNameTaken }, http.StatusConflict, CodeNameTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)
			rec, resp := post(newTestRouter(f), "/registrations", Request{WalletAddress: testWallet, Proof: proofFor(testWallet, nullifier(1))})
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("expected code %s, got %+v", tt.code, resp.Error)
			}
		})
	}
}

func TestHandler_Validation(t *testing.T) {
	router := newTestRouter(newFixture())

	rec, resp := post(router, "/registrations", map[string]interface{}{"wallet_address": "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp.Error.Details["wallet_address"] == nil {
		t.Errorf("expected wallet_address details, got %v", resp.Error.Details)
	}
	if resp.Error.Details["proof"] == nil && resp.Error.Details["proof.merkle_root"] == nil {
		t.Errorf("expected field details, got %v", resp.Error.Details)
	}
}

func TestHandler_Preview(t *testing.T) {
	router := newTestRouter(newFixture())

	rec, resp := post(router, "/subdomains/preview", PreviewRequest{WalletAddress: testWallet, MerkleRoot: testMerkleRoot})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := resp.Data.(map[string]interface{})
	if data["label"] != "user123456abcdef" || data["full_name"] != "user123456abcdef.colancer.eth" {
		t.Errorf("unexpected preview %v", data)
	}

	for _, root := range []string{"nothex", "0xabcdef", testMerkleRoot + "00"} {
		rec, _ = post(router, "/subdomains/preview", PreviewRequest{WalletAddress: testWallet, MerkleRoot: root})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for merkle root %q, got %d", root, rec.Code)
		}
	}
}

func TestRoutes_PreviewIsRateLimited(t *testing.T) {
	f := newFixture()
	r := chi.NewRouter()
	limited := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	passthrough := func(next http.Handler) http.Handler { return next }
	RegisterRoutes(r, NewHandler(f.svc, nil), passthrough, limited)

	rec, _ := post(r, "/subdomains/preview", PreviewRequest{WalletAddress: testWallet, MerkleRoot: testMerkleRoot})
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected preview to go through its limiter, got %d", rec.Code)
	}
}

func TestHandler_ErrorLogCarriesCorrelationID(t *testing.T) {
	f := newFixture()
	f.sessions.openErr = errors.New("session store down")

	var logs bytes.Buffer
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	passthrough := func(next http.Handler) http.Handler { return next }
	RegisterRoutes(r, NewHandler(f.svc, slog.New(slog.NewJSONHandler(&logs, nil))), passthrough, passthrough)

	raw, _ := json.Marshal(Request{WalletAddress: testWallet, Proof: proofFor(testWallet, nullifier(42))})
	req := httptest.NewRequest(http.MethodPost, "/registrations", bytes.NewReader(raw))
	req.Header.Set(middleware.RequestIDHeader, "edge-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(logs.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", logs.String(), err)
	}
	if entry["correlation_id"] != "edge-42" {
		t.Errorf("expected correlation_id edge-42, got %v", entry["correlation_id"])
	}
}
