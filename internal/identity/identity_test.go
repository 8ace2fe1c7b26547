package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"pgregory.net/rapid"
)

const testWallet = "0x1234567890AbCdEf123456789012345678901234"

func validProof() Proof {
	return Proof{
		MerkleRoot:     "0xabcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890",
		NullifierHash:  "0x2bf8406809dcefb1486dadc96c0a897db9bab002053054cf64272db512c6fbd8",
		Proof:          "0x1aa8b8f3b2d2de5ff452c0e1a83e29d6bf46fb83ef35dc5957121ff3d3698a11",
		CredentialType: "orb",
		Action:         "register",
		Signal:         Signal(testWallet),
	}
}

func TestValidateProof(t *testing.T) {
	if err := ValidateProof(validProof()); err != nil {
		t.Fatalf("expected valid proof, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(p *Proof)
	}{
		{"missing merkle root", func(p *Proof) { p.MerkleRoot = "" }},
		{"missing nullifier", func(p *Proof) { p.NullifierHash = "" }},
		{"missing proof", func(p *Proof) { p.Proof = "" }},
		{"missing credential type", func(p *Proof) { p.CredentialType = "" }},
		{"missing action", func(p *Proof) { p.Action = "" }},
		{"missing signal", func(p *Proof) { p.Signal = "" }},
		{"merkle root not hex", func(p *Proof) { p.MerkleRoot = "abcdef" }},
		{"nullifier not hex", func(p *Proof) { p.NullifierHash = "0xzz" }},
		{"merkle root too short", func(p *Proof) { p.MerkleRoot = "0xabcdef" }},
		{"nullifier too long", func(p *Proof) { p.NullifierHash += "00" }},
		{"nullifier oversized", func(p *Proof) { p.NullifierHash = "0x" + strings.Repeat("f", 1024) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProof()
			tt.mutate(&p)
			if err := ValidateProof(p); !errors.Is(err, ErrInvalidProof) {
				t.Errorf("expected ErrInvalidProof, got %v", err)
			}
		})
	}
}

// signal hash of Signal(testWallet)
const testSignalHash = "0x000ba9b7d3107034a6fa352a61e3a030a77754e8051ef483c4fdba7fa1ef8e24"

func TestSignalHash(t *testing.T) {
	tests := []struct {
		signal string
		want   string
	}{
		// keccak256("") >> 8, the hash the API assumes when none is sent
		{"", "0x00c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a4"},
		{Signal(testWallet), testSignalHash},
	}
	for _, tt := range tests {
		if got := SignalHash(tt.signal); got != tt.want {
			t.Errorf("SignalHash(%q) = %s, want %s", tt.signal, got, tt.want)
		}
	}
}

func TestSignal(t *testing.T) {
	if got := Signal(testWallet); got != "register_0x1234567890abcdef123456789012345678901234" {
		t.Errorf("unexpected signal %q", got)
	}

	p := validProof()
	if err := CheckSignal(p, testWallet); err != nil {
		t.Errorf("expected signal to match, got %v", err)
	}
	if err := CheckSignal(p, "0x0000000000000000000000000000000000000000"); !errors.Is(err, ErrSignalMismatch) {
		t.Errorf("expected ErrSignalMismatch, got %v", err)
	}
}

func TestHTTPVerifier_Success(t *testing.T) {
	var got verifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/verify/app_test" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	v := NewHTTPVerifier(HTTPVerifierConfig{BaseURL: srv.URL + "/", AppID: "app_test"})
	if err := v.Verify(context.Background(), validProof()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.NullifierHash != validProof().NullifierHash || got.VerificationLevel != "orb" {
		t.Errorf("unexpected request body: %+v", got)
	}
	if got.SignalHash != testSignalHash {
		t.Errorf("expected signal_hash %s, got %s", testSignalHash, got.SignalHash)
	}
}

func TestHTTPVerifier_SendsOnlySignalHash(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := NewHTTPVerifier(HTTPVerifierConfig{BaseURL: srv.URL, AppID: "app_test"})
	if err := v.Verify(context.Background(), validProof()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := raw["signal"]; ok {
		t.Error("raw signal must not be sent")
	}
	if raw["signal_hash"] != testSignalHash {
		t.Errorf("unexpected signal_hash %v", raw["signal_hash"])
	}
}

func TestHTTPVerifier_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"invalid_proof","detail":"The provided proof is invalid."}`))
	}))
	defer srv.Close()

	v := NewHTTPVerifier(HTTPVerifierConfig{BaseURL: srv.URL, AppID: "app_test"})
	err := v.Verify(context.Background(), validProof())
	if !errors.Is(err, ErrProofRejected) {
		t.Fatalf("expected ErrProofRejected, got %v", err)
	}
}

func TestHTTPVerifier_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewHTTPVerifier(HTTPVerifierConfig{BaseURL: srv.URL, AppID: "app_test"})
	if err := v.Verify(context.Background(), validProof()); !errors.Is(err, ErrVerifierUnavailable) {
		t.Fatalf("expected ErrVerifierUnavailable, got %v", err)
	}

	srv.Close()
	if err := v.Verify(context.Background(), validProof()); !errors.Is(err, ErrVerifierUnavailable) {
		t.Fatalf("expected ErrVerifierUnavailable for closed server, got %v", err)
	}
}

func TestMemoryNullifierStore(t *testing.T) {
	store := NewMemoryNullifierStore()
	ctx := context.Background()

	ok, err := store.Claim(ctx, "0xABC")
	if err != nil || !ok {
		t.Fatalf("first claim should succeed, got %v %v", ok, err)
	}
	ok, _ = store.Claim(ctx, "0xabc")
	if ok {
		t.Fatal("second claim must fail (case-insensitive)")
	}

	if err := store.Release(ctx, "0xabc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, _ = store.Claim(ctx, "0xabc")
	if !ok {
		t.Fatal("claim after release should succeed")
	}
}

// *For any* nullifier claimed concurrently, exactly one claimant wins.
func TestProperty_NullifierSingleWinner(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nullifier := "0x" + rapid.StringMatching(`[0-9a-f]{64}`).Draw(t, "nullifier")
		claimants := rapid.IntRange(2, 16).Draw(t, "claimants")

		store := NewMemoryNullifierStore()
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < claimants; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := store.Claim(context.Background(), nullifier); ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins)
		}
	})
}
