package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lanerush/pf-engine-go/internal/engine"
	"github.com/lanerush/pf-engine-go/internal/ledger"
	"github.com/lanerush/pf-engine-go/internal/session"
	"github.com/lanerush/pf-engine-go/internal/store"
)

type sessionBody struct {
	ID         string          `json:"id"`
	Commitment string          `json:"commitment"`
	CrashLane  int             `json:"crash_lane"`
	Mode       string          `json:"mode"`
	Wager      decimal.Decimal `json:"wager"`
	Table      []struct {
		Multiplier  float64 `json:"multiplier"`
		CrashWeight float64 `json:"crash_weight"`
	} `json:"table"`
}

type resolveBody struct {
	ServerSecret string          `json:"server_secret"`
	Commitment   string          `json:"commitment"`
	RoundCounter uint64          `json:"round_counter"`
	CrashLane    int             `json:"crash_lane"`
	Payout       decimal.Decimal `json:"payout"`
	NewBalance   decimal.Decimal `json:"new_balance"`
}

func newTestServer(t *testing.T) (*httptest.Server, *ledger.SQLiteLedger) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	l := ledger.NewSQLiteLedger(db.Handle())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := session.NewManager(db, l, log)
	srv := httptest.NewServer(NewServer(mgr, log, 60*time.Second).Routes())
	t.Cleanup(srv.Close)
	return srv, l
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, key string, out any) {
	t.Helper()
	defer resp.Body.Close()
	var envelope map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope[key], out); err != nil {
		t.Fatalf("decode %q: %v", key, err)
	}
}

func decodeError(t *testing.T, resp *http.Response) EngineError {
	t.Helper()
	defer resp.Body.Close()
	var engineErr EngineError
	if err := json.NewDecoder(resp.Body).Decode(&engineErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return engineErr
}

func createSession(t *testing.T, srv *httptest.Server, owner, tier, wager string) sessionBody {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/v1/sessions", map[string]any{
		"owner":       owner,
		"client_seed": "seed-" + owner,
		"tier":        tier,
		"wager":       wager,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var sb sessionBody
	decodeInto(t, resp, "session", &sb)
	return sb
}

// createWinnable loops until the crash lane leaves room for a lane-1
// cash-out. Each attempt supersedes the last unactivated one.
func createWinnable(t *testing.T, srv *httptest.Server, owner, tier, wager string) sessionBody {
	t.Helper()
	for i := 0; i < 200; i++ {
		sb := createSession(t, srv, owner, tier, wager)
		if sb.CrashLane >= 2 {
			return sb
		}
	}
	t.Fatal("no crash lane >= 2 in 200 rounds")
	return sessionBody{}
}

func TestFullSessionLifecycle(t *testing.T) {
	srv, l := newTestServer(t)
	ctx := context.Background()
	if _, err := l.AdjustBalance(ctx, "player-1", decimal.RequireFromString("100")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.AdjustReserve(ctx, decimal.RequireFromString("1000")); err != nil {
		t.Fatal(err)
	}

	sb := createWinnable(t, srv, "player-1", "easy", "5")
	if sb.Commitment == "" || sb.Mode != "stake" {
		t.Fatalf("unexpected session body: %+v", sb)
	}

	resp := postJSON(t, srv.URL+"/api/v1/sessions/"+sb.ID+"/activate",
		map[string]any{"owner": "player-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d", resp.StatusCode)
	}
	var act struct {
		NewBalance decimal.Decimal `json:"new_balance"`
	}
	decodeInto(t, resp, "result", &act)
	if !act.NewBalance.Equal(decimal.RequireFromString("95")) {
		t.Errorf("balance after activate = %s, want 95", act.NewBalance)
	}

	resp = postJSON(t, srv.URL+"/api/v1/sessions/"+sb.ID+"/resolve",
		map[string]any{"owner": "player-1", "reached_lane": 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d", resp.StatusCode)
	}
	var rb resolveBody
	decodeInto(t, resp, "result", &rb)

	if rb.ServerSecret == "" {
		t.Fatal("secret not revealed")
	}
	if engine.Commitment(rb.ServerSecret) != sb.Commitment {
		t.Error("revealed secret does not match commitment")
	}
	if rb.RoundCounter != 1 {
		t.Errorf("round counter = %d, want 1", rb.RoundCounter)
	}
	// Easy lane 1 pays 1.00x: the wager comes straight back.
	if !rb.Payout.Equal(decimal.RequireFromString("5")) {
		t.Errorf("payout = %s, want 5", rb.Payout)
	}
	if !rb.NewBalance.Equal(decimal.RequireFromString("100")) {
		t.Errorf("balance = %s, want 100", rb.NewBalance)
	}

	reserve, _ := l.GetReserve(ctx)
	if !reserve.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("reserve = %s, want 1000", reserve)
	}
}

func TestActiveSessionEndpoint(t *testing.T) {
	srv, l := newTestServer(t)
	ctx := context.Background()
	if _, err := l.AdjustReserve(ctx, decimal.RequireFromString("1000")); err != nil {
		t.Fatal(err)
	}

	sb := createSession(t, srv, "player-1", "medium", "0")

	resp, err := http.Get(srv.URL + "/api/v1/sessions/active?owner=player-1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var view struct {
		ID           string `json:"id"`
		ServerSecret string `json:"server_secret"`
	}
	decodeInto(t, resp, "session", &view)
	if view.ID != sb.ID {
		t.Errorf("active id = %s, want %s", view.ID, sb.ID)
	}
	if view.ServerSecret != "" {
		t.Error("active view leaked the server secret")
	}

	resp, err = http.Get(srv.URL + "/api/v1/sessions/active?owner=nobody")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("no-session status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestErrorTaxonomy(t *testing.T) {
	srv, l := newTestServer(t)
	ctx := context.Background()
	if _, err := l.AdjustBalance(ctx, "poor", decimal.RequireFromString("1")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.AdjustReserve(ctx, decimal.RequireFromString("1000")); err != nil {
		t.Fatal(err)
	}

	t.Run("validation", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/v1/sessions", map[string]any{
			"owner": "p", "client_seed": "s", "tier": "extreme", "wager": "1",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
		if e := decodeError(t, resp); e.Type != ErrTypeValidation {
			t.Errorf("type = %s", e.Type)
		}
	})

	t.Run("missing field", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/v1/sessions", map[string]any{
			"owner": "p", "tier": "easy",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
		resp.Body.Close()
	})

	t.Run("insufficient funds", func(t *testing.T) {
		sb := createSession(t, srv, "poor", "easy", "50")
		resp := postJSON(t, srv.URL+"/api/v1/sessions/"+sb.ID+"/activate",
			map[string]any{"owner": "poor"})
		if resp.StatusCode != http.StatusPaymentRequired {
			t.Fatalf("status = %d, want 402", resp.StatusCode)
		}
		if e := decodeError(t, resp); e.Type != ErrTypeInsufficientFunds {
			t.Errorf("type = %s", e.Type)
		}
	})

	t.Run("session not found", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/v1/sessions/no-such-id/resolve",
			map[string]any{"owner": "p"})
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
		if e := decodeError(t, resp); e.Type != ErrTypeSessionNotFound {
			t.Errorf("type = %s", e.Type)
		}
	})

	t.Run("already resolved", func(t *testing.T) {
		sb := createSession(t, srv, "practice-p", "easy", "0")
		resp := postJSON(t, srv.URL+"/api/v1/sessions/"+sb.ID+"/resolve",
			map[string]any{"owner": "practice-p"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("first resolve status = %d", resp.StatusCode)
		}
		resp.Body.Close()

		resp = postJSON(t, srv.URL+"/api/v1/sessions/"+sb.ID+"/resolve",
			map[string]any{"owner": "practice-p"})
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("second resolve status = %d, want 409", resp.StatusCode)
		}
		if e := decodeError(t, resp); e.Type != ErrTypeAlreadyResolved {
			t.Errorf("type = %s", e.Type)
		}
	})
}

func TestTablesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/tables")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Tables map[string]map[string][]struct {
			Multiplier  float64 `json:"multiplier"`
			CrashWeight float64 `json:"crash_weight"`
		} `json:"tables"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	for _, tier := range []string{"easy", "medium", "hard", "daredevil"} {
		modes, ok := body.Tables[tier]
		if !ok {
			t.Fatalf("tier %s missing", tier)
		}
		for _, mode := range []string{"practice", "stake"} {
			if len(modes[mode]) == 0 {
				t.Errorf("tier %s mode %s has no lanes", tier, mode)
			}
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var hb HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&hb); err != nil {
		t.Fatal(err)
	}
	if hb.Status != "healthy" {
		t.Errorf("status = %q", hb.Status)
	}
}
