package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/liftgate-io/liftgate/internal/infrastructure/config"
	"github.com/liftgate-io/liftgate/internal/infrastructure/logging"
)

const (
	testEmail    = "owner@example.com"
	testPassword = "hunter2"
)

// identityCounters tracks how many times each stage of the login flow was
// hit, so tests can assert the throttle suppresses network traffic.
type identityCounters struct {
	authorize  atomic.Int32
	loginPost  atomic.Int32
	tokenGrant atomic.Int32
	refresh    atomic.Int32
}

// newIdentityServer stands up a fake of the vendor identity service
// implementing the full authorization-code flow.
func newIdentityServer(t *testing.T) (*httptest.Server, *identityCounters) {
	t.Helper()
	counters := &identityCounters{}

	mux := http.NewServeMux()
	mux.HandleFunc("/connect/authorize", func(w http.ResponseWriter, r *http.Request) {
		counters.authorize.Add(1)
		q := r.URL.Query()
		if q.Get("client_id") != authClientID {
			http.Error(w, "wrong client_id", http.StatusBadRequest)
			return
		}
		if q.Get("code_challenge") == "" || q.Get("code_challenge_method") != "S256" {
			http.Error(w, "missing PKCE challenge", http.StatusBadRequest)
			return
		}
		w.Header().Add("Set-Cookie", "ip-session=alpha; Path=/; HttpOnly; SameSite=None")
		w.Header().Set("Location", "/Account/Login?ReturnUrl=%2Fconnect%2Fauthorize")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/Account/Login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if !strings.Contains(r.Header.Get("Cookie"), "ip-session=alpha") {
				http.Error(w, "session cookie missing", http.StatusBadRequest)
				return
			}
			w.Header().Add("Set-Cookie", "xsrf=bravo; Path=/")
			fmt.Fprint(w, `<html><form>`+
				`<input name="__RequestVerificationToken" type="hidden" value="tok123" />`+
				`</form></html>`)
			return
		}

		counters.loginPost.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("__RequestVerificationToken") != "tok123" {
			http.Error(w, "anti-forgery token missing", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("Email") != testEmail || r.PostForm.Get("Password") != testPassword {
			// Re-rendered form without second-stage cookies signals bad
			// credentials.
			fmt.Fprint(w, `<html>login failed</html>`)
			return
		}
		w.Header().Add("Set-Cookie", "idsrv=charlie; Path=/")
		w.Header().Add("Set-Cookie", "idsrv.session=delta; Path=/")
		w.Header().Set("Location", "/connect/authorize/callback")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/connect/authorize/callback", func(w http.ResponseWriter, r *http.Request) {
		cookie := r.Header.Get("Cookie")
		if !strings.Contains(cookie, "idsrv=charlie") || !strings.Contains(cookie, "idsrv.session=delta") {
			http.Error(w, "login cookies not carried forward", http.StatusBadRequest)
			return
		}
		w.Header().Set("Location", "com.myqops://ios?code=authcode42&scope=MyQ_Residential%20offline_access")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			counters.tokenGrant.Add(1)
			if r.PostForm.Get("code") != "authcode42" || r.PostForm.Get("code_verifier") == "" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
			fmt.Fprint(w, `{"access_token":"access-1","refresh_token":"refresh-1",`+
				`"token_type":"Bearer","scope":"MyQ_Residential offline_access","expires_in":3600}`)
		case "refresh_token":
			counters.refresh.Add(1)
			if r.PostForm.Get("refresh_token") != "refresh-1" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
			fmt.Fprint(w, `{"access_token":"access-2","refresh_token":"refresh-2",`+
				`"token_type":"Bearer","scope":"MyQ_Residential offline_access","expires_in":3600}`)
		default:
			http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, counters
}

func testSession(t *testing.T, serverURL, email, password string) *Session {
	t.Helper()
	s := NewSession(config.CloudConfig{
		Email:          email,
		Password:       password,
		TokenFreshness: 3300,
	}, logging.Default())
	s.SetEndpoints(Endpoints{
		Identity:     serverURL,
		Accounts:     serverURL,
		Devices:      serverURL,
		DoorCommands: serverURL,
		LampCommands: serverURL,
	})
	return s
}

func TestSessionLogin(t *testing.T) {
	server, counters := newIdentityServer(t)
	s := testSession(t, server.URL, testEmail, testPassword)

	got, err := s.Bearer(context.Background())
	if err != nil {
		t.Fatalf("Bearer() error = %v", err)
	}
	if got != "access-1" {
		t.Errorf("Bearer() = %q, want %q", got, "access-1")
	}
	if s.Epoch() != 1 {
		t.Errorf("Epoch() = %d, want 1 after first login", s.Epoch())
	}

	// A fresh token is served from memory.
	got2, err := s.Bearer(context.Background())
	if err != nil {
		t.Fatalf("second Bearer() error = %v", err)
	}
	if got2 != "access-1" {
		t.Errorf("second Bearer() = %q, want cached token", got2)
	}
	if n := counters.tokenGrant.Load(); n != 1 {
		t.Errorf("token grants = %d, want 1", n)
	}
}

func TestSessionLoginBadCredentials(t *testing.T) {
	server, counters := newIdentityServer(t)
	s := testSession(t, server.URL, testEmail, "wrong-password")

	_, err := s.Bearer(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("Bearer() error = %v, want ErrAuth", err)
	}

	// The failure is cached for the throttle window; no second attempt
	// reaches the identity service.
	_, err = s.Bearer(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("throttled Bearer() error = %v, want ErrAuth", err)
	}
	if n := counters.loginPost.Load(); n != 1 {
		t.Errorf("login posts = %d, want 1 within throttle window", n)
	}
}

func TestSessionRefreshGrant(t *testing.T) {
	server, counters := newIdentityServer(t)
	s := testSession(t, server.URL, testEmail, testPassword)

	if _, err := s.Bearer(context.Background()); err != nil {
		t.Fatalf("Bearer() error = %v", err)
	}

	// Age the token past the freshness window; the next call should use
	// the refresh grant, not a full login.
	s.mu.Lock()
	s.token.IssuedAt = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	got, err := s.Bearer(context.Background())
	if err != nil {
		t.Fatalf("Bearer() after expiry error = %v", err)
	}
	if got != "access-2" {
		t.Errorf("Bearer() = %q, want refreshed token", got)
	}
	if n := counters.refresh.Load(); n != 1 {
		t.Errorf("refresh grants = %d, want 1", n)
	}
	if n := counters.loginPost.Load(); n != 1 {
		t.Errorf("login posts = %d, want no second full login", n)
	}
	if s.Epoch() != 1 {
		t.Errorf("Epoch() = %d, want unchanged after refresh", s.Epoch())
	}
}

func TestSessionThrottleServesStaleToken(t *testing.T) {
	server, counters := newIdentityServer(t)
	s := testSession(t, server.URL, testEmail, testPassword)

	if _, err := s.Bearer(context.Background()); err != nil {
		t.Fatalf("Bearer() error = %v", err)
	}

	// Stale token, no refresh token, still inside the throttle window: the
	// cached token is returned rather than a new login attempted.
	s.mu.Lock()
	s.token.IssuedAt = time.Now().Add(-2 * time.Hour)
	s.token.RefreshToken = ""
	s.mu.Unlock()

	got, err := s.Bearer(context.Background())
	if err != nil {
		t.Fatalf("throttled Bearer() error = %v", err)
	}
	if got != "access-1" {
		t.Errorf("Bearer() = %q, want stale cached token", got)
	}
	if n := counters.loginPost.Load(); n != 1 {
		t.Errorf("login posts = %d, want throttle to suppress re-login", n)
	}
}

func TestSessionResetForcesRelogin(t *testing.T) {
	server, counters := newIdentityServer(t)
	s := testSession(t, server.URL, testEmail, testPassword)

	if _, err := s.Bearer(context.Background()); err != nil {
		t.Fatalf("Bearer() error = %v", err)
	}
	s.Reset()

	// Inside the throttle window with no token at all: callers get an auth
	// error, not a hammering re-login.
	if _, err := s.Bearer(context.Background()); !errors.Is(err, ErrAuth) {
		t.Fatalf("Bearer() after Reset = %v, want ErrAuth within throttle", err)
	}

	// Once the window passes, the full login runs again and bumps the epoch.
	s.mu.Lock()
	s.lastAttempt = time.Now().Add(-3 * time.Minute)
	s.mu.Unlock()

	got, err := s.Bearer(context.Background())
	if err != nil {
		t.Fatalf("Bearer() after throttle window = %v", err)
	}
	if got != "access-1" {
		t.Errorf("Bearer() = %q, want fresh login token", got)
	}
	if s.Epoch() != 2 {
		t.Errorf("Epoch() = %d, want 2 after forced re-login", s.Epoch())
	}
	if n := counters.loginPost.Load(); n != 2 {
		t.Errorf("login posts = %d, want 2", n)
	}
}

func TestSessionLoginMissingAntiForgeryToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/authorize", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><form>no hidden token here</form></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	s := testSession(t, server.URL, testEmail, testPassword)
	_, err := s.Bearer(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("Bearer() error = %v, want ErrAuth for missing anti-forgery token", err)
	}
}

func TestMergeCookiesStripsAttributes(t *testing.T) {
	jar := map[string]string{}
	mergeCookies(jar, []string{
		"session=abc; Path=/; HttpOnly; Secure; SameSite=None",
		"xsrf=def; Expires=Wed, 21 Oct 2026 07:28:00 GMT",
		"malformed-no-equals",
	})

	if jar["session"] != "abc" || jar["xsrf"] != "def" {
		t.Errorf("jar = %v, want attribute-stripped name=value pairs", jar)
	}
	if len(jar) != 2 {
		t.Errorf("jar has %d entries, want malformed cookie dropped", len(jar))
	}

	header := cookieHeader(jar)
	if header != "session=abc; xsrf=def" {
		t.Errorf("cookieHeader() = %q, want sorted pairs", header)
	}
}

func TestTokenFresh(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		tok  Token
		want bool
	}{
		{
			name: "signed expiry well ahead",
			tok:  Token{IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(time.Hour)},
			want: true,
		},
		{
			name: "signed expiry inside the renewal margin",
			tok:  Token{IssuedAt: now, ExpiresAt: now.Add(renewalMargin / 2)},
			want: false,
		},
		{
			name: "no decodable expiry, young token",
			tok:  Token{IssuedAt: now.Add(-time.Minute)},
			want: true,
		},
		{
			name: "no decodable expiry, aged past the window",
			tok:  Token{IssuedAt: now.Add(-2 * time.Hour)},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.Fresh(55 * time.Minute); got != tt.want {
				t.Errorf("Fresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnnotateClaimsRecordsExpiry(t *testing.T) {
	s := testSession(t, "http://unused.invalid", testEmail, testPassword)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-7",
		"exp": exp.Unix(),
	}).SignedString([]byte("vendor-held-key"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}

	tok := &Token{AccessToken: signed}
	s.annotateClaims(tok)
	if !tok.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", tok.ExpiresAt, exp)
	}

	opaque := &Token{AccessToken: "access-1"}
	s.annotateClaims(opaque)
	if !opaque.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v for opaque token, want zero", opaque.ExpiresAt)
	}
}

func TestBearerHonoursSignedExpiry(t *testing.T) {
	// No identity server: any renewal attempt would fail, so a returned
	// token proves the signed expiry kept it fresh past the age window.
	s := NewSession(config.CloudConfig{TokenFreshness: 60}, logging.Default())
	s.mu.Lock()
	s.token = &Token{
		AccessToken:  "signed-access",
		RefreshToken: "refresh-1",
		IssuedAt:     time.Now().Add(-2 * time.Hour),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	s.mu.Unlock()

	got, err := s.Bearer(context.Background())
	if err != nil {
		t.Fatalf("Bearer() error = %v", err)
	}
	if got != "signed-access" {
		t.Errorf("Bearer() = %q, want held token while the expiry is ahead", got)
	}
}
