package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func fakeTokenServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"access-%d","token_type":"Bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL string) *oauth2.Config {
	cfg := NewOAuthConfig(OAuthSettings{ClientID: "id", ClientSecret: "secret"})
	cfg.Endpoint = oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams}
	return cfg
}

func TestSaveLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	want := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}
	if err := SaveToken(path, want); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}
	got, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if got.AccessToken != "a" || got.RefreshToken != "r" {
		t.Errorf("LoadToken = %+v", got)
	}
}

func TestLoadToken_Missing(t *testing.T) {
	_, err := LoadToken(filepath.Join(t.TempDir(), "none.json"))
	if !errors.Is(err, ErrNoToken) {
		t.Errorf("err = %v, want ErrNoToken", err)
	}
}

func TestAuthURLRequestsOfflineAccess(t *testing.T) {
	u := AuthURL(NewOAuthConfig(OAuthSettings{ClientID: "id"}), "state-1")
	for _, want := range []string{"access_type=offline", "prompt=consent", "state=state-1", "gmail.send", "spreadsheets.readonly"} {
		if !strings.Contains(u, want) {
			t.Errorf("AuthURL missing %q: %s", want, u)
		}
	}
}

func TestCredentials_RefreshesExpiredAndPersists(t *testing.T) {
	var hits atomic.Int32
	srv := fakeTokenServer(t, &hits)
	path := filepath.Join(t.TempDir(), "token.json")
	expired := &oauth2.Token{AccessToken: "old", RefreshToken: "refresh", Expiry: time.Now().Add(-time.Hour)}
	if err := SaveToken(path, expired); err != nil {
		t.Fatal(err)
	}

	creds, err := NewCredentials(context.Background(), testConfig(srv.URL), path)
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	tok, err := creds.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "access-1" {
		t.Errorf("AccessToken = %q, want access-1", tok.AccessToken)
	}

	stored, err := LoadToken(path)
	if err != nil {
		t.Fatal(err)
	}
	if stored.AccessToken != "access-1" || stored.RefreshToken != "refresh" {
		t.Errorf("stored token = %+v, want refreshed access and original refresh token", stored)
	}
}

func TestCredentials_ForceRefresh(t *testing.T) {
	var hits atomic.Int32
	srv := fakeTokenServer(t, &hits)
	path := filepath.Join(t.TempDir(), "token.json")
	valid := &oauth2.Token{AccessToken: "current", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}
	if err := SaveToken(path, valid); err != nil {
		t.Fatal(err)
	}

	creds, err := NewCredentials(context.Background(), testConfig(srv.URL), path)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := creds.Token()
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "current" || hits.Load() != 0 {
		t.Fatalf("valid token refreshed early: %q after %d hits", tok.AccessToken, hits.Load())
	}

	creds.ForceRefresh()
	tok, err = creds.Token()
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "access-1" {
		t.Errorf("AccessToken after ForceRefresh = %q, want access-1", tok.AccessToken)
	}
}
