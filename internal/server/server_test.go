package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/sources/dev"
	"github.com/sw33tLie/stockfinder/pkg/storage"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T, user, pass string) *Server {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "stock.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	shop := dev.New(sources.Source{ID: 1, Name: "coolmod"}, "coolmod.com")
	if err := db.EnsureSource(context.Background(), 1, "coolmod"); err != nil {
		t.Fatal(err)
	}
	reg, err := sources.NewRegistry(shop)
	if err != nil {
		t.Fatal(err)
	}

	hash := ""
	if pass != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		hash = string(h)
	}
	return New(db, reg, user, hash)
}

func do(t *testing.T, s *Server, req *http.Request) (int, string) {
	t.Helper()
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("test request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAddWatch(t *testing.T) {
	s := newTestServer(t, "", "")

	code, body := do(t, s, jsonRequest("POST", "/api/watches", `{"url":"https://www.coolmod.com/p/rtx-4070/","user_id":7,"max_price":550,"alert_by_email":true}`))
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", code, body)
	}
	var got watchResponse
	if err := json.Unmarshal([]byte(body), &got); err != nil || got.ID == 0 || got.Source != "coolmod" {
		t.Fatalf("unexpected response %s (%v)", body, err)
	}

	pending, err := s.DB.PendingUserEntries(context.Background())
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending user entries: %v %v", pending, err)
	}
	if pending[0].URL != "https://www.coolmod.com/p/rtx-4070" || !pending[0].AlertByEmail {
		t.Fatalf("unexpected entry %+v", pending[0])
	}
}

func TestAddWatchRejects(t *testing.T) {
	s := newTestServer(t, "", "")
	bodies := []string{
		`{"url":"https://unknown.example/p/1","user_id":7,"max_price":10}`,
		`{"url":"not a url","user_id":7,"max_price":10}`,
		`{"url":"https://www.coolmod.com/p/1","user_id":0,"max_price":10}`,
		`{"url":"https://www.coolmod.com/p/1","user_id":7,"max_price":0}`,
		`{"url":`,
	}
	for _, b := range bodies {
		if code, body := do(t, s, jsonRequest("POST", "/api/watches", b)); code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", b, code, body)
		}
	}
}

func TestListEndpoints(t *testing.T) {
	s := newTestServer(t, "", "")
	ctx := context.Background()
	a, err := s.DB.RegisterProduct(ctx, storage.ProductRegistration{SourceID: 1, Code: "A1", URL: "https://www.coolmod.com/p/a1", Name: "RTX", Category: "GPU", Price: 500, Stock: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.DB.InsertAlert(ctx, storage.Alert{UserID: 7, AvailabilityID: a.ID, MaxPrice: 450}); err != nil {
		t.Fatal(err)
	}

	code, body := do(t, s, httptest.NewRequest("GET", "/api/availabilities?source=Coolmod&in_stock=true", nil))
	if code != http.StatusOK || !strings.Contains(body, `"code":"A1"`) {
		t.Fatalf("availabilities: %d %s", code, body)
	}
	if code, _ := do(t, s, httptest.NewRequest("GET", "/api/availabilities?source=nope", nil)); code != http.StatusBadRequest {
		t.Fatalf("unknown source should be 400, got %d", code)
	}

	code, body = do(t, s, httptest.NewRequest("GET", "/api/alerts?user_id=7", nil))
	var alerts []storage.AlertView
	if code != http.StatusOK || json.Unmarshal([]byte(body), &alerts) != nil || len(alerts) != 1 || alerts[0].URL != a.URL {
		t.Fatalf("alerts: %d %s", code, body)
	}
	if code, _ := do(t, s, httptest.NewRequest("GET", "/api/alerts?user_id=abc", nil)); code != http.StatusBadRequest {
		t.Fatalf("bad user_id should be 400, got %d", code)
	}

	code, body = do(t, s, httptest.NewRequest("GET", "/api/stats", nil))
	if code != http.StatusOK || !strings.Contains(body, `"availabilities":1`) || !strings.Contains(body, `"alerts":1`) {
		t.Fatalf("stats: %d %s", code, body)
	}
}

func TestBasicAuth(t *testing.T) {
	s := newTestServer(t, "admin", "s3cret")

	if code, _ := do(t, s, httptest.NewRequest("GET", "/api/stats", nil)); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", code)
	}

	bad := httptest.NewRequest("GET", "/api/stats", nil)
	bad.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:wrong")))
	if code, _ := do(t, s, bad); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a wrong password, got %d", code)
	}

	good := httptest.NewRequest("GET", "/api/stats", nil)
	good.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:s3cret")))
	if code, body := do(t, s, good); code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
}
