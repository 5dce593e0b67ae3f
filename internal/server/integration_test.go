package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apierrors "github.com/maruel/emojistore/internal/errors"
	"github.com/maruel/emojistore/internal/server/ratelimit"
	"github.com/maruel/emojistore/internal/storage"
	"github.com/maruel/emojistore/internal/storage/git"
)

type testEnv struct {
	server  *httptest.Server
	dataDir string
	history *git.Repo
}

func setupTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	dataDir := t.TempDir()
	store, err := storage.NewDocumentStore(dataDir)
	if err != nil {
		t.Fatalf("NewDocumentStore: %v", err)
	}
	serverCfg := storage.DefaultServerConfig()
	cfg := &Config{ServerConfig: &serverCfg, Version: "test"}
	if mutate != nil {
		mutate(cfg)
	}
	t.Cleanup(cfg.Limits.Close)
	server := httptest.NewServer(NewRouter(store, cfg))
	t.Cleanup(server.Close)
	return &testEnv{server: server, dataDir: dataDir, history: cfg.History}
}

// do sends a request and decodes the JSON response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, body string, out any) *http.Response {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp
}

type recordJSON struct {
	ID         string  `json:"id"`
	UserID     string  `json:"userId"`
	TemplateID *string `json:"templateId"`
	Status     string  `json:"status"`
	CreatedAt  int64   `json:"createdAt"`
	File       string  `json:"file"`
}

type itemResp struct {
	OK   bool       `json:"ok"`
	Item recordJSON `json:"item"`
}

type listResp struct {
	Items []struct {
		recordJSON
		LottieJSON json.RawMessage `json:"lottieJson"`
	} `json:"items"`
}

func TestEmojiLifecycle(t *testing.T) {
	env := setupTestEnv(t, nil)

	var created itemResp
	resp := env.do(t, "POST", "/emojis", `{"userId":"u1","templateId":"smile","status":"draft","lottieJson":{"v":"5.7","layers":[]}}`, &created)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	if !created.OK || !strings.HasPrefix(created.Item.ID, "e_u1_") || created.Item.File != created.Item.ID+".json" {
		t.Fatalf("create = %+v", created)
	}
	if created.Item.TemplateID == nil || *created.Item.TemplateID != "smile" {
		t.Errorf("templateId = %v", created.Item.TemplateID)
	}
	if _, err := os.Stat(filepath.Join(env.dataDir, "u1", created.Item.File)); err != nil {
		t.Errorf("blob missing: %v", err)
	}

	var listed listResp
	env.do(t, "GET", "/emojis?userId=u1", "", &listed)
	if len(listed.Items) != 1 || listed.Items[0].ID != created.Item.ID {
		t.Fatalf("list = %+v", listed)
	}
	if got := string(listed.Items[0].LottieJSON); got != `{"v":"5.7","layers":[]}` {
		t.Errorf("lottieJson = %s", got)
	}

	var updated itemResp
	resp = env.do(t, "PATCH", "/emojis/"+created.Item.ID+"?userId=u1", `{"status":"paid"}`, &updated)
	if resp.StatusCode != http.StatusOK || updated.Item.Status != "paid" {
		t.Fatalf("update = %d %+v", resp.StatusCode, updated)
	}
	if updated.Item.CreatedAt != created.Item.CreatedAt {
		t.Errorf("createdAt changed: %d -> %d", created.Item.CreatedAt, updated.Item.CreatedAt)
	}

	var deleted struct {
		OK bool `json:"ok"`
	}
	resp = env.do(t, "DELETE", "/emojis/"+created.Item.ID+"?userId=u1", "", &deleted)
	if resp.StatusCode != http.StatusOK || !deleted.OK {
		t.Fatalf("delete = %d %+v", resp.StatusCode, deleted)
	}
	env.do(t, "GET", "/emojis?userId=u1", "", &listed)
	if len(listed.Items) != 0 {
		t.Errorf("list after delete = %+v", listed)
	}
}

func TestListEmpty(t *testing.T) {
	env := setupTestEnv(t, nil)
	resp := env.do(t, "GET", "/emojis?userId=nobody", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var raw map[string]json.RawMessage
	env.do(t, "GET", "/emojis?userId=nobody", "", &raw)
	if string(raw["items"]) != "[]" {
		t.Errorf("items = %s, want []", raw["items"])
	}
}

func TestErrors(t *testing.T) {
	env := setupTestEnv(t, nil)
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   apierrors.ErrorCode
	}{
		{"create missing user", "POST", "/emojis", `{"lottieJson":{}}`, 400, apierrors.ErrMissingField},
		{"create missing document", "POST", "/emojis", `{"userId":"u1"}`, 400, apierrors.ErrMissingField},
		{"create bad json", "POST", "/emojis", `{"userId":`, 400, apierrors.ErrInvalidBody},
		{"create traversal", "POST", "/emojis", `{"userId":"../x","lottieJson":{}}`, 400, apierrors.ErrValidationFailed},
		{"list missing user", "GET", "/emojis", "", 400, apierrors.ErrMissingField},
		{"update unknown", "PATCH", "/emojis/e_u1_deadbeef?userId=u1", `{"status":"paid"}`, 404, apierrors.ErrNotFound},
		{"update blank user", "PATCH", "/emojis/e_u1_deadbeef?userId=%20", `{"status":"paid"}`, 400, apierrors.ErrMissingField},
		{"delete unknown", "DELETE", "/emojis/e_u1_deadbeef?userId=u1", "", 404, apierrors.ErrNotFound},
		{"history negative limit", "GET", "/emojis/history?userId=u1&limit=-1", "", 400, apierrors.ErrValidationFailed},
		{"history bad limit", "GET", "/emojis/history?userId=u1&limit=abc", "", 400, apierrors.ErrValidationFailed},
		{"history traversal", "GET", "/emojis/history?userId=../x", "", 400, apierrors.ErrValidationFailed},
		{"create reserved user", "POST", "/emojis", `{"userId":".git","lottieJson":{}}`, 400, apierrors.ErrValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var er apierrors.ErrorResponse
			resp := env.do(t, tt.method, tt.path, tt.body, &er)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if er.Error.Code != tt.wantCode {
				t.Errorf("code = %s, want %s (%q)", er.Error.Code, tt.wantCode, er.Error.Message)
			}
			if got := resp.Header.Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q", got)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t, nil)
	var h struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	resp := env.do(t, "GET", "/health", "", &h)
	if resp.StatusCode != http.StatusOK || h.Status != "ok" || h.Version != "test" {
		t.Errorf("health = %d %+v", resp.StatusCode, h)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestEnv(t, nil)
	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/emojis/e_u1_0", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PATCH") {
		t.Errorf("Allow-Methods = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Headers"); got != "content-type" {
		t.Errorf("Allow-Headers = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Allow-Credentials = %q", got)
	}
}

func TestBodyLimit(t *testing.T) {
	env := setupTestEnv(t, func(c *Config) {
		c.ServerConfig.Quotas.MaxRequestBodyBytes = 64
	})
	body := `{"userId":"u1","lottieJson":{"pad":"` + strings.Repeat("x", 100) + `"}}`
	var er apierrors.ErrorResponse
	resp := env.do(t, "POST", "/emojis", body, &er)
	if resp.StatusCode != http.StatusRequestEntityTooLarge || er.Error.Code != apierrors.ErrPayloadTooLarge {
		t.Errorf("got %d %s", resp.StatusCode, er.Error.Code)
	}
	if er.Details["limit"] != float64(64) {
		t.Errorf("details = %v", er.Details)
	}
}

func TestRateLimit(t *testing.T) {
	env := setupTestEnv(t, func(c *Config) {
		// Burst of 1 per tier.
		c.Limits = ratelimit.NewConfig(6, 6)
	})
	resp := env.do(t, "GET", "/emojis?userId=u1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-RateLimit-Limit") != "6" {
		t.Errorf("X-RateLimit-Limit = %q", resp.Header.Get("X-RateLimit-Limit"))
	}
	var er apierrors.ErrorResponse
	resp = env.do(t, "GET", "/emojis?userId=u1", "", &er)
	if resp.StatusCode != http.StatusTooManyRequests || er.Error.Code != apierrors.ErrRateLimited {
		t.Fatalf("second = %d %s", resp.StatusCode, er.Error.Code)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	// The write tier has its own bucket.
	resp = env.do(t, "POST", "/emojis", `{"userId":"u1","lottieJson":{}}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("write status = %d", resp.StatusCode)
	}
	for range 3 {
		if resp = env.do(t, "GET", "/health", "", nil); resp.StatusCode != http.StatusOK {
			t.Errorf("health status = %d", resp.StatusCode)
		}
	}
}

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.Open(dir, "test", "test@example.com")
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewDocumentStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(NewRouter(store, &Config{History: repo}))
	t.Cleanup(server.Close)
	env := &testEnv{server: server, dataDir: dir, history: repo}

	var created itemResp
	env.do(t, "POST", "/emojis", `{"userId":"u1","lottieJson":{"v":1}}`, &created)
	env.do(t, "PATCH", "/emojis/"+created.Item.ID+"?userId=u1", `{"status":"paid"}`, nil)
	env.do(t, "POST", "/emojis", `{"userId":"u2","lottieJson":{"v":2}}`, nil)
	// Failed requests leave no commit.
	env.do(t, "DELETE", "/emojis/e_u1_deadbeef?userId=u1", "", nil)

	var hist struct {
		Commits []git.Commit `json:"commits"`
	}
	resp := env.do(t, "GET", "/emojis/history?userId=u1", "", &hist)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(hist.Commits) != 2 {
		t.Fatalf("commits = %+v", hist.Commits)
	}
	if want := "PATCH /emojis/" + created.Item.ID; hist.Commits[0].Message != want {
		t.Errorf("newest = %q, want %q", hist.Commits[0].Message, want)
	}
	if hist.Commits[1].Message != "POST /emojis" {
		t.Errorf("oldest = %q", hist.Commits[1].Message)
	}
	oldest := hist.Commits[1].Hash
	env.do(t, "GET", "/emojis/history?userId=u1&limit=1", "", &hist)
	if len(hist.Commits) != 1 {
		t.Errorf("limit=1 gave %d commits", len(hist.Commits))
	}

	var snap struct {
		Hash  string       `json:"hash"`
		Items []recordJSON `json:"items"`
	}
	resp = env.do(t, "GET", "/emojis/history/"+oldest+"?userId=u1", "", &snap)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("snapshot status = %d", resp.StatusCode)
	}
	if len(snap.Items) != 1 || snap.Items[0].Status != "draft" {
		t.Errorf("snapshot = %+v", snap)
	}
	resp = env.do(t, "GET", "/emojis/history/nothex?userId=u1", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("bad hash status = %d", resp.StatusCode)
	}
}

func TestHistoryDisabled(t *testing.T) {
	env := setupTestEnv(t, nil)
	var raw map[string]json.RawMessage
	resp := env.do(t, "GET", "/emojis/history?userId=u1", "", &raw)
	if resp.StatusCode != http.StatusOK || string(raw["commits"]) != "[]" {
		t.Errorf("got %d %s", resp.StatusCode, raw["commits"])
	}
}

func TestSchema(t *testing.T) {
	env := setupTestEnv(t, nil)
	var raw map[string]json.RawMessage
	resp := env.do(t, "GET", "/schema", "", &raw)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, k := range []string{"record", "item", "createRequest", "updateRequest"} {
		if !bytes.Contains(raw[k], []byte(`"properties"`)) {
			t.Errorf("%s schema = %s", k, raw[k])
		}
	}
	if !bytes.Contains(raw["record"], []byte(`"createdAt"`)) {
		t.Errorf("record schema lacks createdAt: %s", raw["record"])
	}
}
