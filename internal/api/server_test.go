package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/raaihank/termswap/internal/config"
	"github.com/raaihank/termswap/internal/engine"
	"github.com/raaihank/termswap/internal/logger"
	"github.com/raaihank/termswap/internal/obfuscation"
	"github.com/raaihank/termswap/internal/rules"
	"github.com/raaihank/termswap/internal/version"
	"github.com/raaihank/termswap/internal/workspace"
)

const workPath = "/ws/work.txt"

func newTestServer(t *testing.T, work string, configure func(*config.Config)) (*Server, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/ws/rules.json", []byte(`{"bypass": "bridge_compatibility", "exploit": "performance_case"}`), 0o644)
	if work != "" {
		afero.WriteFile(fs, workPath, []byte(work), 0o644)
	}

	zl := zap.NewNop()
	holder, err := rules.NewHolder(rules.NewSource(fs, "/ws/rules.json", "", zl), zl)
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	mapper, err := obfuscation.NewMapper(obfuscation.Config{}, obfuscation.NewFileStore(fs, "/ws/.var_map.json"), zl)
	if err != nil {
		t.Fatalf("failed to create mapper: %v", err)
	}
	eng := engine.New(engine.Deps{
		Fs:       fs,
		BaseDir:  "/ws",
		Rules:    holder,
		Work:     workspace.NewFile(fs, workPath),
		Versions: version.NewStore(fs, version.Config{BackupDir: "/ws/backups"}, version.NewFileHistory(fs, "/ws/.history.json"), zl),
		Mapper:   mapper,
	}, zl)

	cfg := config.GetDefaults()
	cfg.RateLimit.Enabled = false
	if configure != nil {
		configure(cfg)
	}
	return New(cfg, &logger.Logger{Logger: zl}, eng, nil), fs
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthAndInfo(t *testing.T) {
	s, _ := newTestServer(t, "", nil)

	rec := do(t, s, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request ID header")
	}

	rec = do(t, s, "GET", "/info", "")
	var info map[string]interface{}
	decodeBody(t, rec, &info)
	if info["name"] != "termswap" || info["rules_loaded"] != float64(2) {
		t.Errorf("unexpected info %v", info)
	}
}

func TestSanitizeRestore(t *testing.T) {
	s, _ := newTestServer(t, "", nil)

	rec := do(t, s, "POST", "/v1/sanitize", `{"text": "Bypass the EXPLOIT"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("sanitize status = %d: %s", rec.Code, rec.Body.String())
	}
	var result engine.Result
	decodeBody(t, rec, &result)
	if result.Content != "Bridge_compatibility the PERFORMANCE_CASE" || result.TotalReplacements != 2 {
		t.Errorf("unexpected sanitize result %+v", result)
	}

	rec = do(t, s, "POST", "/v1/restore", `{"text": "`+result.Content+`"}`)
	decodeBody(t, rec, &result)
	if result.Content != "Bypass the EXPLOIT" {
		t.Errorf("restore gave %q", result.Content)
	}

	if rec := do(t, s, "POST", "/v1/sanitize", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing text status = %d", rec.Code)
	}
	if rec := do(t, s, "POST", "/v1/sanitize", `{"text":`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", rec.Code)
	}
}

func TestCheckAndFindTerms(t *testing.T) {
	s, _ := newTestServer(t, "exploit ahead", nil)

	var check engine.CheckResult
	decodeBody(t, do(t, s, "POST", "/v1/check", `{"text": "all clear"}`), &check)
	if !check.Clean {
		t.Errorf("expected clean text, got %+v", check)
	}

	decodeBody(t, do(t, s, "POST", "/v1/check", ""), &check)
	if check.Clean || check.Found != 1 {
		t.Errorf("working text should not be clean, got %+v", check)
	}

	var found struct {
		Findings []struct {
			Term string `json:"term"`
			Line int    `json:"line"`
		} `json:"findings"`
	}
	decodeBody(t, do(t, s, "POST", "/v1/find-terms", `{"text": "x\nbypass"}`), &found)
	if len(found.Findings) != 1 || found.Findings[0].Term != "bypass" || found.Findings[0].Line != 2 {
		t.Errorf("unexpected findings %+v", found.Findings)
	}
}

func TestWorkingTextOperations(t *testing.T) {
	s, fs := newTestServer(t, "exploit the password", nil)

	rec := do(t, s, "POST", "/v1/encode", `{"preview": true}`)
	var result engine.Result
	decodeBody(t, rec, &result)
	if !result.Preview || result.Content != "performance_case the password" {
		t.Errorf("unexpected preview %+v", result)
	}
	if data, _ := afero.ReadFile(fs, workPath); string(data) != "exploit the password" {
		t.Errorf("preview modified the working text: %q", data)
	}

	if rec := do(t, s, "POST", "/v1/encode", ""); rec.Code != http.StatusOK {
		t.Fatalf("encode status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, "POST", "/v1/obfuscate", ""); rec.Code != http.StatusOK {
		t.Fatalf("obfuscate status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, "POST", "/v1/obfuscate", ""); rec.Code != http.StatusConflict {
		t.Errorf("second obfuscate status = %d, want 409", rec.Code)
	}
	if data, _ := afero.ReadFile(fs, workPath); string(data) != "performance_case the var_a1" {
		t.Errorf("unexpected working text %q", data)
	}

	var history struct {
		Entries []version.HistoryEntry `json:"entries"`
	}
	decodeBody(t, do(t, s, "GET", "/v1/history", ""), &history)
	if len(history.Entries) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(history.Entries))
	}

	rec = do(t, s, "POST", "/v1/undo", "")
	decodeBody(t, rec, &result)
	if result.Mode != engine.ModeUndo || result.Content != "performance_case the password" {
		t.Errorf("unexpected undo result %+v", result)
	}

	var stats engine.Stats
	decodeBody(t, do(t, s, "GET", "/v1/stats", ""), &stats)
	if stats.ObfuscationOutstanding || stats.HistoryCount != 1 || stats.SanitizedTermsFound != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if rec := do(t, s, "POST", "/v1/deobfuscate", ""); rec.Code != http.StatusNotFound {
		t.Errorf("deobfuscate without a map status = %d, want 404", rec.Code)
	}
}

func TestFullReportsCommittedEncode(t *testing.T) {
	s, fs := newTestServer(t, "bypass the password check", nil)

	rec := do(t, s, "POST", "/v1/full", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("full status = %d: %s", rec.Code, rec.Body.String())
	}

	afero.WriteFile(fs, workPath, []byte("exploit the token"), 0o644)
	rec = do(t, s, "POST", "/v1/full", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second full status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Kind    string             `json:"kind"`
		Partial *engine.FullResult `json:"partial"`
	}
	decodeBody(t, rec, &body)
	if body.Kind != "conflict" || body.Partial == nil {
		t.Fatalf("expected conflict with partial result, got %+v", body)
	}
	if body.Partial.Encode.Content != "performance_case the token" || body.Partial.Obfuscate != nil {
		t.Errorf("unexpected partial result %+v", body.Partial)
	}
	if data, _ := afero.ReadFile(fs, workPath); string(data) != "performance_case the token" {
		t.Errorf("working text = %q", data)
	}
}

func TestTranslateFileEndpoint(t *testing.T) {
	s, fs := newTestServer(t, "", nil)
	afero.WriteFile(fs, "/ws/notes.md", []byte("bypass"), 0o644)

	rec := do(t, s, "POST", "/v1/translate-file", `{"path": "notes.md"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if data, _ := afero.ReadFile(fs, "/ws/notes.md"); string(data) != "bridge_compatibility" {
		t.Errorf("file not translated: %q", data)
	}

	if rec := do(t, s, "POST", "/v1/translate-file", `{"path": "missing.md"}`); rec.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d", rec.Code)
	}
	if rec := do(t, s, "POST", "/v1/translate-file", `{"path": "notes.md", "direction": "sideways"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad direction status = %d", rec.Code)
	}

	t.Run("OutsideWorkspace", func(t *testing.T) {
		afero.WriteFile(fs, "/etc/app.conf", []byte("bypass"), 0o644)
		for _, path := range []string{"/etc/app.conf", "../etc/app.conf", "notes/../../etc/app.conf"} {
			rec := do(t, s, "POST", "/v1/translate-file", `{"path": "`+path+`"}`)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("path %s status = %d, want 400", path, rec.Code)
			}
			var body errorResponse
			decodeBody(t, rec, &body)
			if body.Kind != "invalid" {
				t.Errorf("path %s kind = %q", path, body.Kind)
			}
		}
		if data, _ := afero.ReadFile(fs, "/etc/app.conf"); string(data) != "bypass" {
			t.Errorf("file outside workspace was rewritten: %q", data)
		}
	})
}

func TestRulesEndpoints(t *testing.T) {
	s, fs := newTestServer(t, "", nil)

	var list struct {
		Rules []rules.Rule `json:"rules"`
	}
	decodeBody(t, do(t, s, "GET", "/v1/rules", ""), &list)
	if len(list.Rules) != 2 {
		t.Errorf("expected 2 rules, got %v", list.Rules)
	}

	var completions struct {
		Completions []rules.Completion `json:"completions"`
	}
	decodeBody(t, do(t, s, "GET", "/v1/completions?prefix=perf", ""), &completions)
	if len(completions.Completions) != 1 || completions.Completions[0].Label != "performance_case" {
		t.Errorf("unexpected completions %v", completions.Completions)
	}
	if rec := do(t, s, "GET", "/v1/completions?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}

	var validation struct {
		Valid bool `json:"valid"`
	}
	decodeBody(t, do(t, s, "GET", "/v1/validate", ""), &validation)
	if !validation.Valid {
		t.Error("expected a valid rule table")
	}

	afero.WriteFile(fs, "/ws/rules.json", []byte(`{"secret": "node"}`), 0o644)
	var reload struct {
		Rules int `json:"rules"`
	}
	decodeBody(t, do(t, s, "POST", "/v1/rules/reload", ""), &reload)
	if reload.Rules != 1 {
		t.Errorf("reload gave %d rules", reload.Rules)
	}

	afero.WriteFile(fs, "/ws/rules.json", []byte(`not json`), 0o644)
	if rec := do(t, s, "POST", "/v1/rules/reload", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("broken rules status = %d", rec.Code)
	}
	if s.engine.Table().Len() != 1 {
		t.Error("failed reload replaced the table")
	}
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, "", func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.RequestsPerSecond = 0.001
		cfg.RateLimit.Burst = 1
	})

	if rec := do(t, s, "GET", "/v1/rules", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	if rec := do(t, s, "GET", "/v1/rules", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}
	if rec := do(t, s, "GET", "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health should not be rate limited, got %d", rec.Code)
	}
}

func TestBodyLimit(t *testing.T) {
	s, _ := newTestServer(t, "", func(cfg *config.Config) {
		cfg.Server.MaxBodyBytes = 16
	})
	rec := do(t, s, "POST", "/v1/sanitize", `{"text": "`+strings.Repeat("a", 64)+`"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestClientLimiterCleanup(t *testing.T) {
	l := newClientLimiter(1, 1)
	stale := time.Now().Add(-2 * bucketIdleTTL)
	for i := 0; i < maxBuckets; i++ {
		l.buckets[strconv.Itoa(i)] = &clientBucket{lastSeen: stale}
	}

	if !l.Allow("fresh") {
		t.Fatal("first request from a new client should pass")
	}
	if len(l.buckets) != 1 {
		t.Errorf("stale buckets not dropped, %d left", len(l.buckets))
	}
	if l.Allow("fresh") {
		t.Error("burst of 1 should reject the second request")
	}
}
