package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		LoginRate:     1, // 1 req/sec
		LoginBurst:    3,
		RegisterRate:  1,
		RegisterBurst: 2,
		// クリーンアップがテスト中に走らないように長めに設定
		CleanupInterval: time.Hour,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestLoginRateLimit_AllowsRequestsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.LoginMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/login/access-token", nil)
		req.RemoteAddr = "192.0.2.1:54321"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, w.Result().StatusCode, http.StatusOK)
		}
	}
}

func TestLoginRateLimit_BlocksOverBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.LoginMiddleware()(okHandler())

	var lastStatus int
	var lastBody []byte
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/login/access-token", nil)
		req.RemoteAddr = "192.0.2.1:54321"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)
		lastStatus = w.Result().StatusCode
		lastBody = w.Body.Bytes()
	}

	if lastStatus != http.StatusTooManyRequests {
		t.Fatalf("4th request status = %d, want %d", lastStatus, http.StatusTooManyRequests)
	}

	var body map[string]string
	if err := json.Unmarshal(lastBody, &body); err != nil {
		t.Fatalf("failed to decode 429 body: %v", err)
	}
	if body["code"] != "rate_limit_exceeded" {
		t.Errorf("code = %q, want %q", body["code"], "rate_limit_exceeded")
	}
}

func TestLoginRateLimit_SetsRetryAfterHeader(t *testing.T) {
	config := testRateLimiterConfig()
	config.LoginBurst = 1
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.LoginMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/login/access-token", nil)
		req.RemoteAddr = "192.0.2.1:54321"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if i == 1 {
			if got := w.Result().Header.Get("Retry-After"); got == "" {
				t.Error("expected Retry-After header on 429 response")
			}
		}
	}
}

// IPごとに独立したバケットを持つことを検証
func TestLoginRateLimit_IndependentPerIP(t *testing.T) {
	config := testRateLimiterConfig()
	config.LoginBurst = 1
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.LoginMiddleware()(okHandler())

	// 1つ目のIPでバーストを使い切る
	req1 := httptest.NewRequest(http.MethodPost, "/api/v1/login/access-token", nil)
	req1.RemoteAddr = "192.0.2.1:54321"
	handler.ServeHTTP(httptest.NewRecorder(), req1)

	// 別のIPからのリクエストは通る
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/login/access-token", nil)
	req2.RemoteAddr = "198.51.100.7:12345"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req2)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("other IP status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	if got := rl.LoginLimiterCount(); got != 2 {
		t.Errorf("LoginLimiterCount() = %d, want 2", got)
	}
}

// 登録のレート制限がログインとは独立に動作することを検証
func TestRegisterRateLimit_IndependentFromLogin(t *testing.T) {
	config := testRateLimiterConfig()
	config.LoginBurst = 1
	rl := NewRateLimiter(config)
	defer rl.Stop()

	loginHandler := rl.LoginMiddleware()(okHandler())
	registerHandler := rl.RegisterMiddleware()(okHandler())

	// ログインのバーストを使い切る
	loginReq := httptest.NewRequest(http.MethodPost, "/api/v1/login/access-token", nil)
	loginReq.RemoteAddr = "192.0.2.1:54321"
	loginHandler.ServeHTTP(httptest.NewRecorder(), loginReq)
	loginHandler.ServeHTTP(httptest.NewRecorder(), loginReq)

	// 同じIPからの登録は通る
	registerReq := httptest.NewRequest(http.MethodPost, "/api/v1/register", nil)
	registerReq.RemoteAddr = "192.0.2.1:54321"
	w := httptest.NewRecorder()
	registerHandler.ServeHTTP(w, registerReq)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("register status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRegisterRateLimit_BlocksOverBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.RegisterMiddleware()(okHandler())

	var lastStatus int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/register", nil)
		req.RemoteAddr = "192.0.2.1:54321"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)
		lastStatus = w.Result().StatusCode
	}

	if lastStatus != http.StatusTooManyRequests {
		t.Errorf("3rd request status = %d, want %d", lastStatus, http.StatusTooManyRequests)
	}
}

// X-Forwarded-Forの先頭エントリがキーとして使われることを検証
func TestClientIPFromRequest_XForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:443"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	if got := clientIPFromRequest(req); got != "203.0.113.5" {
		t.Errorf("clientIPFromRequest() = %q, want %q", got, "203.0.113.5")
	}
}

func TestClientIPFromRequest_RemoteAddrFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:54321"

	if got := clientIPFromRequest(req); got != "192.0.2.9" {
		t.Errorf("clientIPFromRequest() = %q, want %q", got, "192.0.2.9")
	}
}

func TestNewRateLimiterConfig_FromPerMinuteCounts(t *testing.T) {
	config := NewRateLimiterConfig(10, 5)

	if config.LoginBurst != 10 {
		t.Errorf("LoginBurst = %d, want 10", config.LoginBurst)
	}
	if config.RegisterBurst != 5 {
		t.Errorf("RegisterBurst = %d, want 5", config.RegisterBurst)
	}
	if config.LoginRate != rate.Limit(10.0/60.0) {
		t.Errorf("LoginRate = %v, want %v", config.LoginRate, rate.Limit(10.0/60.0))
	}
}

func TestRateLimiter_Cleanup_RemovesStaleEntries(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	rl.getOrCreateLoginLimiter("192.0.2.1")

	// 最終アクセスを過去にずらしてクリーンアップ対象にする
	rl.loginMu.Lock()
	for _, il := range rl.loginLimiters {
		il.lastAccess = il.lastAccess.Add(-3 * time.Hour)
	}
	rl.loginMu.Unlock()

	rl.cleanup()

	if got := rl.LoginLimiterCount(); got != 0 {
		t.Errorf("LoginLimiterCount() after cleanup = %d, want 0", got)
	}
}
