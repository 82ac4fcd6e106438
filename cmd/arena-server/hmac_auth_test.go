package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func signHeaders(secret, agentID, method, path, body string, ts int64) map[string]string {
	tsRaw := strconv.FormatInt(ts, 10)
	canonical := tsRaw + "\n" + method + "\n" + path + "\n" + body
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return map[string]string{
		"X-Agent-Id":  agentID,
		"X-Ts":        tsRaw,
		"X-Signature": hex.EncodeToString(mac.Sum(nil)),
	}
}

func TestHMACAuth(t *testing.T) {
	h, _, cleanup := newTestServer(t)
	defer cleanup()
	_, body := doJSON(t, h, http.MethodPost, "/api/v1/agents/register", `{"name":"Signer"}`, nil)
	apiKey, _ := body["api_key"].(string)

	path := "/api/v1/agents/status"
	now := time.Now().UnixMilli()

	rec, out := doJSON(t, h, http.MethodGet, path, "", signHeaders(apiKey, "signer", http.MethodGet, path, "", now))
	if rec.Code != http.StatusOK || out["id"] != "signer" {
		t.Fatalf("signed request = %d %+v", rec.Code, out)
	}

	// wrong secret
	rec, _ = doJSON(t, h, http.MethodGet, path, "", signHeaders("wrong-secret", "signer", http.MethodGet, path, "", now))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged signature = %d", rec.Code)
	}

	// outside the skew window
	stale := now - 301_000
	rec, _ = doJSON(t, h, http.MethodGet, path, "", signHeaders(apiKey, "signer", http.MethodGet, path, "", stale))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale timestamp = %d", rec.Code)
	}

	// method is part of the canonical string
	headers := signHeaders(apiKey, "signer", http.MethodPost, path, "", now)
	rec, _ = doJSON(t, h, http.MethodGet, path, "", headers)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("method mismatch = %d", rec.Code)
	}
}
