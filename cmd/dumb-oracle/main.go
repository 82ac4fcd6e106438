// dumb-oracle is a scripted example agent: it registers itself, polls
// the arena summary, and submits a random forecast while a round is
// open for betting.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

type summary struct {
	Round *struct {
		RoundID  string    `json:"round_id"`
		Status   string    `json:"status"`
		LockTime time.Time `json:"lock_time"`
	} `json:"round"`
}

var directions = []string{"UP", "DOWN", "FLAT"}

var rules = map[string][2]string{
	"UP":   {"candle.bullish_engulfing.v1", "indicator.rsi14_lt_30.v1"},
	"DOWN": {"candle.bearish_engulfing.v1", "indicator.rsi14_gt_70.v1"},
	"FLAT": {"candle.doji.v1", "candle.inside_bar.v1"},
}

func main() {
	baseURL := getenv("BASE_URL", "http://localhost:8080")
	apiKey := os.Getenv("API_KEY")
	client := &http.Client{Timeout: 10 * time.Second}

	if apiKey == "" {
		apiKey = register(client, baseURL)
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	lastRound := ""
	for {
		time.Sleep(10 * time.Second)
		s, err := fetchSummary(client, baseURL)
		if err != nil {
			log.Printf("summary: %v", err)
			continue
		}
		if s.Round == nil || s.Round.Status != "betting" || s.Round.RoundID == lastRound {
			continue
		}
		if time.Until(s.Round.LockTime) < 30*time.Second {
			continue
		}
		if err := submit(client, baseURL, apiKey, rnd, s.Round.RoundID); err != nil {
			log.Printf("submit: %v", err)
			continue
		}
		lastRound = s.Round.RoundID
		log.Printf("submitted judgment for %s", s.Round.RoundID)
	}
}

func register(client *http.Client, baseURL string) string {
	body, _ := json.Marshal(map[string]string{
		"name":        getenv("AGENT_NAME", "Dumb Oracle"),
		"description": "coin-flip forecaster",
	})
	resp, err := client.Post(baseURL+"/api/v1/agents/register", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct {
		APIKey   string `json:"api_key"`
		ClaimURL string `json:"claim_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatal(err)
	}
	log.Printf("registered; claim at %s", out.ClaimURL)
	return out.APIKey
}

func fetchSummary(client *http.Client, baseURL string) (*summary, error) {
	resp, err := client.Get(baseURL + "/api/summary")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var s summary
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func submit(client *http.Client, baseURL, apiKey string, rnd *rand.Rand, roundID string) error {
	direction := directions[rnd.Intn(len(directions))]
	patterns := rules[direction]
	nowMs := time.Now().UnixMilli()
	payload := map[string]any{
		"round_id":            roundID,
		"direction":           direction,
		"confidence":          50 + rnd.Intn(50),
		"comment":             fmt.Sprintf("gut says %s", direction),
		"intervals":           []string{"1m", "5m"},
		"analysis_start_time": nowMs - 6*60*60*1000,
		"analysis_end_time":   nowMs,
		"reason_rule": map[string]any{
			"timeframe":    "5m",
			"pattern":      patterns[rnd.Intn(2)],
			"direction":    direction,
			"horizon_bars": 1 + rnd.Intn(12),
		},
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/judgments", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
