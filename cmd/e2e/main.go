// Manual end-to-end probe against a running server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const baseURL = "http://localhost:8080"

func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	userID := "e2e-user"

	// 1. Health Check
	checkEndpoint("GET", "/health", nil, 200)

	// 2. Buy
	buy := map[string]interface{}{"user_id": userID, "symbol": "AAPL", "quantity": 2, "price": "150.00"}
	checkEndpoint("POST", "/trade/buy", buy, 200)

	// 3. Portfolio with metrics
	checkEndpoint("GET", "/portfolio/"+userID, nil, 200)

	// 4. Transaction history
	checkEndpoint("GET", "/transactions/"+userID+"?limit=10", nil, 200)

	// 5. Sell one share back
	sell := map[string]interface{}{"user_id": userID, "symbol": "AAPL", "quantity": 1, "price": "155.00"}
	checkEndpoint("POST", "/trade/sell", sell, 200)

	// 6. Overselling is rejected as a business failure, not a fault
	oversell := map[string]interface{}{"user_id": userID, "symbol": "AAPL", "quantity": 9999, "price": "155.00"}
	checkEndpoint("POST", "/trade/sell", oversell, 200)

	// 7. Analysis (feature may be disabled without Gemini/Redis config)
	checkEndpoint("POST", "/portfolio/"+userID+"/analyze", nil, 200)

	fmt.Println("ALL TESTS PASSED")
}

func checkEndpoint(method, path string, body interface{}, expectedStatus int) {
	fmt.Printf("Testing %s %s...\n", method, path)
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("%s %s: expected status %d, got %d: %s", method, path, expectedStatus, resp.StatusCode, payload)
	}
	fmt.Printf("  -> %d %s\n", resp.StatusCode, truncate(string(payload), 120))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
