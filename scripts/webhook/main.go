// Command webhook posts a signed inbound message to a running API, the same
// shape the chat provider sends.
//
// Usage:
//
//	WEBHOOK_SECRET=... API_URL=... go run scripts/webhook/main.go <from> <text>
//	WEBHOOK_SECRET=... go run scripts/webhook/main.go 5511987654321 "#STATUS"
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/wolfman30/contractor-relay/internal/messaging"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run scripts/webhook/main.go <from> <text>")
		os.Exit(1)
	}
	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" {
		fmt.Println("Error: WEBHOOK_SECRET environment variable not set")
		os.Exit(1)
	}
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	now := time.Now().Unix()
	payload := map[string]any{
		"event":     "message.received",
		"timestamp": now,
		"data": map[string]any{
			"from":      os.Args[1],
			"text":      strings.Join(os.Args[2:], " "),
			"messageId": fmt.Sprintf("smoke-%d", now),
		},
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost, apiURL+"/webhook/whatsapp", bytes.NewReader(body))
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+messaging.Sign(secret, body))

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	fmt.Printf("HTTP %d\n%s\n", resp.StatusCode, string(raw))
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
