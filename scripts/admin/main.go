package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func usage() {
	fmt.Println("Usage: go run scripts/admin/main.go <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  dashboard                 delivery stats, breaker and rate limit")
	fmt.Println("  daily [days]              sent/failed counts per day")
	fmt.Println("  history [limit]           recent notifications")
	fmt.Println("  rules                     list automation rules")
	fmt.Println("  test <phone> [message]    urgent test send")
	fmt.Println("  notify <ticket_id>        resend the ticket creation message")
	fmt.Println("  nudge <ticket_id>         send a follow-up for a ticket")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Println("Error: ADMIN_JWT_SECRET environment variable not set")
		os.Exit(1)
	}
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	var (
		method = http.MethodGet
		path   string
		body   any
	)
	switch cmd := os.Args[1]; cmd {
	case "dashboard":
		path = "/admin/whatsapp/dashboard"
	case "daily":
		path = "/admin/whatsapp/metrics/daily"
		if len(os.Args) > 2 {
			path += "?days=" + os.Args[2]
		}
	case "rules":
		path = "/admin/whatsapp/rules"
	case "history":
		path = "/admin/whatsapp/history"
		if len(os.Args) > 2 {
			path += "?limit=" + os.Args[2]
		}
	case "test":
		if len(os.Args) < 3 {
			usage()
		}
		method = http.MethodPost
		path = "/admin/whatsapp/test"
		payload := map[string]string{"phone": os.Args[2]}
		if len(os.Args) > 3 {
			payload["message"] = os.Args[3]
		}
		body = payload
	case "notify", "nudge":
		if len(os.Args) < 3 {
			usage()
		}
		method = http.MethodPost
		path = fmt.Sprintf("/admin/tickets/%s/%s", os.Args[2], cmd)
	default:
		usage()
	}

	claims := jwt.RegisteredClaims{
		Subject:   "admin-cli",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}

	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, apiURL+path, reader)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Authorization", "Bearer "+tokenString)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		fmt.Printf("Error: HTTP %d\n%s\n", resp.StatusCode, string(raw))
		os.Exit(1)
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		fmt.Printf("Response: %s\n", string(raw))
		return
	}
	pretty, _ := json.MarshalIndent(result, "", "  ")
	fmt.Printf("HTTP %d\n%s\n", resp.StatusCode, string(pretty))
}
