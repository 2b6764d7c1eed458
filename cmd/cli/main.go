package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	key := os.Getenv("API_KEY")

	in := bufio.NewReader(os.Stdin)
	ask := func(prompt, def string) string {
		if def != "" {
			fmt.Printf("%s [%s]: ", prompt, def)
		} else {
			fmt.Printf("%s: ", prompt)
		}
		s, _ := in.ReadString('\n')
		if s = strings.TrimSpace(s); s == "" {
			return def
		}
		return s
	}

	t := map[string]any{}
	protocol := strings.ToLower(ask("Protocol (http, tcp, dns, ping)", "http"))
	t["protocol"] = protocol

	switch protocol {
	case "http":
		raw := ask("Site URL to monitor (e.g., https://example.com)", "")
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			fmt.Println("Invalid URL.")
			return
		}
		t["address"] = raw
		t["check_certificate"] = strings.HasPrefix(raw, "https://")
	case "tcp":
		t["address"] = ask("Host", "")
		t["port"] = atoi(ask("Port", "80"))
	case "dns":
		t["address"] = ask("Domain", "")
		t["dns_record_type"] = strings.ToUpper(ask("Record type (A, AAAA, CNAME, MX, TXT, NS)", "A"))
		if v := ask("Expected value (optional)", ""); v != "" {
			t["dns_expected"] = v
		}
	case "ping":
		t["address"] = ask("Host", "")
	default:
		fmt.Println("Unknown protocol.")
		return
	}
	t["name"] = ask("Name", fmt.Sprint(t["address"]))
	t["interval"] = atoi(ask("Interval in seconds", "60"))

	body, _ := json.Marshal(t)
	req, _ := http.NewRequest(http.MethodPost, api+"/api/targets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Println("Error contacting API:", err)
		return
	}
	defer resp.Body.Close()

	msg, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var created struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(msg, &created)
		fmt.Printf("Added %s! Follow it with GET /api/targets/%s/state.\n", created.ID, created.ID)
	} else {
		fmt.Println("API returned status:", resp.Status, strings.TrimSpace(string(msg)))
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
