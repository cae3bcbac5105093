//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var baseURL = getenv("E2E_BASE_URL", "http://localhost:8080")

const productsPath = "/api/products"

func TestSystem_E2E_ProductLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	waitReady(t, ctx, baseURL+"/readyz")

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, "ws"+strings.TrimPrefix(baseURL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer ws.Close()

	code := fmt.Sprintf("E2E-%d-%d", time.Now().Unix(), rand.Intn(100000))

	var created struct {
		Message string         `json:"message"`
		Product map[string]any `json:"product"`
	}
	doJSON(t, http.MethodPost, baseURL+productsPath, map[string]any{
		"title":       "Pen",
		"description": "Blue pen",
		"code":        code,
		"price":       1.5,
		"stock":       10,
		"category":    "office",
	}, &created, 201)

	id, _ := created.Product["id"].(string)
	if id == "" {
		t.Fatalf("product id missing: %#v", created)
	}

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read newProduct event: %v", err)
	}
	if ev.Event != "newProduct" || ev.Data["id"] != id {
		t.Fatalf("unexpected event: %#v", ev)
	}

	doJSON(t, http.MethodPut, baseURL+productsPath+"/"+id, map[string]any{"stock": 7}, nil, 200)

	if os.Getenv("E2E_RESTART_CATALOG") == "1" {
		restartContainer(t, ctx, "catalog")
		waitReady(t, ctx, baseURL+"/readyz")
	}

	var got map[string]any
	doJSON(t, http.MethodGet, baseURL+productsPath+"/"+id, nil, &got, 200)
	if got["stock"] != float64(7) {
		t.Fatalf("stock=%v want 7", got["stock"])
	}

	doJSON(t, http.MethodDelete, baseURL+productsPath+"/"+id, nil, nil, 200)
	doJSON(t, http.MethodGet, baseURL+productsPath+"/"+id, nil, nil, 404)
}

func waitReady(t *testing.T, ctx context.Context, url string) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil && resp != nil && resp.StatusCode == 200 {
			_ = resp.Body.Close()
			return
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("service not ready: %s", url)
}

func doJSON(t *testing.T, method, url string, body any, out any, want int) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		t.Fatalf("%s %s: status=%d want=%d", method, url, resp.StatusCode, want)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
