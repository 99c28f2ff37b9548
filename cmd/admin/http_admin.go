package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	os.Exit(adminHTTP("state", http.MethodGet, "/admin/v1/state", 5*time.Second, args))
}

func snapshotCmd(args []string) {
	os.Exit(adminHTTP("snapshot", http.MethodPost, "/admin/v1/snapshot", 10*time.Second, args))
}

func metricsCmd(args []string) {
	os.Exit(adminHTTP("metrics", http.MethodGet, "/metrics", 5*time.Second, args))
}

// adminHTTP calls one server endpoint and prints the body. It returns the exit code.
func adminHTTP(name, method, path string, timeout time.Duration, args []string) int {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 2
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 1
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimRight(string(b), "\n"))
	if resp.StatusCode/100 != 2 {
		return 1
	}
	return 0
}
