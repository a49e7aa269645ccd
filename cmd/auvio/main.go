package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func main() {
	baseURL := flag.String("server", envOr("AUVIO_SERVER_URL", "http://127.0.0.1:8080"), "URL du serveur (ex: http://127.0.0.1:8080)")
	timeout := flag.Duration("timeout", 3*time.Minute, "Timeout HTTP (une résolution à froid peut prendre ~2 min)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	client := &http.Client{Timeout: *timeout}
	base := strings.TrimRight(*baseURL, "/")

	switch args[0] {
	case "health":
		run(client, http.MethodGet, base+"/api/v1/health")
	case "version":
		run(client, http.MethodGet, base+"/api/v1/version")
	case "settings":
		run(client, http.MethodGet, base+"/api/v1/settings")
	case "program":
		run(client, http.MethodGet, base+"/api/v1/programs/"+slugArg(args))
	case "invalidate":
		run(client, http.MethodDelete, base+"/api/v1/programs/"+slugArg(args)+"/cache")
	case "feed":
		run(client, http.MethodGet, base+"/emission/"+slugArg(args)+"/podcast.xml")
	default:
		fmt.Fprintln(os.Stderr, "Commande inconnue:", args[0])
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: auvio [health|version|settings|program <chemin>|invalidate <chemin>|feed <chemin>]")
	os.Exit(2)
}

// slugArg accepte "/emission/x-1", "x-1" ou l'URL Auvio complète.
func slugArg(args []string) string {
	if len(args) < 2 {
		usage()
	}
	raw := args[1]
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		raw = u.Path
	}
	raw = strings.Trim(raw, "/")
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	return url.PathEscape(raw)
}

func run(client *http.Client, method, url string) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Erreur:", err)
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Erreur:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	var pretty any
	if err := json.Unmarshal(b, &pretty); err == nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(pretty)
		if resp.StatusCode >= 400 {
			os.Exit(1)
		}
		return
	}

	if resp.StatusCode == http.StatusNoContent {
		fmt.Println("OK")
		return
	}
	os.Stdout.Write(b)
	os.Stdout.Write([]byte("\n"))
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
