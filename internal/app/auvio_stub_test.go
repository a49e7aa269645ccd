package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const (
	stubProgramPath  = "/emission/la-semaine-des-5-heures-1451"
	stubProgramTitle = "La semaine des 5 heures"
	stubAppScript    = "/_next/static/chunks/pages/_app-79e4a1675e42148c.js"

	stubBundle = `(self.webpackChunk_N_E=self.webpackChunk_N_E||[]).push([[2888],{9090:function(e,t,n){"use strict";` +
		`var r={NODE_ENV:"production",RTBF:{apiVersion:"v1.22",authServerUrl:"https://auth-service.rtbf.be",bffServerUrl:"https://bff-service.rtbf.be",clientId:"client-abc",clientSecret:"secret-xyz",userAgent:"AuvioWeb/1.0"},` +
		`GIGYA:{dataCenter:"eu1",apiKey:"4_testkey"},X_RTBF:{enabled:!0}};t.Z=r}}]);`
)

// auvioStub simule le site, le CIAM, l'auth-service, le BFF et l'entitlement
// sur un seul serveur de test.
type auvioStub struct {
	t   *testing.T
	srv *httptest.Server

	episodes       int
	loginErrorCode int
	noFormats      map[string]bool
	noHeadLength   bool

	// Réponses 200 auxquelles il manque le jeton attendu.
	omitIDToken      bool
	omitAccessToken  bool
	omitSessionToken bool

	mu      sync.Mutex
	calls   []string
	forms   map[string]url.Values
	headers map[string]http.Header
	bodies  map[string]string
	hits    map[string]int
}

func newAuvioStub(t *testing.T, episodes int) *auvioStub {
	t.Helper()
	s := &auvioStub{
		t:         t,
		episodes:  episodes,
		noFormats: map[string]bool{},
		forms:     map[string]url.Values{},
		headers:   map[string]http.Header{},
		bodies:    map[string]string{},
		hits:      map[string]int{},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *auvioStub) endpoints() Endpoints {
	return Endpoints{
		Site:        s.srv.URL,
		Login:       s.srv.URL + "/login",
		AuthService: s.srv.URL + "/auth",
		BFF:         s.srv.URL + "/bff",
		Exposure:    s.srv.URL + "/exposure",
	}
}

func (s *auvioStub) client() *AuvioClient {
	return NewAuvioClient(zerolog.Nop(), Credentials{Email: "jane@example.com", Password: "hunter2"}).
		WithEndpoints(s.endpoints()).
		WithClock(func() time.Time { return time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC) })
}

func (s *auvioStub) record(stage string, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, stage)
	s.hits[stage]++
	s.headers[stage] = r.Header.Clone()
	s.bodies[stage] = string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		form, _ := url.ParseQuery(string(body))
		s.forms[stage] = form
	}
}

func (s *auvioStub) callsSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *auvioStub) hitCount(stage string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[stage]
}

func (s *auvioStub) form(stage string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forms[stage]
}

func (s *auvioStub) body(stage string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[stage]
}

func (s *auvioStub) header(stage string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[stage]
}

func (s *auvioStub) serve(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	switch {
	case r.Method == http.MethodGet && p == stubProgramPath:
		s.record("page", r)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, stubPageHTML(s.t))

	case r.Method == http.MethodGet && p == stubAppScript:
		s.record("script", r)
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = io.WriteString(w, stubBundle)

	case r.Method == http.MethodGet && p == "/login/accounts.webSdkBootstrap":
		s.record("bootstrap", r)
		http.SetCookie(w, &http.Cookie{Name: "gmid", Value: "gmid-1", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "ucid", Value: "ucid-1", Path: "/"})
		writeJSON(w, `{"callId":"c1","errorCode":0,"statusCode":200,"statusReason":"OK"}`)

	case r.Method == http.MethodPost && p == "/login/accounts.login":
		s.record("login", r)
		if s.loginErrorCode != 0 {
			writeJSON(w, fmt.Sprintf(`{"errorCode":%d,"statusCode":403,"statusReason":"Forbidden","errorDetails":"invalid loginID or password"}`, s.loginErrorCode))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "ucid", Value: "ucid-2", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "glt_4_testkey", Value: "login-token", Path: "/"})
		writeJSON(w, `{"errorCode":0,"statusCode":200,"sessionInfo":{"login_token":"login-token"}}`)

	case r.Method == http.MethodPost && p == "/login/accounts.getJWT":
		s.record("jwt", r)
		if s.omitIDToken {
			writeJSON(w, `{"errorCode":0}`)
			return
		}
		writeJSON(w, `{"errorCode":0,"id_token":"id-token"}`)

	case r.Method == http.MethodPost && p == "/auth/oauth/v1/token":
		s.record("token", r)
		if s.omitAccessToken {
			writeJSON(w, `{"token_type":"Bearer","expires_in":3600}`)
			return
		}
		writeJSON(w, `{"access_token":"access-token","token_type":"Bearer","expires_in":3600}`)

	case r.Method == http.MethodPost && p == "/exposure/auth/gigyaLogin":
		s.record("session", r)
		if s.omitSessionToken {
			writeJSON(w, `{"expirationDateTime":"2024-03-15T10:00:00Z"}`)
			return
		}
		writeJSON(w, `{"sessionToken":"session-token","expirationDateTime":"2024-03-15T10:00:00Z"}`)

	case r.Method == http.MethodGet && p == "/bff/v1.22/widgets/18800":
		s.record("medialist", r)
		if r.Header.Get("Authorization") != "Bearer access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, s.mediaListJSON())

	case r.Method == http.MethodGet && strings.HasPrefix(p, "/exposure/entitlement/"):
		s.record("entitlement", r)
		if r.Header.Get("Authorization") != "Bearer session-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		asset := strings.TrimSuffix(strings.TrimPrefix(p, "/exposure/entitlement/"), "/play")
		if s.noFormats[asset] {
			writeJSON(w, `{"formats":[]}`)
			return
		}
		writeJSON(w, fmt.Sprintf(`{"formats":[{"format":"MP3","mediaLocator":%q}]}`, s.srv.URL+"/media/"+asset+".mp3"))

	case strings.HasPrefix(p, "/media/"):
		if r.Method == http.MethodHead {
			s.record("head", r)
			w.Header().Set("Content-Type", "audio/mpeg")
			if !s.noHeadLength {
				w.Header().Set("Content-Length", "12345")
			}
			return
		}
		s.record("range", r)
		if r.Header.Get("Range") != "bytes=0-0" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Range", "bytes 0-0/54321")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte{0xff})

	default:
		http.NotFound(w, r)
	}
}

func (s *auvioStub) mediaListJSON() string {
	content := make([]map[string]any, 0, s.episodes)
	for i := 0; i < s.episodes; i++ {
		content = append(content, map[string]any{
			"resourceType":  "MEDIA",
			"id":            3100000 + i,
			"assetId":       fmt.Sprintf("asset-%d", i),
			"path":          fmt.Sprintf("/media/la-semaine-des-5-heures-%d", 3100000+i),
			"title":         stubProgramTitle,
			"subtitle":      fmt.Sprintf("  Episode %d ", i),
			"description":   "",
			"publishedFrom": fmt.Sprintf("2024-03-%02dT06:00:00+01:00", i%28+1),
			"duration":      3300,
		})
	}
	b, _ := json.Marshal(map[string]any{"status": 200, "data": map[string]any{"content": content}})
	return string(b)
}

func stubPageHTML(t *testing.T) string {
	return `<!DOCTYPE html><html lang="fr"><head><meta charset="utf-8"/>` +
		`<script src="` + stubAppScript + `" defer=""></script></head>` +
		`<body><div id="__next"></div><script id="__NEXT_DATA__" type="application/json">` + stubNextData(t) + `</script></body></html>`
}

func stubNextData(t *testing.T) string {
	t.Helper()
	state := map[string]any{
		"api": map[string]any{
			"queries": map[string]any{
				`page("emission/la-semaine-des-5-heures-1451")`: map[string]any{
					"status": "fulfilled",
					"data": map[string]any{
						"status": 200,
						"data": map[string]any{
							"id":       "program-1451",
							"pageType": "PROGRAM",
							"content": map[string]any{
								"pageType":    "PROGRAM",
								"id":          1451,
								"title":       stubProgramTitle,
								"description": "Le magazine du week-end.",
								"path":        "/emission/la-semaine-des-5-heures-1451",
								"background":  map[string]any{"xs": "https://ds.static.rtbf.be/xs.jpg", "xl": "https://ds.static.rtbf.be/xl.jpg"},
								"category":    map[string]any{"id": 37, "label": "Info", "path": "/categorie/info-37"},
								"media": map[string]any{
									"id":      3099999,
									"assetId": "asset-preview",
									"title":   "preview",
								},
							},
						},
					},
				},
			},
		},
	}
	encodedState, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	next, err := json.Marshal(map[string]any{
		"props": map[string]any{
			"pageProps": map[string]any{"initialState": string(encodedState)},
		},
		"page": "/emission/[slug]",
	})
	if err != nil {
		t.Fatalf("marshal next data: %v", err)
	}
	return string(next)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}
