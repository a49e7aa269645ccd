package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseProgramID(t *testing.T) {
	valid := map[string]string{
		"/emission/la-semaine-des-5-heures-1451": "1451",
		"/emission/x-1":                          "1",
		"/podcast/le-grand-cactus-00042":         "00042",
		"/emission/jam-2024-18925":               "18925",
	}
	for path, want := range valid {
		got, err := ParseProgramID(path)
		if err != nil {
			t.Fatalf("ParseProgramID(%q): %v", path, err)
		}
		if got != want {
			t.Fatalf("ParseProgramID(%q) = %q, want %q", path, got, want)
		}
	}

	invalid := []string{
		"",
		"/",
		"/emission/",
		"/emission/la-semaine",
		"/emission/la-semaine-1451/",
		"/emission/la-semaine-1451?x=1",
		"emission/la-semaine-1451",
		"/a/b/c-12",
		"/emission/1451",
		"https://auvio.rtbf.be/emission/la-semaine-1451",
	}
	for _, path := range invalid {
		if _, err := ParseProgramID(path); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseProgramID(%q): expected validation error, got %v", path, err)
		}
	}
}

func TestParseAppConstants(t *testing.T) {
	c, err := ParseAppConstants(stubBundle)
	if err != nil {
		t.Fatalf("ParseAppConstants: %v", err)
	}
	if c.Platform.APIVersion != "v1.22" {
		t.Fatalf("apiVersion = %q", c.Platform.APIVersion)
	}
	if c.IdentityProvider.APIKey != "4_testkey" {
		t.Fatalf("apiKey = %q", c.IdentityProvider.APIKey)
	}
	if c.Platform.ClientID != "client-abc" || c.Platform.ClientSecret != "secret-xyz" {
		t.Fatalf("unexpected client credentials: %+v", c.Platform)
	}
	if c.IdentityProvider.DataCenter != "eu1" {
		t.Fatalf("dataCenter = %q", c.IdentityProvider.DataCenter)
	}
}

func TestParseAppConstants_MissingFields(t *testing.T) {
	cases := map[string]string{
		"no RTBF":        `var r={GIGYA:{apiKey:"4_k"}};`,
		"no apiVersion":  `var r={RTBF:{clientId:"c"},GIGYA:{apiKey:"4_k"}};`,
		"no GIGYA":       `var r={RTBF:{apiVersion:"v1.22"}};`,
		"no apiKey":      `var r={RTBF:{apiVersion:"v1.22"},GIGYA:{dataCenter:"eu1"}};`,
		"empty bundle":   ``,
		"code in object": `var r={RTBF:{apiVersion:n.version},GIGYA:{apiKey:"4_k"}};`,
	}
	for name, bundle := range cases {
		if _, err := ParseAppConstants(bundle); !errors.Is(err, ErrExtraction) {
			t.Fatalf("%s: expected extraction error, got %v", name, err)
		}
	}
}

func TestProgramPage_ProgramData(t *testing.T) {
	stub := newAuvioStub(t, 0)
	page, err := stub.client().NewPage(stubProgramPath)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	program, err := page.ProgramData(context.Background())
	if err != nil {
		t.Fatalf("ProgramData: %v", err)
	}
	if program.Title != stubProgramTitle {
		t.Fatalf("title = %q", program.Title)
	}
	if program.ID != "1451" || program.Path != stubProgramPath {
		t.Fatalf("unexpected id/path: %q %q", program.ID, program.Path)
	}
	if program.Category.Label != "Info" || program.Category.ID != "37" {
		t.Fatalf("unexpected category: %+v", program.Category)
	}
	if program.ImageURL != "https://ds.static.rtbf.be/xl.jpg" {
		t.Fatalf("image = %q", program.ImageURL)
	}
	if program.Preview == nil || program.Preview.AssetID != "asset-preview" {
		t.Fatalf("expected embedded preview, got %+v", program.Preview)
	}

	// La page n'est téléchargée qu'une fois par session.
	if _, err := page.AppConstants(context.Background()); err != nil {
		t.Fatalf("AppConstants: %v", err)
	}
	if n := stub.hitCount("page"); n != 1 {
		t.Fatalf("expected 1 page fetch, got %d", n)
	}
	if !page.memo.has(stageDocument) || !page.memo.has(stageConstants) {
		t.Fatalf("expected document and constants to be memoized")
	}
}

func TestProgramPage_ProgramData_MissingQuery(t *testing.T) {
	_, err := parseProgramData(`{"props":{"pageProps":{"initialState":"{\"api\":{\"queries\":{}}}"}}}`, stubProgramPath)
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	_, err = parseProgramData(`{"props":{"pageProps":{}}}`, stubProgramPath)
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected extraction error for missing initialState, got %v", err)
	}
}

func TestProgramPage_ProgramData_UnreadablePreviewIsSkipped(t *testing.T) {
	next := `{"props":{"pageProps":{"initialState":{"api":{"queries":{` +
		`"page(\"emission/la-semaine-des-5-heures-1451\")":{"data":{"data":{"content":{` +
		`"id":1451,"title":"La semaine des 5 heures","path":"/emission/la-semaine-des-5-heures-1451",` +
		`"media":{"id":9,"title":"live"}}}}}}}}}}}`

	program, err := parseProgramData(next, stubProgramPath)
	if err != nil {
		t.Fatalf("parseProgramData: %v", err)
	}
	if program.Title != stubProgramTitle || program.ID != "1451" {
		t.Fatalf("unexpected program: %+v", program)
	}
	if program.Preview != nil {
		t.Fatalf("expected preview to be dropped, got %+v", program.Preview)
	}

	withBadDate := strings.Replace(next, `"title":"live"`, `"assetId":"a-9","publishedFrom":"hier"`, 1)
	program, err = parseProgramData(withBadDate, stubProgramPath)
	if err != nil {
		t.Fatalf("parseProgramData (bad date): %v", err)
	}
	if program.Preview != nil {
		t.Fatalf("expected preview with bad date to be dropped, got %+v", program.Preview)
	}
}

func TestProgramPage_HandshakeOrderAndBodies(t *testing.T) {
	stub := newAuvioStub(t, 0)
	client := stub.client()
	page, err := client.NewPage(stubProgramPath)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	token, err := page.SessionToken(context.Background())
	if err != nil {
		t.Fatalf("SessionToken: %v", err)
	}
	if token != "session-token" {
		t.Fatalf("session token = %q", token)
	}
	// Deuxième appel : tout vient de la table d'étapes.
	if _, err := page.SessionToken(context.Background()); err != nil {
		t.Fatalf("SessionToken (2): %v", err)
	}

	want := []string{"page", "script", "bootstrap", "login", "jwt", "token", "session"}
	if got := stub.callsSnapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}

	pageURL := stub.srv.URL + stubProgramPath

	login := stub.form("login")
	if login.Get("loginID") != "jane@example.com" || login.Get("password") != "hunter2" {
		t.Fatalf("unexpected login credentials: %v", login)
	}
	if login.Get("APIKey") != "4_testkey" || login.Get("pageURL") != pageURL || login.Get("sdkBuild") != "15703" {
		t.Fatalf("unexpected login form: %v", login)
	}
	if login.Get("targetEnv") != "jssdk" || login.Get("sessionExpiration") != "-2" {
		t.Fatalf("unexpected login form: %v", login)
	}
	if got := stub.header("login").Get("Cookie"); got != "gmid=gmid-1; ucid=ucid-1" {
		t.Fatalf("login cookie = %q", got)
	}

	jwt := stub.form("jwt")
	if jwt.Get("login_token") != "login-token" || jwt.Get("fields") != "email" || jwt.Get("APIKey") != "4_testkey" {
		t.Fatalf("unexpected getJWT form: %v", jwt)
	}
	// Les cookies du login remplacent ceux du bootstrap.
	if got := stub.header("jwt").Get("Cookie"); got != "glt_4_testkey=login-token; gmid=gmid-1; ucid=ucid-2" {
		t.Fatalf("getJWT cookie = %q", got)
	}

	tok := stub.form("token")
	if tok.Get("grant_type") != "gigya" || tok.Get("token") != "id-token" || tok.Get("scope") != "visitor" {
		t.Fatalf("unexpected token form: %v", tok)
	}
	if tok.Get("client_id") != "client-abc" || tok.Get("client_secret") != "secret-xyz" || tok.Get("platform") != "WEB" {
		t.Fatalf("unexpected token form: %v", tok)
	}
	if tok.Get("device_id") != client.DeviceID() {
		t.Fatalf("device_id = %q, want %q", tok.Get("device_id"), client.DeviceID())
	}

	session := stub.body("session")
	if !strings.Contains(session, `"jwt":"id-token"`) || !strings.Contains(session, `"deviceId":"`+client.DeviceID()+`"`) {
		t.Fatalf("unexpected gigyaLogin body: %s", session)
	}
	if ct := stub.header("session").Get("Content-Type"); ct != "application/json" {
		t.Fatalf("gigyaLogin content type = %q", ct)
	}

	identity, err := page.Identity(context.Background())
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if identity.AccessToken != "access-token" || identity.IDToken != "id-token" || identity.LoginToken != "login-token" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestProgramPage_LoginErrorIsAuthError(t *testing.T) {
	stub := newAuvioStub(t, 1)
	stub.loginErrorCode = 403042
	page, err := stub.client().NewPage(stubProgramPath)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	_, err = page.MediaList(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid loginID or password") {
		t.Fatalf("expected provider reason in error, got %v", err)
	}
	if n := stub.hitCount("jwt"); n != 0 {
		t.Fatalf("getJWT must not run after a failed login, got %d calls", n)
	}
	if n := stub.hitCount("login"); n != 1 {
		t.Fatalf("login must not be retried, got %d calls", n)
	}
}

func TestProgramPage_MissingTokenIsExtractionError(t *testing.T) {
	cases := []struct {
		name      string
		configure func(*auvioStub)
		failed    string
		next      string
	}{
		{"no id_token", func(s *auvioStub) { s.omitIDToken = true }, "jwt", "token"},
		{"no access_token", func(s *auvioStub) { s.omitAccessToken = true }, "token", "session"},
		{"no sessionToken", func(s *auvioStub) { s.omitSessionToken = true }, "session", "entitlement"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := newAuvioStub(t, 1)
			tc.configure(stub)
			page, err := stub.client().NewPage(stubProgramPath)
			if err != nil {
				t.Fatalf("NewPage: %v", err)
			}

			_, err = page.MediaURL(context.Background(), "asset-0")
			if !errors.Is(err, ErrExtraction) {
				t.Fatalf("expected extraction error, got %v", err)
			}
			if n := stub.hitCount(tc.failed); n != 1 {
				t.Fatalf("%s: expected 1 call, got %d", tc.failed, n)
			}
			if n := stub.hitCount(tc.next); n != 0 {
				t.Fatalf("%s must not run, got %d calls", tc.next, n)
			}
		})
	}
}

func TestProgramPage_FailedStageIsNotReplayed(t *testing.T) {
	stub := newAuvioStub(t, 1)
	stub.omitSessionToken = true
	page, err := stub.client().NewPage(stubProgramPath)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = page.MediaURL(context.Background(), fmt.Sprintf("asset-%d", i))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrExtraction) {
			t.Fatalf("worker %d: expected extraction error, got %v", i, err)
		}
	}
	for _, stage := range []string{"login", "jwt", "token", "session"} {
		if n := stub.hitCount(stage); n != 1 {
			t.Fatalf("%s: expected 1 call, got %d", stage, n)
		}
	}
	if n := stub.hitCount("entitlement"); n != 0 {
		t.Fatalf("entitlement must not run, got %d calls", n)
	}
}

func TestProgramPage_MediaList(t *testing.T) {
	stub := newAuvioStub(t, 3)
	page, err := stub.client().NewPage(stubProgramPath)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	episodes, err := page.MediaList(context.Background())
	if err != nil {
		t.Fatalf("MediaList: %v", err)
	}
	if len(episodes) != 3 {
		t.Fatalf("expected 3 episodes, got %d", len(episodes))
	}
	if episodes[0].Subtitle != "Episode 0" || episodes[0].AssetID != "asset-0" || episodes[0].ID != "3100000" {
		t.Fatalf("unexpected first episode: %+v", episodes[0])
	}
	if episodes[0].PublishedFrom.IsZero() || episodes[0].Duration != 3300 {
		t.Fatalf("unexpected first episode: %+v", episodes[0])
	}

	h := stub.header("medialist")
	if h.Get("Authorization") != "Bearer access-token" {
		t.Fatalf("media list authorization = %q", h.Get("Authorization"))
	}
}

func TestProgramPage_MediaEnclosure(t *testing.T) {
	stub := newAuvioStub(t, 1)
	page, err := stub.client().NewPage(stubProgramPath)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	enc, err := page.MediaEnclosure(context.Background(), "asset-0")
	if err != nil {
		t.Fatalf("MediaEnclosure: %v", err)
	}
	if enc.URL != stub.srv.URL+"/media/asset-0.mp3" || enc.ContentType != "audio/mpeg" || enc.Length != 12345 {
		t.Fatalf("unexpected enclosure: %+v", enc)
	}
	if stub.hitCount("range") != 0 {
		t.Fatalf("range probe must not run when HEAD has a length")
	}
}

func TestProgramPage_MediaEnclosure_RangeFallback(t *testing.T) {
	stub := newAuvioStub(t, 1)
	stub.noHeadLength = true
	page, err := stub.client().NewPage(stubProgramPath)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	enc, err := page.MediaEnclosure(context.Background(), "asset-0")
	if err != nil {
		t.Fatalf("MediaEnclosure: %v", err)
	}
	if enc.Length != 54321 {
		t.Fatalf("expected length from Content-Range, got %d", enc.Length)
	}
}

func TestProgramPage_MediaEnclosure_NoFormats(t *testing.T) {
	stub := newAuvioStub(t, 1)
	stub.noFormats["asset-0"] = true
	page, err := stub.client().NewPage(stubProgramPath)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	enc, err := page.MediaEnclosure(context.Background(), "asset-0")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v (enclosure %+v)", err, enc)
	}
	if stub.hitCount("head") != 0 {
		t.Fatalf("no probe expected without a locator")
	}
}

func TestProgramPage_NonSuccessIsNetworkError(t *testing.T) {
	stub := newAuvioStub(t, 0)
	page, err := stub.client().NewPage("/emission/inconnue-404")
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	_, err = page.ProgramData(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	var status *HTTPStatusError
	if !errors.As(err, &status) || status.StatusCode != 404 {
		t.Fatalf("expected HTTPStatusError 404 in chain, got %v", err)
	}
}

func TestProgramService_EndToEnd(t *testing.T) {
	stub := newAuvioStub(t, 5)
	cache := newMemCache()
	svc := NewProgramService(zerolog.Nop(), stub.client(), NewMemoizer(zerolog.Nop(), cache), nil, NewDynamicLimiter(2), DefaultProgramServiceOptions())

	program, err := svc.Program(context.Background(), stubProgramPath)
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	if program.Title != stubProgramTitle {
		t.Fatalf("title = %q", program.Title)
	}
	if program.Preview != nil {
		t.Fatalf("preview must be cleared")
	}
	if len(program.Episodes) != 5 {
		t.Fatalf("expected 5 episodes, got %d", len(program.Episodes))
	}
	for i, ep := range program.Episodes {
		if ep.AssetID != "asset-"+string(rune('0'+i)) {
			t.Fatalf("episode %d out of catalog order: %s", i, ep.AssetID)
		}
		if ep.Enclosure == nil {
			t.Fatalf("episode %d has no enclosure", i)
		}
	}
	first := program.Episodes[0].Enclosure
	if !strings.Contains(first.URL, ".mp3") || first.Length <= 0 {
		t.Fatalf("unexpected first enclosure: %+v", first)
	}
	if got := stub.form("medialist"); got != nil {
		t.Fatalf("media list is a GET, got form %v", got)
	}

	if !cache.has(NamespaceProgramData, stubProgramPath) || !cache.has(NamespaceMediaEnclosure, "asset-4") {
		t.Fatalf("expected program and enclosures to be cached")
	}

	// Deuxième requête : nouvelle session, mais métadonnées et enclosures en cache.
	plays := stub.hitCount("entitlement")
	again, err := svc.Program(context.Background(), stubProgramPath)
	if err != nil {
		t.Fatalf("Program (2): %v", err)
	}
	if stub.hitCount("entitlement") != plays {
		t.Fatalf("cached enclosures must not hit entitlement again")
	}
	if stub.hitCount("login") != 2 {
		t.Fatalf("each session performs its own handshake, got %d logins", stub.hitCount("login"))
	}
	if !reflect.DeepEqual(again.Episodes[0].Enclosure, program.Episodes[0].Enclosure) {
		t.Fatalf("cached enclosure differs: %+v vs %+v", again.Episodes[0].Enclosure, program.Episodes[0].Enclosure)
	}
}

func TestProgramService_FailureIsTotal(t *testing.T) {
	stub := newAuvioStub(t, 4)
	stub.noFormats["asset-2"] = true
	svc := NewProgramService(zerolog.Nop(), stub.client(), nil, nil, NewDynamicLimiter(4), DefaultProgramServiceOptions())

	program, err := svc.Program(context.Background(), stubProgramPath)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if program.Title != "" || program.Episodes != nil {
		t.Fatalf("no partial program expected, got %+v", program)
	}
}

func TestProgramService_InvalidPath(t *testing.T) {
	stub := newAuvioStub(t, 0)
	svc := NewProgramService(zerolog.Nop(), stub.client(), nil, nil, nil, DefaultProgramServiceOptions())

	_, err := svc.Program(context.Background(), "/emission/sans-identifiant")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(stub.callsSnapshot()) != 0 {
		t.Fatalf("no network call expected for an invalid path")
	}
}

func TestProgramService_Deadline(t *testing.T) {
	stub := newAuvioStub(t, 1)
	opts := DefaultProgramServiceOptions()
	opts.Timeout = time.Nanosecond
	svc := NewProgramService(zerolog.Nop(), stub.client(), nil, nil, nil, opts)

	_, err := svc.Program(context.Background(), stubProgramPath)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestProgramService_PublishesEvents(t *testing.T) {
	stub := newAuvioStub(t, 2)
	bus := newRecordingBus()
	svc := NewProgramService(zerolog.Nop(), stub.client(), nil, bus, nil, DefaultProgramServiceOptions())

	if _, err := svc.Program(context.Background(), stubProgramPath); err != nil {
		t.Fatalf("Program: %v", err)
	}
	topics := bus.topics()
	if len(topics) != 4 || topics[0] != TopicProgramResolving || topics[3] != TopicProgramResolved {
		t.Fatalf("unexpected topics: %v", topics)
	}
	if topics[1] != TopicEnclosureResolved || topics[2] != TopicEnclosureResolved {
		t.Fatalf("unexpected topics: %v", topics)
	}
}
