package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// Endpoints regroupe les hôtes des quatre services rencontrés par le pipeline.
// Surchargés dans les tests pour pointer vers un serveur local.
type Endpoints struct {
	// Site sert les pages HTML et les bundles Next.js.
	Site string
	// Login est le CIAM (Gigya) : bootstrap, login, getJWT.
	Login string
	// AuthService échange le JWT Gigya contre un jeton OAuth plateforme.
	AuthService string
	// BFF sert le catalogue (widgets paginés).
	BFF string
	// Exposure est le service d'entitlement (Red Bee).
	Exposure string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Site:        "https://auvio.rtbf.be",
		Login:       "https://login.auvio.rtbf.be",
		AuthService: "https://auth-service.rtbf.be",
		BFF:         "https://bff-service.rtbf.be/auvio",
		Exposure:    "https://exposure.api.redbee.live/v2/customer/RTBF/businessunit/Auvio",
	}
}

// Credentials du compte Auvio utilisé pour le login non interactif.
type Credentials struct {
	Email    string
	Password string
}

const (
	// Build du SDK Gigya, visible dans gigya.js (gigya.build.number).
	gigyaSDKBuild = "15703"
	gigyaSDK      = "js_latest"

	// Widget "épisodes" de la page émission.
	mediaListWidgetID = "18800"
	mediaListPageSize = 20

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
)

// AuvioClient porte ce qui est partagé par toutes les sessions du process :
// transport HTTP, endpoints, identifiants et identifiant d'appareil.
// Il ne garde aucun jeton : chaque ProgramPage refait sa poignée de main.
type AuvioClient struct {
	logger      zerolog.Logger
	client      *http.Client
	endpoints   Endpoints
	credentials Credentials
	deviceID    string
	now         func() time.Time
}

func NewAuvioClient(logger zerolog.Logger, credentials Credentials) *AuvioClient {
	return &AuvioClient{
		logger:      logger,
		client:      &http.Client{Timeout: 30 * time.Second},
		endpoints:   DefaultEndpoints(),
		credentials: credentials,
		deviceID:    uuid.NewString(),
		now:         time.Now,
	}
}

func (c *AuvioClient) WithEndpoints(e Endpoints) *AuvioClient {
	c.endpoints = Endpoints{
		Site:        strings.TrimRight(e.Site, "/"),
		Login:       strings.TrimRight(e.Login, "/"),
		AuthService: strings.TrimRight(e.AuthService, "/"),
		BFF:         strings.TrimRight(e.BFF, "/"),
		Exposure:    strings.TrimRight(e.Exposure, "/"),
	}
	return c
}

func (c *AuvioClient) WithHTTPClient(client *http.Client) *AuvioClient {
	if client != nil {
		c.client = client
	}
	return c
}

func (c *AuvioClient) WithClock(now func() time.Time) *AuvioClient {
	if now != nil {
		c.now = now
	}
	return c
}

func (c *AuvioClient) DeviceID() string { return c.deviceID }

var reProgramPath = regexp.MustCompile(`^/[^/?#]+/[^/?#]+-(\d+)$`)

// ParseProgramID extrait l'identifiant numérique final d'un chemin
// d'émission, ex: /emission/la-semaine-des-5-heures-1451 -> 1451.
func ParseProgramID(path string) (string, error) {
	m := reProgramPath.FindStringSubmatch(path)
	if m == nil {
		return "", validationError("invalid program path %q, expected format: /emission/name-of-program-1234", path)
	}
	return m[1], nil
}

// NewPage ouvre une session pour un chemin d'émission.
// La session vit le temps d'une requête et ne doit pas être réutilisée ensuite.
func (c *AuvioClient) NewPage(path string) (*ProgramPage, error) {
	id, err := ParseProgramID(path)
	if err != nil {
		return nil, err
	}
	sessionID := xid.New().String()
	return &ProgramPage{
		client:    c,
		path:      path,
		pageURL:   c.endpoints.Site + path,
		programID: id,
		logger: c.logger.With().
			Str("session_id", sessionID).
			Str("program_path", path).
			Logger(),
	}, nil
}

func setBrowserHeaders(req *http.Request, site string) {
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "fr-BE,fr;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Referer", site+"/")
	req.Header.Set("User-Agent", browserUserAgent)
}

// do exécute req et renvoie une erreur "network" si le transport échoue ou si
// le statut n'est pas 2xx. L'appelant ferme le corps en cas de succès.
func (c *AuvioClient) do(req *http.Request, stage string) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, networkError(err, "%s", stage)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Le corps aide au diagnostic (message d'erreur JSON en général).
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, networkError(&HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}, "%s", stage)
	}
	return resp, nil
}

// HTTPStatusError est la cause d'une erreur "network" due à un statut non 2xx.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

func newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return req, nil
}
