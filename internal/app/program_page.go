package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/domain"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/jslit"
)

const (
	// <script src="/_next/static/chunks/pages/_app-79e4a1675e42148c.js" defer=""></script>
	appScriptSelector = "script[src^='/_next/static/chunks/pages/_app-']"
	// <script id="__NEXT_DATA__" type="application/json">{...}</script>
	nextDataSelector = "#__NEXT_DATA__"
)

// Clés de la table d'étapes.
const (
	stageDocument     = "document"
	stageConstants    = "appConstants"
	stageBootstrap    = "bootstrapCookies"
	stageLogin        = "login"
	stageJWT          = "idToken"
	stageAccessToken  = "accessToken"
	stageIdentity     = "identity"
	stageSessionToken = "sessionToken"
)

// ProgramPage est la session de résolution d'une émission.
//
// Elle mémorise chaque étape (page HTML, scripts, constantes, poignée de main)
// pour sa propre durée de vie, qui est celle d'une requête. Les méthodes sont
// sûres en concurrence : la résolution des enclosures les appelle depuis
// plusieurs goroutines.
type ProgramPage struct {
	client    *AuvioClient
	logger    zerolog.Logger
	path      string
	pageURL   string
	programID string
	memo      stageMemo
}

func (p *ProgramPage) Path() string      { return p.path }
func (p *ProgramPage) ProgramID() string { return p.programID }

// AppConstants sont les constantes que le bundle Next.js injecte au runtime.
type AppConstants struct {
	Platform         PlatformConstants
	IdentityProvider IdentityProviderConstants
}

type PlatformConstants struct {
	APIVersion    string
	ClientID      string
	ClientSecret  string
	AuthServerURL string
	BFFServerURL  string
	UserAgent     string
}

type IdentityProviderConstants struct {
	APIKey     string
	DataCenter string
}

func (p *ProgramPage) document(ctx context.Context) (*goquery.Document, error) {
	return remember(&p.memo, stageDocument, func() (*goquery.Document, error) {
		req, err := newRequest(ctx, http.MethodGet, p.pageURL, nil)
		if err != nil {
			return nil, err
		}
		setBrowserHeaders(req, p.client.endpoints.Site)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

		resp, err := p.client.do(req, "fetch program page")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return nil, networkError(err, "read program page")
		}
		p.logger.Debug().Str("url", p.pageURL).Msg("program page fetched")
		return doc, nil
	})
}

// scriptContent renvoie le texte du premier <script> qui correspond à selector.
// Un script externe (attribut src) est téléchargé depuis le site; un script
// inline renvoie son contenu.
func (p *ProgramPage) scriptContent(ctx context.Context, selector string) (string, error) {
	return remember(&p.memo, "script:"+selector, func() (string, error) {
		doc, err := p.document(ctx)
		if err != nil {
			return "", err
		}
		script := doc.Find(selector).First()
		if script.Length() == 0 {
			return "", extractionError("no script found for selector: %s", selector)
		}
		src, ok := script.Attr("src")
		if !ok {
			return script.Text(), nil
		}

		base, err := url.Parse(p.client.endpoints.Site + "/")
		if err != nil {
			return "", err
		}
		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			return "", extractionError("invalid script src %q", src)
		}
		scriptURL := base.ResolveReference(ref).String()

		req, err := newRequest(ctx, http.MethodGet, scriptURL, nil)
		if err != nil {
			return "", err
		}
		setBrowserHeaders(req, p.client.endpoints.Site)
		resp, err := p.client.do(req, "fetch script")
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", networkError(err, "read script")
		}
		p.logger.Debug().Str("url", scriptURL).Int("bytes", len(b)).Msg("script fetched")
		return string(b), nil
	})
}

// AppConstants lit les objets RTBF et GIGYA du bundle _app sans l'exécuter.
func (p *ProgramPage) AppConstants(ctx context.Context) (AppConstants, error) {
	return remember(&p.memo, stageConstants, func() (AppConstants, error) {
		text, err := p.scriptContent(ctx, appScriptSelector)
		if err != nil {
			return AppConstants{}, err
		}
		return ParseAppConstants(text)
	})
}

// ParseAppConstants extrait les constantes d'un bundle. apiVersion (RTBF) et
// apiKey (GIGYA) sont obligatoires.
func ParseAppConstants(bundle string) (AppConstants, error) {
	rtbf, err := jslit.FindObject(bundle, "RTBF")
	if err != nil && !errors.Is(err, jslit.ErrNotFound) {
		return AppConstants{}, extractionError("parse RTBF constants: %v", err)
	}
	out := AppConstants{Platform: PlatformConstants{
		APIVersion:    jslit.String(rtbf, "apiVersion"),
		ClientID:      jslit.String(rtbf, "clientId"),
		ClientSecret:  jslit.String(rtbf, "clientSecret"),
		AuthServerURL: jslit.String(rtbf, "authServerUrl"),
		BFFServerURL:  jslit.String(rtbf, "bffServerUrl"),
		UserAgent:     jslit.String(rtbf, "userAgent"),
	}}
	if out.Platform.APIVersion == "" {
		return AppConstants{}, extractionError("could not find RTBF.apiVersion")
	}

	gigya, err := jslit.FindObject(bundle, "GIGYA")
	if err != nil && !errors.Is(err, jslit.ErrNotFound) {
		return AppConstants{}, extractionError("parse GIGYA constants: %v", err)
	}
	out.IdentityProvider = IdentityProviderConstants{
		APIKey:     jslit.String(gigya, "apiKey"),
		DataCenter: jslit.String(gigya, "dataCenter"),
	}
	if out.IdentityProvider.APIKey == "" {
		return AppConstants{}, extractionError("could not find GIGYA.apiKey")
	}
	return out, nil
}

// ProgramData lit les métadonnées de l'émission dans l'état initial que la
// page embarque (__NEXT_DATA__ -> props.pageProps.initialState, lui-même une
// chaîne JSON).
func (p *ProgramPage) ProgramData(ctx context.Context) (domain.Program, error) {
	text, err := p.scriptContent(ctx, nextDataSelector)
	if err != nil {
		return domain.Program{}, err
	}
	program, err := parseProgramData(text, p.path)
	if err != nil {
		return domain.Program{}, err
	}
	p.logger.Info().Str("title", program.Title).Msg("program data extracted")
	return program, nil
}

// La clé de requête RTK Query est construite à partir du chemin sans le slash initial.
func programQueryKey(path string) string {
	return fmt.Sprintf("page(%q)", strings.TrimPrefix(path, "/"))
}

func parseProgramData(nextDataText, path string) (domain.Program, error) {
	var nextData struct {
		Props struct {
			PageProps struct {
				InitialState json.RawMessage `json:"initialState"`
			} `json:"pageProps"`
		} `json:"props"`
	}
	if err := json.Unmarshal([]byte(nextDataText), &nextData); err != nil {
		return domain.Program{}, extractionError("parse __NEXT_DATA__: %v", err)
	}
	raw := nextData.Props.PageProps.InitialState
	if len(raw) == 0 || string(raw) == "null" {
		return domain.Program{}, extractionError("no initialState found in __NEXT_DATA__")
	}
	// initialState est normalement une chaîne contenant du JSON; on accepte aussi un objet.
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}

	var state struct {
		API struct {
			Queries map[string]struct {
				Data *struct {
					Data *struct {
						Content *apiProgram `json:"content"`
					} `json:"data"`
				} `json:"data"`
			} `json:"queries"`
		} `json:"api"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.Program{}, extractionError("parse initialState: %v", err)
	}

	key := programQueryKey(path)
	q, ok := state.API.Queries[key]
	if !ok {
		return domain.Program{}, extractionError("query %s not found in initialState", key)
	}
	if q.Data == nil || q.Data.Data == nil || q.Data.Data.Content == nil {
		return domain.Program{}, extractionError("query %s has no program content", key)
	}
	program, err := q.Data.Data.Content.toDomain()
	if err != nil {
		return domain.Program{}, err
	}
	program.Path = path
	return program, nil
}
