package app

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/domain"
)

// MediaList renvoie les épisodes de l'année en cours depuis le widget BFF.
func (p *ProgramPage) MediaList(ctx context.Context) ([]domain.Episode, error) {
	constants, err := p.AppConstants(ctx)
	if err != nil {
		return nil, err
	}
	identity, err := p.Identity(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"_page":              {"1"},
		"_limit":             {strconv.Itoa(mediaListPageSize)},
		"context[programId]": {p.programID},
		"context[year]":      {strconv.Itoa(p.client.now().Year())},
	}
	endpoint := p.client.endpoints.BFF + "/" + url.PathEscape(constants.Platform.APIVersion) + "/widgets/" + mediaListWidgetID + "?" + q.Encode()
	req, err := newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+identity.AccessToken)
	resp, err := p.client.do(req, "fetch media list")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Data *struct {
			Content []apiMedia `json:"content"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, extractionError("decode media list: %v", err)
	}
	if body.Data == nil {
		return nil, extractionError("media list response has no data")
	}

	episodes := make([]domain.Episode, 0, len(body.Data.Content))
	for i := range body.Data.Content {
		ep, err := body.Data.Content[i].toDomain()
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	p.logger.Info().Int("episodes", len(episodes)).Msg("media list fetched")
	return episodes, nil
}

// MediaURL résout l'URL de lecture d'un asset : premier format renvoyé par
// l'entitlement.
func (p *ProgramPage) MediaURL(ctx context.Context, assetID string) (string, error) {
	if strings.TrimSpace(assetID) == "" {
		return "", validationError("asset id is required")
	}
	sessionToken, err := p.SessionToken(ctx)
	if err != nil {
		return "", err
	}
	req, err := newRequest(ctx, http.MethodGet, p.client.endpoints.Exposure+"/entitlement/"+url.PathEscape(assetID)+"/play", nil)
	if err != nil {
		return "", err
	}
	setBrowserHeaders(req, p.client.endpoints.Site)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Authorization", "Bearer "+sessionToken)
	resp, err := p.client.do(req, "entitlement "+assetID)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Formats []struct {
			Format       string `json:"format"`
			MediaLocator string `json:"mediaLocator"`
		} `json:"formats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", networkError(err, "decode entitlement %s", assetID)
	}
	if len(body.Formats) == 0 {
		return "", networkError(nil, "entitlement %s returned no playback formats", assetID)
	}
	locator := strings.TrimSpace(body.Formats[0].MediaLocator)
	if locator == "" {
		return "", networkError(nil, "entitlement %s returned an empty media locator", assetID)
	}
	return locator, nil
}

// MediaEnclosure résout l'URL puis sonde le fichier sans le télécharger.
// Sans Content-Length sur HEAD, une requête Range d'un octet donne la taille
// via Content-Range.
func (p *ProgramPage) MediaEnclosure(ctx context.Context, assetID string) (domain.Enclosure, error) {
	mediaURL, err := p.MediaURL(ctx, assetID)
	if err != nil {
		return domain.Enclosure{}, err
	}

	req, err := newRequest(ctx, http.MethodHead, mediaURL, nil)
	if err != nil {
		return domain.Enclosure{}, err
	}
	resp, err := p.client.do(req, "probe media "+assetID)
	if err != nil {
		return domain.Enclosure{}, err
	}
	_ = resp.Body.Close()

	enclosure := domain.Enclosure{
		URL:         mediaURL,
		ContentType: mediaType(resp.Header.Get("Content-Type"), mediaURL),
		Length:      resp.ContentLength,
	}
	if enclosure.Length <= 0 {
		length, err := p.rangeProbe(ctx, mediaURL, assetID)
		if err != nil {
			return domain.Enclosure{}, err
		}
		enclosure.Length = length
	}
	if enclosure.ContentType == "" {
		return domain.Enclosure{}, extractionError("media %s has no content type", assetID)
	}
	p.logger.Debug().Str("asset_id", assetID).Int64("length", enclosure.Length).Msg("enclosure resolved")
	return enclosure, nil
}

func (p *ProgramPage) rangeProbe(ctx context.Context, mediaURL, assetID string) (int64, error) {
	req, err := newRequest(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := p.client.do(req, "range probe media "+assetID)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	_ = resp.Body.Close()

	// Content-Range: bytes 0-0/48213421
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if i := strings.LastIndexByte(cr, '/'); i >= 0 {
			if n, err := strconv.ParseInt(strings.TrimSpace(cr[i+1:]), 10, 64); err == nil && n > 0 {
				return n, nil
			}
		}
	}
	if resp.StatusCode == http.StatusOK && resp.ContentLength > 0 {
		return resp.ContentLength, nil
	}
	return 0, extractionError("media %s has no content length", assetID)
}

// mediaType normalise l'en-tête Content-Type, ou le devine depuis l'extension.
func mediaType(header, rawURL string) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil {
			return mt
		}
		return strings.TrimSpace(header)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case "":
		return ""
	default:
		mt := mime.TypeByExtension(ext)
		if mt == "" {
			return ""
		}
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			return base
		}
		return mt
	}
}
