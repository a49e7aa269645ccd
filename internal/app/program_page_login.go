package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// IdentityCredentials est le résultat de la poignée de main Gigya + OAuth.
// Les jetons ne sortent jamais de la session et ne sont jamais journalisés.
type IdentityCredentials struct {
	LoginCookies cookieJar
	LoginToken   string
	IDToken      string
	AccessToken  string
}

// gigyaStatus est l'enveloppe commune des réponses Gigya : HTTP 200 même en
// cas d'échec, le statut réel est dans errorCode.
type gigyaStatus struct {
	ErrorCode    int    `json:"errorCode"`
	StatusReason string `json:"statusReason"`
	ErrorMessage string `json:"errorMessage"`
	ErrorDetails string `json:"errorDetails"`
}

func (s gigyaStatus) reason() string {
	for _, v := range []string{s.ErrorDetails, s.ErrorMessage, s.StatusReason} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "unknown error"
}

type loginResult struct {
	cookies cookieJar
	token   string
}

func (p *ProgramPage) postForm(ctx context.Context, endpoint string, form url.Values, cookies cookieJar, stage string) (*http.Response, error) {
	req, err := newRequest(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	setBrowserHeaders(req, p.client.endpoints.Site)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if len(cookies) > 0 {
		req.Header.Set("Cookie", cookies.header())
	}
	return p.client.do(req, stage)
}

// bootstrapCookies ouvre une session SDK Gigya; seuls les cookies comptent.
func (p *ProgramPage) bootstrapCookies(ctx context.Context) (cookieJar, error) {
	return remember(&p.memo, stageBootstrap, func() (cookieJar, error) {
		constants, err := p.AppConstants(ctx)
		if err != nil {
			return nil, err
		}
		q := url.Values{
			"apiKey":   {constants.IdentityProvider.APIKey},
			"pageURL":  {p.pageURL},
			"sdk":      {gigyaSDK},
			"sdkBuild": {gigyaSDKBuild},
			"format":   {"json"},
		}
		req, err := newRequest(ctx, http.MethodGet, p.client.endpoints.Login+"/accounts.webSdkBootstrap?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		setBrowserHeaders(req, p.client.endpoints.Site)
		resp, err := p.client.do(req, "sdk bootstrap")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			return nil, networkError(err, "sdk bootstrap")
		}
		jar := cookiesFromResponse(resp)
		p.logger.Debug().Int("cookies", len(jar)).Msg("sdk bootstrapped")
		return jar, nil
	})
}

func (p *ProgramPage) login(ctx context.Context) (loginResult, error) {
	return remember(&p.memo, stageLogin, func() (loginResult, error) {
		constants, err := p.AppConstants(ctx)
		if err != nil {
			return loginResult{}, err
		}
		bootstrap, err := p.bootstrapCookies(ctx)
		if err != nil {
			return loginResult{}, err
		}
		creds := p.client.credentials
		form := url.Values{
			"loginID":           {creds.Email},
			"password":          {creds.Password},
			"sessionExpiration": {"-2"},
			"targetEnv":         {"jssdk"},
			"include":           {"profile,data"},
			"includeUserInfo":   {"true"},
			"lang":              {"fr"},
			"APIKey":            {constants.IdentityProvider.APIKey},
			"sdk":               {gigyaSDK},
			"authMode":          {"cookie"},
			"pageURL":           {p.pageURL},
			"sdkBuild":          {gigyaSDKBuild},
			"format":            {"json"},
		}
		resp, err := p.postForm(ctx, p.client.endpoints.Login+"/accounts.login", form, bootstrap, "login")
		if err != nil {
			return loginResult{}, err
		}
		defer resp.Body.Close()

		var body struct {
			gigyaStatus
			SessionInfo struct {
				LoginToken string `json:"login_token"`
			} `json:"sessionInfo"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return loginResult{}, extractionError("decode login response: %v", err)
		}
		if body.ErrorCode != 0 {
			p.logger.Warn().Int("error_code", body.ErrorCode).Msg("login rejected")
			return loginResult{}, authError("failed to login: %s", body.reason())
		}
		if body.SessionInfo.LoginToken == "" {
			return loginResult{}, extractionError("login response has no sessionInfo.login_token")
		}
		p.logger.Info().Msg("logged in")
		return loginResult{
			cookies: bootstrap.merge(cookiesFromResponse(resp)),
			token:   body.SessionInfo.LoginToken,
		}, nil
	})
}

// issueJWT demande au CIAM un id_token pour la session de login.
func (p *ProgramPage) issueJWT(ctx context.Context) (string, error) {
	return remember(&p.memo, stageJWT, func() (string, error) {
		constants, err := p.AppConstants(ctx)
		if err != nil {
			return "", err
		}
		lr, err := p.login(ctx)
		if err != nil {
			return "", err
		}
		form := url.Values{
			"fields":      {"email"},
			"APIKey":      {constants.IdentityProvider.APIKey},
			"sdk":         {gigyaSDK},
			"login_token": {lr.token},
			"authMode":    {"cookie"},
			"pageURL":     {p.pageURL},
			"sdkBuild":    {gigyaSDKBuild},
			"format":      {"json"},
		}
		resp, err := p.postForm(ctx, p.client.endpoints.Login+"/accounts.getJWT", form, lr.cookies, "get jwt")
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		var body struct {
			gigyaStatus
			IDToken string `json:"id_token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", extractionError("decode getJWT response: %v", err)
		}
		if body.ErrorCode != 0 {
			return "", authError("failed to get JWT: %s", body.reason())
		}
		if body.IDToken == "" {
			return "", extractionError("getJWT response has no id_token")
		}
		return body.IDToken, nil
	})
}

// exchangeToken échange l'id_token contre un jeton OAuth plateforme (scope visitor).
func (p *ProgramPage) exchangeToken(ctx context.Context) (string, error) {
	return remember(&p.memo, stageAccessToken, func() (string, error) {
		constants, err := p.AppConstants(ctx)
		if err != nil {
			return "", err
		}
		idToken, err := p.issueJWT(ctx)
		if err != nil {
			return "", err
		}
		form := url.Values{
			"grant_type":    {"gigya"},
			"client_id":     {constants.Platform.ClientID},
			"client_secret": {constants.Platform.ClientSecret},
			"platform":      {"WEB"},
			"device_id":     {p.client.deviceID},
			"token":         {idToken},
			"scope":         {"visitor"},
		}
		req, err := newRequest(ctx, http.MethodPost, p.client.endpoints.AuthService+"/oauth/v1/token", strings.NewReader(form.Encode()))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		resp, err := p.client.do(req, "token exchange")
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		var body struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
			ExpiresIn   int    `json:"expires_in"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", extractionError("decode token response: %v", err)
		}
		if body.AccessToken == "" {
			return "", extractionError("token response has no access_token")
		}
		p.logger.Debug().Int("expires_in", body.ExpiresIn).Msg("platform token issued")
		return body.AccessToken, nil
	})
}

// Identity déroule les quatre étapes dans l'ordre : bootstrap, login, getJWT,
// échange OAuth. Chaque étape n'est exécutée qu'une fois par session.
func (p *ProgramPage) Identity(ctx context.Context) (IdentityCredentials, error) {
	return remember(&p.memo, stageIdentity, func() (IdentityCredentials, error) {
		lr, err := p.login(ctx)
		if err != nil {
			return IdentityCredentials{}, err
		}
		idToken, err := p.issueJWT(ctx)
		if err != nil {
			return IdentityCredentials{}, err
		}
		accessToken, err := p.exchangeToken(ctx)
		if err != nil {
			return IdentityCredentials{}, err
		}
		return IdentityCredentials{
			LoginCookies: lr.cookies,
			LoginToken:   lr.token,
			IDToken:      idToken,
			AccessToken:  accessToken,
		}, nil
	})
}

// SessionToken ouvre une session sur le service d'entitlement avec l'id_token.
// C'est ce jeton, et non le jeton OAuth, qui autorise la lecture.
func (p *ProgramPage) SessionToken(ctx context.Context) (string, error) {
	return remember(&p.memo, stageSessionToken, func() (string, error) {
		identity, err := p.Identity(ctx)
		if err != nil {
			return "", err
		}
		payload, err := json.Marshal(map[string]any{
			"jwt": identity.IDToken,
			"device": map[string]string{
				"deviceId": p.client.deviceID,
				"name":     "Browser",
				"type":     "WEB",
			},
		})
		if err != nil {
			return "", err
		}
		req, err := newRequest(ctx, http.MethodPost, p.client.endpoints.Exposure+"/auth/gigyaLogin", bytes.NewReader(payload))
		if err != nil {
			return "", err
		}
		setBrowserHeaders(req, p.client.endpoints.Site)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		resp, err := p.client.do(req, "entitlement session login")
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		var body struct {
			SessionToken string `json:"sessionToken"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", extractionError("decode gigyaLogin response: %v", err)
		}
		if body.SessionToken == "" {
			return "", extractionError("gigyaLogin response has no sessionToken")
		}
		p.logger.Info().Msg("entitlement session opened")
		return body.SessionToken, nil
	})
}
