package app

import (
	"net/http"
	"sort"
	"strings"
)

// cookieJar est l'ensemble nom -> valeur transmis entre les étapes Gigya.
// Le CIAM attend les cookies du bootstrap (gmid, ucid, hasGmid...) sur le login.
type cookieJar map[string]string

func cookiesFromResponse(resp *http.Response) cookieJar {
	jar := cookieJar{}
	for _, c := range resp.Cookies() {
		jar[c.Name] = c.Value
	}
	return jar
}

// merge renvoie une nouvelle table; les valeurs de other l'emportent.
func (j cookieJar) merge(other cookieJar) cookieJar {
	out := make(cookieJar, len(j)+len(other))
	for k, v := range j {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// header sérialise la table pour un en-tête Cookie, triée par nom.
func (j cookieJar) header() string {
	names := make([]string, 0, len(j))
	for k := range j {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+"="+j[k])
	}
	return strings.Join(parts, "; ")
}
