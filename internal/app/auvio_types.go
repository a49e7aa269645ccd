package app

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/domain"
)

// Formes JSON des API Auvio (BFF et état Next.js). Seuls les champs utilisés
// sont décodés.

// flexString accepte un identifiant JSON sous forme de chaîne ou de nombre.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

type apiImage struct {
	XS string `json:"xs"`
	S  string `json:"s"`
	M  string `json:"m"`
	L  string `json:"l"`
	XL string `json:"xl"`
}

// largest renvoie la plus grande variante disponible.
func (i *apiImage) largest() string {
	if i == nil {
		return ""
	}
	for _, v := range []string{i.XL, i.L, i.M, i.S, i.XS} {
		if v != "" {
			return v
		}
	}
	return ""
}

type apiCategory struct {
	ID    flexString `json:"id"`
	Label string     `json:"label"`
	Path  string     `json:"path"`
}

type apiProgram struct {
	ID          flexString   `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Path        string       `json:"path"`
	Background  *apiImage    `json:"background"`
	Category    *apiCategory `json:"category"`
	Media       *apiMedia    `json:"media"`
	Content     []apiMedia   `json:"content"`
}

type apiMedia struct {
	ID            flexString `json:"id"`
	AssetID       flexString `json:"assetId"`
	Path          string     `json:"path"`
	Title         string     `json:"title"`
	Subtitle      string     `json:"subtitle"`
	Description   string     `json:"description"`
	PublishedFrom string     `json:"publishedFrom"`
	Duration      float64    `json:"duration"`
	Illustration  *apiImage  `json:"illustration"`
}

func (p *apiProgram) toDomain() (domain.Program, error) {
	out := domain.Program{
		ID:          string(p.ID),
		Title:       strings.TrimSpace(p.Title),
		Description: strings.TrimSpace(p.Description),
		Path:        p.Path,
		ImageURL:    p.Background.largest(),
	}
	if p.Category != nil {
		out.Category = domain.Category{ID: string(p.Category.ID), Label: p.Category.Label, Path: p.Category.Path}
	}
	// L'aperçu est effacé par l'orchestration : un aperçu illisible (direct
	// sans assetId, date invalide) n'invalide pas l'émission.
	if p.Media != nil {
		if preview, err := p.Media.toDomain(); err == nil {
			out.Preview = &preview
		}
	}
	return out, nil
}

func (m *apiMedia) toDomain() (domain.Episode, error) {
	if m.AssetID == "" {
		return domain.Episode{}, extractionError("media %s has no assetId", m.ID)
	}
	ep := domain.Episode{
		ID:          string(m.ID),
		AssetID:     string(m.AssetID),
		Title:       strings.TrimSpace(m.Title),
		Subtitle:    strings.TrimSpace(m.Subtitle),
		Description: strings.TrimSpace(m.Description),
		Path:        m.Path,
		Duration:    int(m.Duration),
		ImageURL:    m.Illustration.largest(),
	}
	if m.PublishedFrom != "" {
		t, err := time.Parse(time.RFC3339, m.PublishedFrom)
		if err != nil {
			return domain.Episode{}, extractionError("media %s: invalid publishedFrom %s", m.ID, strconv.Quote(m.PublishedFrom))
		}
		ep.PublishedFrom = t
	}
	return ep, nil
}
