package domain

import "time"

// Program est une émission Auvio telle que publiée dans un flux.
type Program struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	// Path est le chemin d'origine sur le site, ex: /emission/la-semaine-des-5-heures-1451
	Path     string `json:"path"`
	ImageURL string `json:"imageUrl,omitempty"`

	// Preview est l'épisode mis en avant par la page programme.
	// Il est vidé avant d'assembler la liste complète.
	Preview  *Episode  `json:"preview,omitempty"`
	Episodes []Episode `json:"episodes"`
}

type Category struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label,omitempty"`
	Path  string `json:"path,omitempty"`
}

type Episode struct {
	ID string `json:"id"`
	// AssetID identifie le média côté entitlement; c'est aussi la clé du cache d'enclosure.
	AssetID       string    `json:"assetId"`
	Title         string    `json:"title"`
	Subtitle      string    `json:"subtitle"`
	Description   string    `json:"description"`
	Path          string    `json:"path,omitempty"`
	PublishedFrom time.Time `json:"publishedFrom"`
	// Duration en secondes.
	Duration int    `json:"duration"`
	ImageURL string `json:"imageUrl,omitempty"`

	Enclosure *Enclosure `json:"enclosure,omitempty"`
}

// Enclosure est le média jouable résolu pour un épisode.
// Immuable une fois calculé.
type Enclosure struct {
	URL         string `json:"url"`
	ContentType string `json:"type"`
	Length      int64  `json:"length"`
}
