// Package feed sérialise une émission résolue en flux RSS 2.0 podcast
// (balises iTunes comprises).
package feed

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"
	"unicode"

	"github.com/eduncan911/podcast"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/buildinfo"
	"github.com/Guilhem-Bonnet/auvio-podcast/internal/domain"
)

const (
	author      = "RTBF"
	ownerEmail  = "podcast@rtbf.be"
	copyright   = "Copyright: (C)RTBF Radio, Television Belge Francophone, plus d'infos: https://www.rtbf.be/cgu/"
	defaultSite = "https://auvio.rtbf.be"
)

var ErrNoEnclosure = errors.New("episode has no enclosure")

type Options struct {
	// BaseURL est l'URL publique du gateway (lien du canal et atom:link).
	BaseURL string
	// SiteURL préfixe les liens et GUID des épisodes. Défaut : https://auvio.rtbf.be.
	SiteURL string
	// Now date lastBuildDate. Défaut : time.Now.
	Now func() time.Time
}

// Build produit le document RSS de program. Chaque épisode doit porter son
// enclosure : un flux partiel n'est jamais produit.
func Build(program domain.Program, opts Options) ([]byte, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	site := strings.TrimRight(opts.SiteURL, "/")
	if site == "" {
		site = defaultSite
	}
	base := strings.TrimRight(opts.BaseURL, "/")

	title := cleanText(program.Title)
	description := cleanText(program.Description)
	if description == "" {
		description = title
	}
	built := now().UTC()
	var pubDate *time.Time
	if len(program.Episodes) > 0 && !program.Episodes[0].PublishedFrom.IsZero() {
		t := program.Episodes[0].PublishedFrom.UTC()
		pubDate = &t
	}

	p := podcast.New(title, base+program.Path, description, pubDate, &built)
	p.Language = "fr"
	p.Copyright = copyright
	p.Generator = buildinfo.Generator()
	p.IExplicit = "no"
	p.AddAuthor(author, ownerEmail)
	p.IOwner = &podcast.Author{Name: author, Email: ownerEmail}
	p.AddSummary(description)
	p.AddAtomLink(base + program.Path + "/podcast.xml")
	if program.ImageURL != "" {
		p.AddImage(program.ImageURL)
	}
	if label := cleanText(program.Category.Label); label != "" {
		p.AddCategory(label, nil)
	}

	for _, ep := range program.Episodes {
		item, err := buildItem(ep, site, program.ImageURL)
		if err != nil {
			return nil, err
		}
		if _, err := p.AddItem(item); err != nil {
			return nil, fmt.Errorf("episode %s: %w", ep.AssetID, err)
		}
	}

	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode feed: %w", err)
	}
	return buf.Bytes(), nil
}

func buildItem(ep domain.Episode, site, fallbackImage string) (podcast.Item, error) {
	if ep.Enclosure == nil {
		return podcast.Item{}, fmt.Errorf("episode %s: %w", ep.AssetID, ErrNoEnclosure)
	}
	kind, err := enclosureType(ep.Enclosure.ContentType)
	if err != nil {
		return podcast.Item{}, fmt.Errorf("episode %s: %w", ep.AssetID, err)
	}

	link := site + ep.Path
	title := cleanText(ep.Subtitle)
	if title == "" {
		title = cleanText(ep.Title)
	}
	description := cleanText(ep.Description)
	if description == "" {
		description = cleanText(ep.Subtitle)
	}
	if description == "" {
		description = title
	}

	item := podcast.Item{
		Title:       title,
		Link:        link,
		Description: description,
		GUID:        link,
	}
	if !ep.PublishedFrom.IsZero() {
		t := ep.PublishedFrom.UTC()
		item.AddPubDate(&t)
	}
	if ep.Duration > 0 {
		item.AddDuration(int64(ep.Duration))
	}
	switch {
	case ep.ImageURL != "":
		item.AddImage(ep.ImageURL)
	case fallbackImage != "":
		item.AddImage(fallbackImage)
	}
	item.AddEnclosure(ep.Enclosure.URL, kind, ep.Enclosure.Length)
	return item, nil
}

// enclosureType associe un Content-Type au type d'enclosure du flux.
func enclosureType(contentType string) (podcast.EnclosureType, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mt {
	case "audio/mpeg", "audio/mp3", "audio/mpeg3":
		return podcast.MP3, nil
	case "audio/mp4", "audio/x-m4a", "audio/m4a", "audio/aac":
		return podcast.M4A, nil
	case "video/mp4":
		return podcast.MP4, nil
	case "video/x-m4v":
		return podcast.M4V, nil
	case "video/quicktime":
		return podcast.MOV, nil
	default:
		return 0, fmt.Errorf("unsupported enclosure type %q", contentType)
	}
}

// cleanText normalise en NFC, retire les caractères de contrôle (hors \n et
// \t) et les blancs de bord.
func cleanText(s string) string {
	// Un transform.Chain garde un état : une instance par appel.
	t := transform.Chain(norm.NFC, runes.Remove(runes.Predicate(func(r rune) bool {
		return unicode.IsControl(r) && r != '\n' && r != '\t'
	})))
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	return strings.TrimSpace(s)
}
