package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Program est une émission listée sur la page d'accueil et gardée au chaud.
type Program struct {
	Path  string `yaml:"path" json:"path"`
	Title string `yaml:"title" json:"title"`
}

type Credentials struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type Config struct {
	Addr    string `yaml:"addr"`
	DBPath  string `yaml:"dbPath"`
	BaseURL string `yaml:"baseUrl"`

	Credentials Credentials `yaml:"credentials"`

	// PipelineTimeout borne une résolution complète d'émission.
	PipelineTimeout time.Duration `yaml:"pipelineTimeout"`
	// HTTPTimeout borne chaque appel HTTP sortant.
	HTTPTimeout time.Duration `yaml:"httpTimeout"`
	// Durées de vie du cache. 0 = sans expiration.
	ProgramTTL   time.Duration `yaml:"programTtl"`
	EnclosureTTL time.Duration `yaml:"enclosureTtl"`

	Programs []Program `yaml:"programs"`
}

var ErrMissingCredentials = errors.New("AUVIO_EMAIL and AUVIO_PASSWORD must be set")

// Default lit la configuration depuis l'environnement.
func Default() Config {
	addr := envOr("AUVIO_ADDR", "127.0.0.1:8080")
	return Config{
		Addr:    addr,
		DBPath:  envOr("AUVIO_DB_PATH", "auvio-podcast.db"),
		BaseURL: envOr("AUVIO_BASE_URL", "http://"+addr),
		Credentials: Credentials{
			Email:    os.Getenv("AUVIO_EMAIL"),
			Password: os.Getenv("AUVIO_PASSWORD"),
		},
		PipelineTimeout: durationOr("AUVIO_PIPELINE_TIMEOUT", 2*time.Minute),
		HTTPTimeout:     durationOr("AUVIO_HTTP_TIMEOUT", 30*time.Second),
		ProgramTTL:      durationOr("AUVIO_PROGRAM_TTL", 6*time.Hour),
		EnclosureTTL:    durationOr("AUVIO_ENCLOSURE_TTL", 24*time.Hour),
		Programs: []Program{
			{Path: "/emission/la-semaine-des-5-heures-1451", Title: "La semaine des 5 heures"},
		},
	}
}

// Load part de Default et applique le fichier YAML path par-dessus.
// Les clés absentes du fichier gardent la valeur de l'environnement.
func Load(path string) (Config, error) {
	c := Default()
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var file Config
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	c.overlay(file)
	for _, p := range c.Programs {
		if !strings.HasPrefix(p.Path, "/") {
			return Config{}, fmt.Errorf("program path %q must start with /", p.Path)
		}
	}
	return c, nil
}

func (c *Config) overlay(f Config) {
	if f.Addr != "" {
		c.Addr = f.Addr
	}
	if f.DBPath != "" {
		c.DBPath = f.DBPath
	}
	if f.BaseURL != "" {
		c.BaseURL = f.BaseURL
	}
	if f.Credentials.Email != "" {
		c.Credentials.Email = f.Credentials.Email
	}
	if f.Credentials.Password != "" {
		c.Credentials.Password = f.Credentials.Password
	}
	if f.PipelineTimeout > 0 {
		c.PipelineTimeout = f.PipelineTimeout
	}
	if f.HTTPTimeout > 0 {
		c.HTTPTimeout = f.HTTPTimeout
	}
	if f.ProgramTTL > 0 {
		c.ProgramTTL = f.ProgramTTL
	}
	if f.EnclosureTTL > 0 {
		c.EnclosureTTL = f.EnclosureTTL
	}
	if f.Programs != nil {
		c.Programs = f.Programs
	}
}

// Validate vérifie ce sans quoi le pipeline ne peut pas s'authentifier.
func (c Config) Validate() error {
	if c.Credentials.Email == "" || c.Credentials.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// ProgramPaths renvoie les chemins des émissions configurées.
func (c Config) ProgramPaths() []string {
	out := make([]string, 0, len(c.Programs))
	for _, p := range c.Programs {
		out = append(out, p.Path)
	}
	return out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
