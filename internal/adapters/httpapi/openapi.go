package httpapi

import (
	"net/http"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/httpjson"
)

// handleOpenAPI décrit l'API JSON et les flux.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	jsonOK := func(schemaRef string) map[string]any {
		return map[string]any{
			"description": "OK",
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": schemaRef},
				},
			},
		}
	}

	jsonErr := map[string]any{
		"description": "Error",
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/Error"},
			},
		},
	}

	slugParam := map[string]any{
		"name":        "slug",
		"in":          "path",
		"required":    true,
		"description": "Dernier segment du chemin Auvio, ex: la-semaine-des-5-heures-1451",
		"schema":      map[string]any{"type": "string"},
	}

	spec := map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "Auvio podcast API",
			"version": "v1",
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"OpenAPIDocument": map[string]any{
					"type":                 "object",
					"additionalProperties": true,
				},
				"Error": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": map[string]any{"type": "string"},
						"code":  map[string]any{"type": "string", "enum": []any{"validation", "network", "extraction", "auth", "timeout"}},
					},
					"required": []any{"error"},
				},
				"Health": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"status": map[string]any{"type": "string", "enum": []any{"ok", "degraded"}},
						"cache": map[string]any{
							"type":                 "object",
							"description":          "Entrées de cache par espace de noms.",
							"additionalProperties": map[string]any{"type": "integer"},
						},
						"resolutions": map[string]any{
							"type":        "object",
							"description": "Occupation du limiteur de résolutions d'enclosures.",
							"properties": map[string]any{
								"limit":     map[string]any{"type": "integer"},
								"inFlight":  map[string]any{"type": "integer"},
								"waiting":   map[string]any{"type": "integer"},
								"peak":      map[string]any{"type": "integer"},
								"completed": map[string]any{"type": "integer"},
								"failed":    map[string]any{"type": "integer"},
								"waitedMs":  map[string]any{"type": "integer"},
							},
						},
					},
					"required": []any{"status"},
				},
				"Settings": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"maxConcurrentResolutions": map[string]any{"type": "integer", "minimum": 1, "maximum": 16},
						"entitlementRatePerSecond": map[string]any{"type": "number", "minimum": 0},
						"warmIntervalMinutes":      map[string]any{"type": "integer", "minimum": 0},
					},
					"additionalProperties": false,
				},
				"Enclosure": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"url":    map[string]any{"type": "string"},
						"type":   map[string]any{"type": "string"},
						"length": map[string]any{"type": "integer", "format": "int64"},
					},
					"required": []any{"url", "type", "length"},
				},
				"Episode": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":            map[string]any{"type": "string"},
						"assetId":       map[string]any{"type": "string"},
						"title":         map[string]any{"type": "string"},
						"subtitle":      map[string]any{"type": "string"},
						"description":   map[string]any{"type": "string"},
						"path":          map[string]any{"type": "string"},
						"publishedFrom": map[string]any{"type": "string", "format": "date-time"},
						"duration":      map[string]any{"type": "integer", "description": "Secondes"},
						"imageUrl":      map[string]any{"type": "string"},
						"enclosure":     map[string]any{"$ref": "#/components/schemas/Enclosure"},
					},
					"required": []any{"id", "assetId"},
				},
				"Program": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":          map[string]any{"type": "string"},
						"title":       map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
						"path":        map[string]any{"type": "string"},
						"imageUrl":    map[string]any{"type": "string"},
						"category": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"id":    map[string]any{"type": "string"},
								"label": map[string]any{"type": "string"},
								"path":  map[string]any{"type": "string"},
							},
						},
						"episodes": map[string]any{
							"type":  "array",
							"items": map[string]any{"$ref": "#/components/schemas/Episode"},
						},
					},
					"required": []any{"id", "title", "path", "episodes"},
				},
			},
		},
		"paths": map[string]any{
			"/api/v1/health": map[string]any{
				"get": map[string]any{"responses": map[string]any{
					"200": jsonOK("#/components/schemas/Health"),
					"503": jsonOK("#/components/schemas/Health"),
				}},
			},
			"/api/v1/version": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/v1/openapi.json": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("#/components/schemas/OpenAPIDocument")}},
			},
			"/api/v1/events": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{
					"description": "SSE: program.resolving, program.resolved, program.failed, enclosure.resolved",
				}}},
			},
			"/api/v1/programs/{slug}": map[string]any{
				"parameters": []any{slugParam},
				"get": map[string]any{
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/Program"),
						"400": jsonErr,
						"502": jsonErr,
						"504": jsonErr,
					},
				},
			},
			"/api/v1/programs/{slug}/cache": map[string]any{
				"parameters": []any{slugParam},
				"delete": map[string]any{
					"responses": map[string]any{
						"204": map[string]any{"description": "Invalidé"},
						"400": jsonErr,
					},
				},
			},
			"/emission/{slug}/podcast.xml": map[string]any{
				"parameters": []any{slugParam},
				"get": map[string]any{
					"responses": map[string]any{
						"200": map[string]any{
							"description": "Flux RSS 2.0 (iTunes)",
							"content":     map[string]any{"application/rss+xml": map[string]any{}},
						},
						"304": map[string]any{"description": "If-None-Match"},
						"400": jsonErr,
						"502": jsonErr,
						"504": jsonErr,
					},
				},
			},
			"/api/v1/settings": map[string]any{
				"get": map[string]any{
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/Settings"),
						"500": jsonErr,
					},
				},
				"put": map[string]any{
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/Settings"},
							},
						},
					},
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/Settings"),
						"400": jsonErr,
						"500": jsonErr,
					},
				},
			},
		},
	}

	httpjson.Write(w, http.StatusOK, spec)
}
