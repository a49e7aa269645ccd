package jslit

import (
	"fmt"
	"regexp"
)

// FindObject repère la propriété `name: { ... }` dans un source JavaScript
// (typiquement un bundle minifié) et lit l'objet littéral qui suit.
//
// L'objet est délimité par la grammaire elle-même, pas par une regex, donc les
// objets imbriqués et les virgules finales sont gérés. La première occurrence
// lisible l'emporte.
func FindObject(src, name string) (map[string]any, error) {
	re, err := regexp.Compile(`(?:^|[^\w$.])["']?` + regexp.QuoteMeta(name) + `["']?\s*:\s*\{`)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, loc := range re.FindAllStringIndex(src, -1) {
		open := loc[1] - 1
		v, _, err := ParsePrefix(src[open:])
		if err != nil {
			lastErr = err
			continue
		}
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		return obj, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%s: %w", name, lastErr)
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

// String renvoie obj[key] sous forme de chaîne. Les nombres et booléens sont
// formatés, les valeurs absentes ou composées donnent "".
func String(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return ""
	}
}
