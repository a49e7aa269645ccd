package app

import "sync"

// stageMemo est la table des résultats d'étapes d'une ProgramPage.
// Chaque clé est calculée au plus une fois; les appels concurrents sur la même
// clé attendent le premier calcul. L'erreur est mémorisée comme la valeur :
// une étape en échec n'est pas rejouée pendant la session.
type stageMemo struct {
	mu      sync.Mutex
	entries map[string]*stageEntry
}

type stageEntry struct {
	mu   sync.Mutex
	done bool
	val  any
	err  error
}

func (m *stageMemo) entry(key string) *stageEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]*stageEntry{}
	}
	e, ok := m.entries[key]
	if !ok {
		e = &stageEntry{}
		m.entries[key] = e
	}
	return e
}

func (m *stageMemo) has(key string) bool {
	e := m.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// remember renvoie la valeur mémorisée pour key, ou la calcule avec compute.
// compute peut lui-même appeler remember sur d'autres clés (étapes amont).
func remember[T any](m *stageMemo, key string, compute func() (T, error)) (T, error) {
	e := m.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.done {
		e.val, e.err = compute()
		e.done = true
	}
	if e.err != nil {
		var zero T
		return zero, e.err
	}
	return e.val.(T), nil
}
