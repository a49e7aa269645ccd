package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/ports"
)

// Namespaces du cache partagé.
const (
	NamespaceProgramData    = "programData"
	NamespaceMediaEnclosure = "mediaEnclosure"
)

// Memoizer met en cache des résultats coûteux entre requêtes.
//
// Pour une même clé, un seul calcul est en vol à la fois : les appelants
// concurrents attendent son résultat au lieu de relancer le pipeline.
type Memoizer struct {
	logger zerolog.Logger
	cache  ports.Cache
	group  singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight

	// FlightTimeout borne un calcul partagé, quel que soit le délai de ses appelants.
	FlightTimeout time.Duration
}

// flight porte le contexte d'un calcul partagé. Il n'est annulé que lorsque
// le dernier appelant qui l'attend abandonne.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

const defaultFlightTimeout = 2 * time.Minute

func NewMemoizer(logger zerolog.Logger, cache ports.Cache) *Memoizer {
	return &Memoizer{logger: logger, cache: cache, FlightTimeout: defaultFlightTimeout}
}

// Memoize lit namespace/key dans le cache, ou appelle produce puis enregistre
// le résultat avec ttl (<= 0 : sans expiration).
//
// La valeur renvoyée est toujours décodée depuis sa forme JSON : chaque
// appelant reçoit sa propre copie. produce garde les valeurs du contexte du
// premier appelant mais pas son annulation : un appelant annulé ne fait
// échouer que lui-même.
func Memoize[T any](ctx context.Context, m *Memoizer, namespace, key string, ttl time.Duration, produce func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if b, ok := m.lookup(ctx, namespace, key); ok {
		var out T
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		m.logger.Warn().Str("namespace", namespace).Str("key", key).Msg("corrupted cache entry, recomputing")
	}

	fk := flightKey(namespace, key)
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		f := m.join(ctx, fk)
		ch := m.group.DoChan(fk, func() (any, error) {
			defer m.retire(fk, f)
			return m.compute(f.ctx, namespace, key, ttl, func(ctx context.Context) (any, error) {
				return produce(ctx)
			})
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			m.leave(fk, f)
			return zero, ctx.Err()
		case res = <-ch:
			m.leave(fk, f)
		}
		if res.Err != nil {
			// Le calcul rejoint a été abandonné par tous ses autres appelants
			// avant qu'on s'y inscrive; ctx est valide, on en relance un.
			if errors.Is(res.Err, context.Canceled) && ctx.Err() == nil {
				continue
			}
			return zero, res.Err
		}
		var out T
		if err := json.Unmarshal(res.Val.([]byte), &out); err != nil {
			return zero, err
		}
		return out, nil
	}
}

func (m *Memoizer) compute(ctx context.Context, namespace, key string, ttl time.Duration, produce func(ctx context.Context) (any, error)) ([]byte, error) {
	// Un vol précédent a pu remplir le cache entre notre lecture et ici.
	if b, ok := m.lookup(ctx, namespace, key); ok && json.Valid(b) {
		return b, nil
	}
	v, err := produce(ctx)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		if err := m.cache.Put(ctx, namespace, key, b, ttl); err != nil {
			m.logger.Warn().Err(err).Str("namespace", namespace).Str("key", key).Msg("cache write failed")
		}
	}
	return b, nil
}

func flightKey(namespace, key string) string { return namespace + "\x00" + key }

// join inscrit un appelant sur le calcul en cours pour fk, ou en prépare un.
func (m *Memoizer) join(ctx context.Context, fk string) *flight {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flights == nil {
		m.flights = map[string]*flight{}
	}
	f, ok := m.flights[fk]
	if !ok {
		f = &flight{}
		detached := context.WithoutCancel(ctx)
		if m.FlightTimeout > 0 {
			f.ctx, f.cancel = context.WithTimeout(detached, m.FlightTimeout)
		} else {
			f.ctx, f.cancel = context.WithCancel(detached)
		}
		m.flights[fk] = f
	}
	f.waiters++
	return f
}

// leave désinscrit un appelant; le dernier parti annule le calcul s'il tourne encore.
func (m *Memoizer) leave(fk string, f *flight) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if m.flights[fk] == f {
		delete(m.flights, fk)
	}
}

// retire détache un calcul terminé : les appelants suivants en ouvrent un neuf.
func (m *Memoizer) retire(fk string, f *flight) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flights[fk] == f {
		delete(m.flights, fk)
	}
}

func (m *Memoizer) waiting(namespace, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flights[flightKey(namespace, key)]; ok {
		return f.waiters
	}
	return 0
}

// Forget supprime une entrée; la prochaine lecture recalculera.
func (m *Memoizer) Forget(ctx context.Context, namespace, key string) error {
	if m.cache == nil {
		return nil
	}
	return m.cache.Delete(ctx, namespace, key)
}

func (m *Memoizer) lookup(ctx context.Context, namespace, key string) ([]byte, bool) {
	if m.cache == nil {
		return nil, false
	}
	b, err := m.cache.Get(ctx, namespace, key)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			m.logger.Warn().Err(err).Str("namespace", namespace).Str("key", key).Msg("cache read failed")
		}
		return nil, false
	}
	return b, true
}
