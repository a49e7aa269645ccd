package ports

import (
	"context"
	"time"
)

// Cache est le stockage clé/valeur partagé entre requêtes.
// Les valeurs sont du JSON opaque; Get renvoie ErrNotFound si l'entrée est
// absente ou expirée.
type Cache interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	// Put écrase l'entrée existante. ttl <= 0 signifie "sans expiration".
	Put(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
}
