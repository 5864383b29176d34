package postgres

import (
	"context"
	"fmt"

	"github.com/mhornych/presence/internal/embedding"
	"github.com/mhornych/presence/internal/gallery"
	"github.com/pgvector/pgvector-go"
)

// AppendIdentity stores an identity (upsert). Re-enrolling replaces the
// embedding and refreshes the enrollment timestamp.
func (s *Store) AppendIdentity(ctx context.Context, identity gallery.Identity) error {
	query := `
		INSERT INTO identities (id, display_name, embedding, dim, enrolled_at)
		VALUES ($1, $2, $3::vector, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			enrolled_at = EXCLUDED.enrolled_at
	`

	vec := pgvector.NewVector(identity.Embedding)
	_, err := s.pool.Exec(ctx, query,
		identity.ID,
		identity.DisplayName,
		vec,
		len(identity.Embedding),
		identity.EnrolledAt,
	)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// RemoveIdentity deletes an identity. Missing IDs are ignored.
func (s *Store) RemoveIdentity(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM identities WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// LoadAllIdentities returns every stored identity ordered by enrollment time.
func (s *Store) LoadAllIdentities(ctx context.Context) ([]gallery.Identity, error) {
	query := `
		SELECT id, display_name, embedding, enrolled_at
		FROM identities
		ORDER BY enrolled_at, id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []gallery.Identity
	for rows.Next() {
		var identity gallery.Identity
		var vec pgvector.Vector

		if err := rows.Scan(
			&identity.ID,
			&identity.DisplayName,
			&vec,
			&identity.EnrolledAt,
		); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}

		identity.Embedding = embedding.Vector(vec.Slice())
		identities = append(identities, identity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}
