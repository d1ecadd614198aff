package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"Mailwright/internal/errs"
	"Mailwright/internal/models"
)

func (s *Store) CreatePlaceholder(ctx context.Context, p *models.PlaceholderMetadata) error {
	p.ID = uuid.NewString()

	err := s.Pool.QueryRow(ctx,
		`INSERT INTO metadata_placeholders
		 (id, key, name, description, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,NOW(),NOW())
		 RETURNING created_at, updated_at`,
		p.ID,
		p.Key,
		p.Name,
		p.Description,
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	return wrap("create placeholder", err)
}

func (s *Store) GetPlaceholder(ctx context.Context, id string) (*models.PlaceholderMetadata, error) {
	var p models.PlaceholderMetadata

	err := s.Pool.QueryRow(ctx,
		`SELECT id, key, name, description, created_at, updated_at
		 FROM metadata_placeholders WHERE id=$1`, id,
	).Scan(&p.ID, &p.Key, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, wrap("get placeholder", err)
	}
	return &p, nil
}

// UpdatePlaceholder changes name and description only. The key is what
// template tokens refer to, so it never changes once created.
func (s *Store) UpdatePlaceholder(ctx context.Context, p *models.PlaceholderMetadata) error {
	err := s.Pool.QueryRow(ctx,
		`UPDATE metadata_placeholders
		 SET name=$1,
		     description=$2,
		     updated_at=NOW()
		 WHERE id=$3
		 RETURNING key, created_at, updated_at`,
		p.Name,
		p.Description,
		p.ID,
	).Scan(&p.Key, &p.CreatedAt, &p.UpdatedAt)

	return wrap("update placeholder", err)
}

// DeletePlaceholder unbinds the placeholder from every template and removes
// it in one transaction. It returns the IDs of the templates that lost a
// binding.
func (s *Store) DeletePlaceholder(ctx context.Context, id string) ([]string, error) {
	var templateIDs []string

	err := s.withTx(ctx, "delete placeholder", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`DELETE FROM email_placeholders WHERE placeholder_id=$1 RETURNING template_id`, id)
		if err != nil {
			return err
		}
		templateIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM metadata_placeholders WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return templateIDs, nil
}

// Bindings lists join rows filtered by template, placeholder or both. Empty
// filters are ignored.
func (s *Store) Bindings(ctx context.Context, templateID, placeholderID string) ([]models.EmailPlaceholderBinding, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, template_id, placeholder_id, created_at
		 FROM email_placeholders
		 WHERE ($1 = '' OR template_id::text = $1)
		   AND ($2 = '' OR placeholder_id::text = $2)
		 ORDER BY created_at, id`,
		templateID,
		placeholderID,
	)
	if err != nil {
		return nil, wrap("list bindings", err)
	}

	bindings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.EmailPlaceholderBinding, error) {
		var b models.EmailPlaceholderBinding
		err := row.Scan(&b.ID, &b.TemplateID, &b.PlaceholderID, &b.CreatedAt)
		return b, err
	})
	if err != nil {
		return nil, wrap("list bindings", err)
	}
	return bindings, nil
}

// BindPlaceholders attaches every placeholder to the template. Pairs that
// already exist are skipped; the returned slice holds the new rows only.
func (s *Store) BindPlaceholders(ctx context.Context, templateID string, placeholderIDs []string) ([]models.EmailPlaceholderBinding, error) {
	created := make([]models.EmailPlaceholderBinding, 0, len(placeholderIDs))

	err := s.withTx(ctx, "bind placeholders", func(tx pgx.Tx) error {
		for _, pid := range placeholderIDs {
			b := models.EmailPlaceholderBinding{
				ID:            uuid.NewString(),
				TemplateID:    templateID,
				PlaceholderID: pid,
			}

			err := tx.QueryRow(ctx,
				`INSERT INTO email_placeholders (id, template_id, placeholder_id, created_at)
				 VALUES ($1,$2,$3,NOW())
				 ON CONFLICT (template_id, placeholder_id) DO NOTHING
				 RETURNING created_at`,
				b.ID, b.TemplateID, b.PlaceholderID,
			).Scan(&b.CreatedAt)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			created = append(created, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UnbindPlaceholders deletes join rows by their own IDs.
func (s *Store) UnbindPlaceholders(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := s.Pool.Exec(ctx,
		`DELETE FROM email_placeholders WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return 0, wrap("unbind placeholders", err)
	}
	return tag.RowsAffected(), nil
}
