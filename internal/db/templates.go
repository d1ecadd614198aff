package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"Mailwright/internal/errs"
	"Mailwright/internal/models"
)

const templateColumns = `id, template_type, template_name, description, subject, body, retry_max, is_deleted, created_at, updated_at`

func scanTemplate(row pgx.Row, t *models.EmailTemplate) error {
	return row.Scan(
		&t.ID,
		&t.TemplateType,
		&t.TemplateName,
		&t.Description,
		&t.Subject,
		&t.Body,
		&t.RetryMax,
		&t.IsDeleted,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
}

func (s *Store) CreateTemplate(ctx context.Context, t *models.EmailTemplate) error {
	t.ID = uuid.NewString()

	err := s.Pool.QueryRow(ctx,
		`INSERT INTO email_templates
		 (id, template_type, template_name, description, subject, body, retry_max, is_deleted, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE,NOW(),NOW())
		 RETURNING created_at, updated_at`,
		t.ID,
		t.TemplateType,
		t.TemplateName,
		t.Description,
		t.Subject,
		t.Body,
		t.RetryMax,
	).Scan(&t.CreatedAt, &t.UpdatedAt)

	return wrap("create template", err)
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*models.EmailTemplate, error) {
	var t models.EmailTemplate

	row := s.Pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM email_templates WHERE id=$1`, id)
	if err := scanTemplate(row, &t); err != nil {
		return nil, wrap("get template", err)
	}
	return &t, nil
}

// UpdateTemplate rewrites the editable fields. The template type is fixed at
// creation.
func (s *Store) UpdateTemplate(ctx context.Context, t *models.EmailTemplate) error {
	err := s.Pool.QueryRow(ctx,
		`UPDATE email_templates
		 SET template_name=$1,
		     description=$2,
		     subject=$3,
		     body=$4,
		     retry_max=$5,
		     is_deleted=$6,
		     updated_at=NOW()
		 WHERE id=$7
		 RETURNING `+templateColumns,
		t.TemplateName,
		t.Description,
		t.Subject,
		t.Body,
		t.RetryMax,
		t.IsDeleted,
		t.ID,
	).Scan(
		&t.ID,
		&t.TemplateType,
		&t.TemplateName,
		&t.Description,
		&t.Subject,
		&t.Body,
		&t.RetryMax,
		&t.IsDeleted,
		&t.CreatedAt,
		&t.UpdatedAt,
	)

	return wrap("update template", err)
}

// DeleteTemplate removes the template and its placeholder bindings in one
// transaction.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	return s.withTx(ctx, "delete template", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM email_placeholders WHERE template_id=$1`, id); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM email_templates WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

// InUseTemplate returns the live template of the given type joined with its
// bindings and their metadata in a single query.
func (s *Store) InUseTemplate(ctx context.Context, templateType models.TemplateType) (*models.InUseTemplate, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT t.id, t.template_type, t.template_name, t.description, t.subject, t.body,
		        t.retry_max, t.is_deleted, t.created_at, t.updated_at,
		        b.id, b.placeholder_id, b.created_at,
		        m.key, m.name, m.description, m.created_at, m.updated_at
		 FROM email_templates t
		 LEFT JOIN email_placeholders b ON b.template_id = t.id
		 LEFT JOIN metadata_placeholders m ON m.id = b.placeholder_id
		 WHERE t.template_type=$1 AND NOT t.is_deleted
		 ORDER BY b.created_at, b.id`,
		templateType,
	)
	if err != nil {
		return nil, wrap("resolve template", err)
	}
	defer rows.Close()

	var result *models.InUseTemplate

	for rows.Next() {
		var (
			t models.EmailTemplate

			bindingID, placeholderID         *string
			bindingCreated                   *time.Time
			key, name, description           *string
			metadataCreated, metadataUpdated *time.Time
		)

		if err := rows.Scan(
			&t.ID, &t.TemplateType, &t.TemplateName, &t.Description, &t.Subject, &t.Body,
			&t.RetryMax, &t.IsDeleted, &t.CreatedAt, &t.UpdatedAt,
			&bindingID, &placeholderID, &bindingCreated,
			&key, &name, &description, &metadataCreated, &metadataUpdated,
		); err != nil {
			return nil, wrap("resolve template", err)
		}

		if result == nil {
			result = &models.InUseTemplate{Template: t}
		}

		if bindingID == nil || key == nil {
			continue
		}

		result.Placeholders = append(result.Placeholders, models.ResolvedPlaceholder{
			Binding: models.EmailPlaceholderBinding{
				ID:            *bindingID,
				TemplateID:    t.ID,
				PlaceholderID: *placeholderID,
				CreatedAt:     deref(bindingCreated),
			},
			Metadata: models.PlaceholderMetadata{
				ID:          *placeholderID,
				Key:         *key,
				Name:        deref(name),
				Description: deref(description),
				CreatedAt:   deref(metadataCreated),
				UpdatedAt:   deref(metadataUpdated),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("resolve template", err)
	}

	if result == nil {
		return nil, wrap("resolve template "+string(templateType), pgx.ErrNoRows)
	}
	return result, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
