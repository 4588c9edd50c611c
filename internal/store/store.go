// Package store keeps tenant templates in PostgreSQL and serves them to the
// registry as a template source.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/courier/pkg/mailer"
	"github.com/dmitrymomot/courier/pkg/mailer/templates"
)

// Record is a stored template.
type Record struct {
	UpdatedAt time.Time       `json:"updated_at"`
	Tenant    string          `json:"tenant"`
	Type      string          `json:"type"`
	Subject   string          `json:"subject"`
	Body      string          `json:"body"`
	Priority  mailer.Priority `json:"priority"`
	IsHTML    bool            `json:"is_html"`
}

// Template builds the registry template for r.
func (r Record) Template() *mailer.Template {
	opts := []mailer.TemplateOption{mailer.WithDefaultPriority(r.Priority)}
	if r.IsHTML {
		opts = append(opts, mailer.AsHTML())
	} else {
		opts = append(opts, mailer.AsText())
	}
	return mailer.NewTemplate(r.Subject, r.Body, opts...)
}

func (r Record) validate() error {
	switch {
	case strings.TrimSpace(r.Tenant) == "":
		return fmt.Errorf("%w: tenant is required", ErrInvalidRecord)
	case strings.TrimSpace(r.Type) == "":
		return fmt.Errorf("%w: template type is required", ErrInvalidRecord)
	case r.Subject == "" && r.Body == "":
		return fmt.Errorf("%w: subject or body is required", ErrInvalidRecord)
	}
	return nil
}

// Store reads and writes the email_templates table.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store on top of an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ templates.Source = (*Store)(nil)

const selectColumns = `tenant, template_type, subject, body, is_html, priority, updated_at`

// List returns all templates, or those of one tenant when tenant is set,
// ordered by tenant and type.
func (s *Store) List(ctx context.Context, tenant string) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM email_templates`
	var args []any
	if tenant != "" {
		query += ` WHERE tenant = $1`
		args = append(args, tenant)
	}
	query += ` ORDER BY tenant, template_type`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list templates: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("store: list templates: %w", err)
	}
	return records, nil
}

// Get returns one template.
func (s *Store) Get(ctx context.Context, tenant, templateType string) (Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM email_templates WHERE tenant = $1 AND template_type = $2`,
		tenant, templateType,
	)
	if err != nil {
		return Record{}, fmt.Errorf("store: get template: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("store: get template: %w", err)
	}
	return r, nil
}

// Upsert inserts or replaces a template and returns the stored record.
func (s *Store) Upsert(ctx context.Context, r Record) (Record, error) {
	if err := r.validate(); err != nil {
		return Record{}, err
	}

	rows, err := s.pool.Query(ctx, `
		INSERT INTO email_templates (tenant, template_type, subject, body, is_html, priority, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (tenant, template_type) DO UPDATE SET
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			is_html = EXCLUDED.is_html,
			priority = EXCLUDED.priority,
			updated_at = EXCLUDED.updated_at
		RETURNING `+selectColumns,
		r.Tenant, r.Type, r.Subject, r.Body, r.IsHTML, r.Priority.String(),
	)
	if err != nil {
		return Record{}, fmt.Errorf("store: upsert template: %w", err)
	}
	out, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if err != nil {
		return Record{}, fmt.Errorf("store: upsert template: %w", err)
	}
	return out, nil
}

// Delete removes a template. It returns ErrNotFound when nothing matched.
func (s *Store) Delete(ctx context.Context, tenant, templateType string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM email_templates WHERE tenant = $1 AND template_type = $2`,
		tenant, templateType,
	)
	if err != nil {
		return fmt.Errorf("store: delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Import replaces every template of tenant with records in one transaction.
func (s *Store) Import(ctx context.Context, tenant string, records []Record) error {
	for _, r := range records {
		if r.Tenant != tenant {
			return fmt.Errorf("%w: record %s/%s does not belong to %s", ErrInvalidRecord, r.Tenant, r.Type, tenant)
		}
		if err := r.validate(); err != nil {
			return err
		}
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM email_templates WHERE tenant = $1`, tenant); err != nil {
			return fmt.Errorf("store: import templates: %w", err)
		}
		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(`
				INSERT INTO email_templates (tenant, template_type, subject, body, is_html, priority)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				r.Tenant, r.Type, r.Subject, r.Body, r.IsHTML, r.Priority.String(),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("store: import templates: %w", err)
		}
		return nil
	})
}

// Load implements templates.Source.
func (s *Store) Load(ctx context.Context) (*templates.Bundle, error) {
	records, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	b := &templates.Bundle{Entries: make([]templates.Entry, 0, len(records))}
	for _, r := range records {
		b.Entries = append(b.Entries, templates.Entry{Tenant: r.Tenant, Type: r.Type, Template: r.Template()})
	}
	return b, nil
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var (
		r        Record
		priority string
	)
	if err := row.Scan(&r.Tenant, &r.Type, &r.Subject, &r.Body, &r.IsHTML, &priority, &r.UpdatedAt); err != nil {
		return Record{}, err
	}
	p, err := mailer.ParsePriority(priority)
	if err != nil {
		return Record{}, err
	}
	r.Priority = p
	return r, nil
}
