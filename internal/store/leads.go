package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/outreach/internal/domain"
)

// PutLead inserts or updates a lead.
func (db *DB) PutLead(ctx context.Context, lead domain.Lead) error {
	if lead.ID == "" {
		return ErrInvalidRecord
	}
	now := time.Now().Format(time.DateTime)
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO leads (id, name, phone, company, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   phone = excluded.phone,
		   company = excluded.company,
		   updated_at = excluded.updated_at`,
		lead.ID, lead.Name, lead.Phone, lead.Company, now, now,
	)
	if err != nil {
		return fmt.Errorf("storing lead %s: %w", lead.ID, err)
	}
	return nil
}

// Lead returns a lead by id, or domain.ErrLeadNotFound.
func (db *DB) Lead(ctx context.Context, id string) (domain.Lead, error) {
	var l domain.Lead
	err := db.sql.QueryRowContext(ctx,
		`SELECT id, name, phone, company FROM leads WHERE id = ?`, id,
	).Scan(&l.ID, &l.Name, &l.Phone, &l.Company)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Lead{}, fmt.Errorf("%w: %s", domain.ErrLeadNotFound, id)
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("loading lead %s: %w", id, err)
	}
	return l, nil
}

// ListLeads returns every lead ordered by id.
func (db *DB) ListLeads(ctx context.Context) ([]domain.Lead, error) {
	rows, err := db.sql.QueryContext(ctx, `SELECT id, name, phone, company FROM leads ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []domain.Lead{}
	for rows.Next() {
		var l domain.Lead
		if err := rows.Scan(&l.ID, &l.Name, &l.Phone, &l.Company); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// PutScript inserts or updates a script.
func (db *DB) PutScript(ctx context.Context, s domain.Script) error {
	if s.ID == "" {
		return ErrInvalidRecord
	}
	var points sql.NullString
	if len(s.TalkingPoints) > 0 {
		data, err := json.Marshal(s.TalkingPoints)
		if err != nil {
			return err
		}
		points = sql.NullString{String: string(data), Valid: true}
	}

	now := time.Now().Format(time.DateTime)
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO scripts (id, name, opening_line, talking_points, objection_handling, persona, voice, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   opening_line = excluded.opening_line,
		   talking_points = excluded.talking_points,
		   objection_handling = excluded.objection_handling,
		   persona = excluded.persona,
		   voice = excluded.voice,
		   updated_at = excluded.updated_at`,
		s.ID, s.Name, s.OpeningLine, points, s.ObjectionHandling, s.Persona, s.Voice, now, now,
	)
	if err != nil {
		return fmt.Errorf("storing script %s: %w", s.ID, err)
	}
	return nil
}

const scriptColumns = `id, name, opening_line, talking_points, objection_handling, persona, voice`

// Script returns a script by id, or domain.ErrScriptNotFound.
func (db *DB) Script(ctx context.Context, id string) (domain.Script, error) {
	row := db.sql.QueryRowContext(ctx, `SELECT `+scriptColumns+` FROM scripts WHERE id = ?`, id)
	s, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Script{}, fmt.Errorf("%w: %s", domain.ErrScriptNotFound, id)
	}
	if err != nil {
		return domain.Script{}, fmt.Errorf("loading script %s: %w", id, err)
	}
	return s, nil
}

// ListScripts returns every script ordered by id.
func (db *DB) ListScripts(ctx context.Context) ([]domain.Script, error) {
	rows, err := db.sql.QueryContext(ctx, `SELECT `+scriptColumns+` FROM scripts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scripts := []domain.Script{}
	for rows.Next() {
		s, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanScript(row scanner) (domain.Script, error) {
	var s domain.Script
	var points sql.NullString
	if err := row.Scan(&s.ID, &s.Name, &s.OpeningLine, &points, &s.ObjectionHandling, &s.Persona, &s.Voice); err != nil {
		return domain.Script{}, err
	}
	if points.Valid && points.String != "" {
		if err := json.Unmarshal([]byte(points.String), &s.TalkingPoints); err != nil {
			return domain.Script{}, fmt.Errorf("script %s: talking_points: %w", s.ID, err)
		}
	}
	return s, nil
}
