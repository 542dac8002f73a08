package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/nopia/internal/ir"
)

// WriteImage stores an emitted module image under its name.
//
// Writing an image whose plan hash matches the stored one is a no-op and
// returns written=false. A different hash replaces the module's local types
// in one transaction.
func (s *Store) WriteImage(ctx context.Context, img ir.ModuleImage, planHash string) (written bool, err error) {
	if img.Name == "" {
		return false, fmt.Errorf("write image: module name is required")
	}
	from, err := marshalStrings(img.EmbeddedFrom)
	if err != nil {
		return false, fmt.Errorf("write image: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write image: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT plan_hash FROM modules WHERE name = ?`, img.Name).Scan(&existing)
	switch {
	case err == nil && existing == planHash:
		return false, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("write image: query module: %w", err)
	}

	// Logical write order, never timestamps.
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM modules`).Scan(&seq); err != nil {
		return false, fmt.Errorf("write image: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO modules (name, plan_hash, embedded_from, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			plan_hash = excluded.plan_hash,
			embedded_from = excluded.embedded_from,
			seq = excluded.seq
	`, img.Name, planHash, from, seq)
	if err != nil {
		return false, fmt.Errorf("write image: upsert module: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM local_types WHERE module = ?`, img.Name); err != nil {
		return false, fmt.Errorf("write image: clear local types: %w", err)
	}
	for _, lt := range img.LocalTypes {
		if err := insertLocalType(ctx, tx, img.Name, lt); err != nil {
			return false, fmt.Errorf("write image: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write image: commit: %w", err)
	}
	return true, nil
}

func insertLocalType(ctx context.Context, tx *sql.Tx, module string, lt ir.LocalType) error {
	shape, err := marshalShape(lt.Shape)
	if err != nil {
		return err
	}
	attrs, err := marshalStrings(lt.Attributes)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO local_types
		(module, handle, scope, identifier, namespace, name, kind, guid, source_module, shape, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		module,
		string(lt.Handle),
		lt.Marker.Scope.String(),
		lt.Marker.Identifier,
		lt.Namespace,
		lt.Name,
		string(lt.Kind),
		lt.GUID,
		lt.SourceModule,
		shape,
		attrs,
	)
	if err != nil {
		return fmt.Errorf("insert local type %s: %w", lt.QualifiedName(), err)
	}
	return nil
}
