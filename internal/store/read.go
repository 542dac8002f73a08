package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/nopia/internal/ir"
)

// ErrModuleNotFound is returned when no image is stored under a name.
var ErrModuleNotFound = errors.New("module not found")

// ModuleInfo summarises a stored image.
type ModuleInfo struct {
	Name         string   `json:"name"`
	PlanHash     string   `json:"plan_hash"`
	EmbeddedFrom []string `json:"embedded_from"`
	LocalTypes   int      `json:"local_types"`
	Seq          int64    `json:"seq"`
}

// ReadImage returns the stored image of a module and its plan hash.
// Local types are ordered by namespace, name and handle, matching the order
// the registry emits them in.
func (s *Store) ReadImage(ctx context.Context, name string) (ir.ModuleImage, string, error) {
	var hash, from string
	err := s.db.QueryRowContext(ctx, `
		SELECT plan_hash, embedded_from FROM modules WHERE name = ?
	`, name).Scan(&hash, &from)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ModuleImage{}, "", fmt.Errorf("read image %q: %w", name, ErrModuleNotFound)
	}
	if err != nil {
		return ir.ModuleImage{}, "", fmt.Errorf("read image %q: %w", name, err)
	}

	img := ir.ModuleImage{Name: name}
	if img.EmbeddedFrom, err = unmarshalStrings(from); err != nil {
		return ir.ModuleImage{}, "", fmt.Errorf("read image %q: %w", name, err)
	}
	if img.LocalTypes, err = s.readLocalTypes(ctx, name); err != nil {
		return ir.ModuleImage{}, "", fmt.Errorf("read image %q: %w", name, err)
	}
	return img, hash, nil
}

// ReadCompiledModule returns the stored image as a later compilation sees it:
// a compiled module whose local types are foreign clones.
func (s *Store) ReadCompiledModule(ctx context.Context, name string) (*ir.CompiledModule, error) {
	img, _, err := s.ReadImage(ctx, name)
	if err != nil {
		return nil, err
	}
	c := img.AsCompiled()
	return &c, nil
}

func (s *Store) readLocalTypes(ctx context.Context, module string) ([]ir.LocalType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT handle, scope, identifier, namespace, name, kind, guid, source_module, shape, attributes
		FROM local_types
		WHERE module = ?
		ORDER BY namespace COLLATE BINARY ASC, name COLLATE BINARY ASC, handle COLLATE BINARY ASC
	`, module)
	if err != nil {
		return nil, fmt.Errorf("query local types: %w", err)
	}
	defer rows.Close()

	var out []ir.LocalType
	for rows.Next() {
		lt, err := scanLocalType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate local types: %w", err)
	}
	return out, nil
}

func scanLocalType(rows *sql.Rows) (ir.LocalType, error) {
	var (
		lt                  ir.LocalType
		handle, scope, kind string
		shape, attrs        string
	)
	if err := rows.Scan(&handle, &scope, &lt.Marker.Identifier, &lt.Namespace, &lt.Name,
		&kind, &lt.GUID, &lt.SourceModule, &shape, &attrs); err != nil {
		return ir.LocalType{}, fmt.Errorf("scan local type: %w", err)
	}

	var err error
	if lt.Marker.Scope, err = uuid.Parse(scope); err != nil {
		return ir.LocalType{}, fmt.Errorf("scan local type %s: scope: %w", lt.Name, err)
	}
	if lt.Shape, err = unmarshalShape(shape); err != nil {
		return ir.LocalType{}, fmt.Errorf("scan local type %s: %w", lt.Name, err)
	}
	if lt.Attributes, err = unmarshalStrings(attrs); err != nil {
		return ir.LocalType{}, fmt.Errorf("scan local type %s: %w", lt.Name, err)
	}
	lt.Handle = ir.LocalTypeHandle(handle)
	lt.Kind = ir.Kind(kind)
	lt.Key = lt.Marker.Key()
	return lt, nil
}

// ListModules returns every stored module ordered by name.
func (s *Store) ListModules(ctx context.Context) ([]ModuleInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.name, m.plan_hash, m.embedded_from, m.seq, COUNT(t.handle)
		FROM modules m
		LEFT JOIN local_types t ON t.module = m.name
		GROUP BY m.name
		ORDER BY m.name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	out := []ModuleInfo{}
	for rows.Next() {
		var (
			info ModuleInfo
			from string
		)
		if err := rows.Scan(&info.Name, &info.PlanHash, &from, &info.Seq, &info.LocalTypes); err != nil {
			return nil, fmt.Errorf("list modules: scan: %w", err)
		}
		if info.EmbeddedFrom, err = unmarshalStrings(from); err != nil {
			return nil, fmt.Errorf("list modules: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list modules: iterate: %w", err)
	}
	return out, nil
}

// ModulesEmbedding returns the names of stored modules that carry a clone of
// the given identity, ordered by name.
func (s *Store) ModulesEmbedding(ctx context.Context, key ir.IdentityKey) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT module FROM local_types
		WHERE scope = ? AND identifier = ?
		ORDER BY module COLLATE BINARY ASC
	`, key.Scope.String(), key.Name)
	if err != nil {
		return nil, fmt.Errorf("modules embedding %s: %w", key, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("modules embedding %s: scan: %w", key, err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("modules embedding %s: iterate: %w", key, err)
	}
	return out, nil
}
