// Package persistence provides SQLite-based storage for the rules workspace.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/hexrules/internal/engine"
	"github.com/talgya/hexrules/internal/entity"
	"github.com/talgya/hexrules/internal/ontology"
	"github.com/talgya/hexrules/internal/world"
)

// Metadata keys.
const (
	metaRadius   = "radius"
	metaSelected = "selected"
	metaSavedAt  = "saved_at"
)

// ErrNoState is returned by Load when nothing has been saved yet.
var ErrNoState = errors.New("no saved state")

// DB wraps a SQLite connection for workspace persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entity_types (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		properties_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS concepts (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		roles_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bindings (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		concept_id TEXT NOT NULL,
		role_id TEXT NOT NULL,
		entity_type_id TEXT NOT NULL,
		properties_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS relations (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		concept_id TEXT NOT NULL,
		subject_role TEXT NOT NULL,
		object_role TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		effect_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS constraints (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		concept_id TEXT NOT NULL,
		expr_json TEXT NOT NULL,
		auto_generated INTEGER NOT NULL,
		source_relation TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tiles (
		id TEXT PRIMARY KEY,
		type_id TEXT NOT NULL,
		pos_q INTEGER NOT NULL,
		pos_r INTEGER NOT NULL,
		props_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		type_id TEXT NOT NULL,
		pos_q INTEGER NOT NULL,
		pos_r INTEGER NOT NULL,
		props_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bindings_concept ON bindings(concept_id);
	CREATE INDEX IF NOT EXISTS idx_constraints_source ON constraints(source_relation);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// HasState reports whether a workspace has been saved before.
func (db *DB) HasState() bool {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM meta WHERE key = ?", metaRadius); err != nil {
		return false
	}
	return n > 0
}

// SaveMeta stores a key-value pair in the metadata table.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// state is a consistent copy of the workspace taken under its read lock.
type state struct {
	types    []entity.EntityType
	snap     ontology.Snapshot
	radius   int
	tiles    []world.Entity
	units    []world.Entity
	selected *world.EntityID
}

// Save writes the whole workspace to the database in one transaction
// (full replace).
func (db *DB) Save(ws *engine.Workspace) error {
	var st state
	ws.View(func(s engine.Stores) {
		st = state{
			types:    s.Types.Types(),
			snap:     s.Ontology.Snapshot(),
			radius:   s.Board.Radius,
			tiles:    s.Board.Tiles(),
			units:    s.Board.Units(),
			selected: s.Board.Selected(),
		}
	})

	slog.Info("saving workspace",
		"types", len(st.types),
		"concepts", len(st.snap.Concepts),
		"constraints", len(st.snap.Constraints),
		"tiles", len(st.tiles),
		"units", len(st.units),
	)

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"entity_types", "concepts", "bindings", "relations", "constraints", "tiles", "units"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := saveTypes(tx, st.types); err != nil {
		return fmt.Errorf("save types: %w", err)
	}
	if err := saveOntology(tx, st.snap); err != nil {
		return fmt.Errorf("save ontology: %w", err)
	}
	if err := saveEntities(tx, "tiles", st.tiles); err != nil {
		return fmt.Errorf("save tiles: %w", err)
	}
	if err := saveEntities(tx, "units", st.units); err != nil {
		return fmt.Errorf("save units: %w", err)
	}

	selected := ""
	if st.selected != nil {
		selected = string(*st.selected)
	}
	meta := map[string]string{
		metaRadius:   strconv.Itoa(st.radius),
		metaSelected: selected,
		metaSavedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("workspace saved")
	return nil
}

func saveTypes(tx *sqlx.Tx, types []entity.EntityType) error {
	stmt, err := tx.Preparex(`INSERT INTO entity_types
		(id, seq, name, role, properties_json) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range types {
		props, err := json.Marshal(t.Properties)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(t.ID, i, t.Name, t.Role, string(props)); err != nil {
			return fmt.Errorf("insert type %s: %w", t.ID, err)
		}
	}
	return nil
}

func saveOntology(tx *sqlx.Tx, snap ontology.Snapshot) error {
	for i, c := range snap.Concepts {
		roles, err := json.Marshal(c.Roles)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO concepts (id, seq, name, roles_json) VALUES (?, ?, ?, ?)`,
			c.ID, i, c.Name, string(roles)); err != nil {
			return fmt.Errorf("insert concept %s: %w", c.ID, err)
		}
	}

	for i, b := range snap.Bindings {
		props, err := json.Marshal(b.Properties)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO bindings
			(id, seq, concept_id, role_id, entity_type_id, properties_json) VALUES (?, ?, ?, ?, ?, ?)`,
			b.ID, i, b.ConceptID, b.RoleID, b.EntityTypeID, string(props)); err != nil {
			return fmt.Errorf("insert binding %s: %w", b.ID, err)
		}
	}

	for i, r := range snap.Relations {
		eff, err := json.Marshal(r.Effect)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO relations
			(id, seq, name, concept_id, subject_role, object_role, trigger_kind, effect_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, i, r.Name, r.ConceptID, r.SubjectRole, r.ObjectRole, r.Trigger, string(eff)); err != nil {
			return fmt.Errorf("insert relation %s: %w", r.ID, err)
		}
	}

	for i, c := range snap.Constraints {
		expr, err := json.Marshal(c.Expr)
		if err != nil {
			return err
		}
		auto := 0
		if c.AutoGenerated {
			auto = 1
		}
		if _, err := tx.Exec(`INSERT INTO constraints
			(id, seq, name, concept_id, expr_json, auto_generated, source_relation)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, i, c.Name, c.ConceptID, string(expr), auto, c.SourceRelation); err != nil {
			return fmt.Errorf("insert constraint %s: %w", c.ID, err)
		}
	}
	return nil
}

func saveEntities(tx *sqlx.Tx, table string, list []world.Entity) error {
	stmt, err := tx.Preparex(`INSERT INTO ` + table + `
		(id, type_id, pos_q, pos_r, props_json) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range list {
		props, err := json.Marshal(e.Props)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(e.ID, e.TypeID, e.Position.Q, e.Position.R, string(props)); err != nil {
			return fmt.Errorf("insert %s: %w", e.ID, err)
		}
	}
	return nil
}

// Row shapes for loading.
type (
	typeRow struct {
		ID         string `db:"id"`
		Name       string `db:"name"`
		Role       string `db:"role"`
		Properties string `db:"properties_json"`
	}
	conceptRow struct {
		ID    string `db:"id"`
		Name  string `db:"name"`
		Roles string `db:"roles_json"`
	}
	bindingRow struct {
		ID         string `db:"id"`
		ConceptID  string `db:"concept_id"`
		RoleID     string `db:"role_id"`
		TypeID     string `db:"entity_type_id"`
		Properties string `db:"properties_json"`
	}
	relationRow struct {
		ID          string `db:"id"`
		Name        string `db:"name"`
		ConceptID   string `db:"concept_id"`
		SubjectRole string `db:"subject_role"`
		ObjectRole  string `db:"object_role"`
		Trigger     string `db:"trigger_kind"`
		Effect      string `db:"effect_json"`
	}
	constraintRow struct {
		ID             string `db:"id"`
		Name           string `db:"name"`
		ConceptID      string `db:"concept_id"`
		Expr           string `db:"expr_json"`
		AutoGenerated  int    `db:"auto_generated"`
		SourceRelation string `db:"source_relation"`
	}
	entityRow struct {
		ID     string `db:"id"`
		TypeID string `db:"type_id"`
		Q      int    `db:"pos_q"`
		R      int    `db:"pos_r"`
		Props  string `db:"props_json"`
	}
)

// Load reads the saved workspace back. The ontology is restored verbatim:
// derived constraints keep their ids, flags and back-references.
func (db *DB) Load() (*entity.Registry, *ontology.Store, *world.Board, error) {
	radiusStr, err := db.GetMeta(metaRadius)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil, ErrNoState
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load meta: %w", err)
	}
	radius, err := strconv.Atoi(radiusStr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load meta: radius %q: %w", radiusStr, err)
	}

	types, err := db.loadTypes()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load types: %w", err)
	}
	snap, err := db.loadOntology()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load ontology: %w", err)
	}
	store := ontology.NewStore(types)
	store.Restore(snap)

	board, err := db.loadBoard(radius)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load board: %w", err)
	}

	slog.Info("workspace loaded",
		"types", len(types.Types()),
		"concepts", len(snap.Concepts),
		"constraints", len(snap.Constraints),
		"units", len(board.Units()),
	)
	return types, store, board, nil
}

func (db *DB) loadTypes() (*entity.Registry, error) {
	var rows []typeRow
	if err := db.conn.Select(&rows, "SELECT id, name, role, properties_json FROM entity_types ORDER BY seq"); err != nil {
		return nil, err
	}
	reg := entity.NewRegistry()
	for _, r := range rows {
		t := entity.EntityType{ID: entity.TypeID(r.ID), Name: r.Name, Role: entity.Role(r.Role)}
		if err := json.Unmarshal([]byte(r.Properties), &t.Properties); err != nil {
			return nil, fmt.Errorf("type %s: %w", r.ID, err)
		}
		if err := reg.Create(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (db *DB) loadOntology() (ontology.Snapshot, error) {
	var snap ontology.Snapshot

	var concepts []conceptRow
	if err := db.conn.Select(&concepts, "SELECT id, name, roles_json FROM concepts ORDER BY seq"); err != nil {
		return snap, err
	}
	for _, r := range concepts {
		c := ontology.Concept{ID: ontology.ConceptID(r.ID), Name: r.Name}
		if err := json.Unmarshal([]byte(r.Roles), &c.Roles); err != nil {
			return snap, fmt.Errorf("concept %s: %w", r.ID, err)
		}
		snap.Concepts = append(snap.Concepts, c)
	}

	var bindings []bindingRow
	if err := db.conn.Select(&bindings, `SELECT id, concept_id, role_id, entity_type_id, properties_json
		FROM bindings ORDER BY seq`); err != nil {
		return snap, err
	}
	for _, r := range bindings {
		b := ontology.Binding{
			ID:           ontology.BindingID(r.ID),
			ConceptID:    ontology.ConceptID(r.ConceptID),
			RoleID:       ontology.RoleID(r.RoleID),
			EntityTypeID: entity.TypeID(r.TypeID),
		}
		if err := json.Unmarshal([]byte(r.Properties), &b.Properties); err != nil {
			return snap, fmt.Errorf("binding %s: %w", r.ID, err)
		}
		snap.Bindings = append(snap.Bindings, b)
	}

	var relations []relationRow
	if err := db.conn.Select(&relations, `SELECT id, name, concept_id, subject_role, object_role, trigger_kind, effect_json
		FROM relations ORDER BY seq`); err != nil {
		return snap, err
	}
	for _, r := range relations {
		rel := ontology.Relation{
			ID:          ontology.RelationID(r.ID),
			Name:        r.Name,
			ConceptID:   ontology.ConceptID(r.ConceptID),
			SubjectRole: ontology.RoleID(r.SubjectRole),
			ObjectRole:  ontology.RoleID(r.ObjectRole),
			Trigger:     ontology.Trigger(r.Trigger),
		}
		if err := json.Unmarshal([]byte(r.Effect), &rel.Effect); err != nil {
			return snap, fmt.Errorf("relation %s: %w", r.ID, err)
		}
		snap.Relations = append(snap.Relations, rel)
	}

	var constraints []constraintRow
	if err := db.conn.Select(&constraints, `SELECT id, name, concept_id, expr_json, auto_generated, source_relation
		FROM constraints ORDER BY seq`); err != nil {
		return snap, err
	}
	for _, r := range constraints {
		c := ontology.Constraint{
			ID:             ontology.ConstraintID(r.ID),
			Name:           r.Name,
			ConceptID:      ontology.ConceptID(r.ConceptID),
			AutoGenerated:  r.AutoGenerated != 0,
			SourceRelation: ontology.RelationID(r.SourceRelation),
		}
		if err := json.Unmarshal([]byte(r.Expr), &c.Expr); err != nil {
			return snap, fmt.Errorf("constraint %s: %w", r.ID, err)
		}
		snap.Constraints = append(snap.Constraints, c)
	}
	return snap, nil
}

func (db *DB) loadBoard(radius int) (*world.Board, error) {
	board := world.NewBoard(radius)

	var tiles []entityRow
	if err := db.conn.Select(&tiles, "SELECT id, type_id, pos_q, pos_r, props_json FROM tiles"); err != nil {
		return nil, err
	}
	for _, r := range tiles {
		e, err := r.entity()
		if err != nil {
			return nil, err
		}
		if _, err := board.SetTile(e); err != nil {
			return nil, err
		}
	}

	var units []entityRow
	if err := db.conn.Select(&units, "SELECT id, type_id, pos_q, pos_r, props_json FROM units"); err != nil {
		return nil, err
	}
	for _, r := range units {
		e, err := r.entity()
		if err != nil {
			return nil, err
		}
		if _, err := board.PlaceUnit(e); err != nil {
			return nil, err
		}
	}

	if sel, err := db.GetMeta(metaSelected); err == nil && sel != "" {
		id := world.EntityID(sel)
		if err := board.Select(&id); err != nil {
			slog.Warn("saved selection no longer on the board", "unit", sel)
		}
	}
	return board, nil
}

func (r entityRow) entity() (world.Entity, error) {
	e := world.Entity{
		ID:       world.EntityID(r.ID),
		TypeID:   entity.TypeID(r.TypeID),
		Position: world.HexCoord{Q: r.Q, R: r.R},
	}
	if err := json.Unmarshal([]byte(r.Props), &e.Props); err != nil {
		return e, fmt.Errorf("entity %s: %w", r.ID, err)
	}
	return e, nil
}
