package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ydagan/synaptic/pkg/domain"
)

// Store is the SQLite-backed implementation of EventStore and
// SynergyStore.
type Store struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewStore opens (or creates) the database at path and applies the
// schema.
func NewStore(logger *zap.Logger, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	s := &Store{logger: logger, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("database initialized", zap.String("path", path))
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		value REAL NOT NULL,
		state TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_id);

	CREATE TABLE IF NOT EXISTS synergies (
		id TEXT PRIMARY KEY,
		trigger_entity TEXT NOT NULL,
		action_entity TEXT NOT NULL,
		support REAL NOT NULL,
		confidence REAL NOT NULL,
		lift REAL NOT NULL,
		frequency INTEGER NOT NULL,
		consistency REAL NOT NULL,
		window_seconds REAL NOT NULL,
		impact_score REAL NOT NULL,
		source TEXT NOT NULL,
		discovered_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_synergies_impact ON synergies(impact_score DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendEvents stores a batch of events in one transaction.
func (s *Store) AppendEvents(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (entity_id, timestamp, value, state)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, event := range events {
		if !event.Valid() {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			event.EntityID,
			event.Timestamp.UTC(),
			event.Value,
			event.State,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// QueryEvents returns events in [start, end] ordered by timestamp
// ascending, as the transaction builder requires.
func (s *Store) QueryEvents(ctx context.Context, start, end time.Time) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, timestamp, value, COALESCE(state, '')
		FROM events
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		if err := rows.Scan(&event.EntityID, &event.Timestamp, &event.Value, &event.State); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SaveSynergies replaces the stored mined synergies with the given
// set. Predefined entries are external and never persisted here.
func (s *Store) SaveSynergies(ctx context.Context, synergies []domain.DiscoveredSynergy) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM synergies WHERE source = ?`, string(domain.SourceMined)); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO synergies (
			id, trigger_entity, action_entity, support, confidence, lift,
			frequency, consistency, window_seconds, impact_score, source, discovered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, syn := range synergies {
		if syn.Source != domain.SourceMined {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			syn.ID,
			syn.TriggerEntity,
			syn.ActionEntity,
			syn.Support,
			syn.Confidence,
			syn.Lift,
			syn.Frequency,
			syn.Consistency,
			syn.WindowSeconds,
			syn.ImpactScore,
			string(syn.Source),
			syn.DiscoveredAt.UTC(),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadSynergies returns stored synergies ordered by impact score
// descending.
func (s *Store) LoadSynergies(ctx context.Context) ([]domain.DiscoveredSynergy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_entity, action_entity, support, confidence, lift,
			frequency, consistency, window_seconds, impact_score, source, discovered_at
		FROM synergies
		ORDER BY impact_score DESC, trigger_entity ASC, action_entity ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var synergies []domain.DiscoveredSynergy
	for rows.Next() {
		var syn domain.DiscoveredSynergy
		var source string
		if err := rows.Scan(
			&syn.ID,
			&syn.TriggerEntity,
			&syn.ActionEntity,
			&syn.Support,
			&syn.Confidence,
			&syn.Lift,
			&syn.Frequency,
			&syn.Consistency,
			&syn.WindowSeconds,
			&syn.ImpactScore,
			&source,
			&syn.DiscoveredAt,
		); err != nil {
			return nil, err
		}
		syn.Source = domain.SynergySource(source)
		synergies = append(synergies, syn)
	}
	return synergies, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
