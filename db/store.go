package db

import (
	"context"
	"database/sql"
	"fmt"
	"rssnotify/models"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const queryTimeout = 30 * time.Second

// insertBatchSize keeps multi-row inserts well below the 65535 bind parameter
// limit of PostgreSQL and the 32766 variable limit of SQLite
const insertBatchSize = 1000

// Store persists feeds, subscriptions and entry history in SQLite or PostgreSQL
type Store struct {
	db     *sql.DB
	flavor sqlbuilder.Flavor
}

// Open connects to database, a SQLite file path or a postgres:// URL. Migrations
// must have been applied with Migrate.
func Open(database string) (*Store, error) {
	db, err := connection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return &Store{db: db, flavor: flavorFor(database)}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the complete persisted state
func (s *Store) Load(ctx context.Context) (models.State, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	state := models.NewState()

	sb := s.flavor.NewSelectBuilder()
	sb.Select("id", "url").From("feeds")
	query, args := sb.Build()
	if err := s.scanPairs(ctx, query, args, func(id, url string) {
		state.Feeds[id] = url
	}); err != nil {
		return state, fmt.Errorf("loading feeds: %w", err)
	}

	sb = s.flavor.NewSelectBuilder()
	sb.Select("feed_id", "channel").From("subscriptions").OrderBy("feed_id", "position").Asc()
	query, args = sb.Build()
	if err := s.scanPairs(ctx, query, args, func(id, channel string) {
		state.Subscriptions[id] = append(state.Subscriptions[id], channel)
	}); err != nil {
		return state, fmt.Errorf("loading subscriptions: %w", err)
	}

	sb = s.flavor.NewSelectBuilder()
	sb.Select("feed_id", "hash").From("entry_history").OrderBy("feed_id", "position").Asc()
	query, args = sb.Build()
	if err := s.scanPairs(ctx, query, args, func(id, hash string) {
		state.History[id] = append(state.History[id], hash)
	}); err != nil {
		return state, fmt.Errorf("loading history: %w", err)
	}

	log.WithFields(log.Fields{
		"feeds":         len(state.Feeds),
		"subscriptions": len(state.Subscriptions),
		"history":       len(state.History),
	}).Debug("Loaded state")

	return state, nil
}

func (s *Store) scanPairs(ctx context.Context, query string, args []interface{}, fn func(a, b string)) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return fmt.Errorf("scan error: %w", err)
		}
		fn(a, b)
	}
	return rows.Err()
}

// SaveFeed inserts the feed or updates its URL
func (s *Store) SaveFeed(ctx context.Context, id, url string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ib := s.flavor.NewInsertBuilder()
	ib.InsertInto("feeds").Cols("id", "url").Values(id, url)
	query, args := ib.Build()
	query += " ON CONFLICT (id) DO UPDATE SET url = excluded.url"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

// DeleteFeed removes the feed together with its subscriptions and history
func (s *Store) DeleteFeed(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for table, column := range map[string]string{
		"feeds":         "id",
		"subscriptions": "feed_id",
		"entry_history": "feed_id",
	} {
		del := s.flavor.NewDeleteBuilder()
		del.DeleteFrom(table).Where(del.Equal(column, id))
		query, args := del.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete error on %s: %w", table, err)
		}
	}

	return tx.Commit()
}

// SaveSubscriptions replaces the ordered channel list of a feed
func (s *Store) SaveSubscriptions(ctx context.Context, id string, channels []string) error {
	return s.replace(ctx, "subscriptions", "channel", id, channels)
}

// SaveHistory replaces the history of a feed, most recent hash first
func (s *Store) SaveHistory(ctx context.Context, id string, hashes []string) error {
	return s.replace(ctx, "entry_history", "hash", id, hashes)
}

func (s *Store) replace(ctx context.Context, table, column, id string, values []string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	del := s.flavor.NewDeleteBuilder()
	del.DeleteFrom(table).Where(del.Equal("feed_id", id))
	query, args := del.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete error on %s: %w", table, err)
	}

	position := 0
	for _, chunk := range lo.Chunk(values, insertBatchSize) {
		ib := s.flavor.NewInsertBuilder()
		ib.InsertInto(table).Cols("feed_id", "position", column)
		for _, value := range chunk {
			ib.Values(id, position, value)
			position++
		}
		query, args = ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert error on %s: %w", table, err)
		}
	}

	return tx.Commit()
}
