package db

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Tidy trims every stored history to maxSize hashes and removes subscription and
// history rows left behind by feeds that no longer exist. It returns the number of
// deleted rows.
func (s *Store) Tidy(ctx context.Context, maxSize int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var deleted int64

	trim := s.flavor.NewDeleteBuilder()
	trim.DeleteFrom("entry_history").Where(trim.GreaterEqualThan("position", maxSize))

	orphanHistory := s.flavor.NewDeleteBuilder()
	orphanHistory.DeleteFrom("entry_history").Where("feed_id NOT IN (SELECT id FROM feeds)")

	orphanSubscriptions := s.flavor.NewDeleteBuilder()
	orphanSubscriptions.DeleteFrom("subscriptions").Where("feed_id NOT IN (SELECT id FROM feeds)")

	for _, builder := range []interface {
		Build() (string, []interface{})
	}{trim, orphanHistory, orphanSubscriptions} {
		query, args := builder.Build()

		log.WithFields(log.Fields{
			"sql":  query,
			"args": args,
		}).Info("Tidying database")

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("tidy error: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}
