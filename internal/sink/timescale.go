package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // postgres driver
	"github.com/sirupsen/logrus"
)

const DefaultBatchSize = 500

// TimescaleSink inserts records into a hypertable keyed by
// (address, channel, ts). Re-downloaded history is skipped by the
// conflict clause.
type TimescaleSink struct {
	db        *sql.DB
	tableName string
	batchSize int
	logger    *logrus.Logger
}

// OpenTimescale connects with a lib/pq connection string.
func OpenTimescale(connString, table string, batchSize int, logger *logrus.Logger) (*TimescaleSink, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("open timescale: %w", err)
	}
	return NewTimescaleSink(db, table, batchSize, logger), nil
}

func NewTimescaleSink(db *sql.DB, table string, batchSize int, logger *logrus.Logger) *TimescaleSink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &TimescaleSink{db: db, tableName: table, batchSize: batchSize, logger: logger}
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

// Ping checks the database is reachable.
func (t *TimescaleSink) Ping(ctx context.Context) error {
	return t.db.PingContext(ctx)
}

func (t *TimescaleSink) Publish(ctx context.Context, b Batch) error {
	records := b.Records()
	for start := 0; start < len(records); start += t.batchSize {
		end := min(start+t.batchSize, len(records))
		if err := t.WriteBatch(ctx, records[start:end]); err != nil {
			return err
		}
	}
	t.logger.WithFields(logrus.Fields{
		"address": b.Address,
		"records": len(records),
		"table":   t.tableName,
	}).Debug("Published batch to TimescaleDB")
	return nil
}

// WriteBatch inserts records with a single statement.
func (t *TimescaleSink) WriteBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (address, channel, source, seq, ts, value) VALUES ")

	args := make([]any, 0, len(records)*6)
	for i, r := range records {
		if i > 0 {
			b.WriteString(",")
		}
		n := len(args)
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5, n+6)
		args = append(args, r.Address, r.Channel, string(r.Source), int64(r.Seq), r.Timestamp, r.Value)
	}

	b.WriteString(" ON CONFLICT (address, channel, ts) DO NOTHING")

	if _, err := t.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert %d records into %s: %w", len(records), t.tableName, err)
	}
	return nil
}

func (t *TimescaleSink) Close() error {
	return t.db.Close()
}
