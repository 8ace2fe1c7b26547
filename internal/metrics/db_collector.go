package metrics

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DBStatsCollector periodically exports connection statistics of the pgx pool
// used by the registry and the database/sql pool used by the skill ledger
type DBStatsCollector struct {
	pool   *pgxpool.Pool
	sqlDB  *sql.DB
	logger *slog.Logger
	stopCh chan struct{}
}

// NewDBStatsCollector creates a new database stats collector. Either pool may be nil.
func NewDBStatsCollector(pool *pgxpool.Pool, sqlDB *sql.DB, logger *slog.Logger) *DBStatsCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBStatsCollector{
		pool:   pool,
		sqlDB:  sqlDB,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting at the given interval
func (c *DBStatsCollector) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.Collect()
		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				return
			}
		}
	}()

	c.logger.Info("Database stats collector started", slog.Duration("interval", interval))
}

// Stop stops the collector
func (c *DBStatsCollector) Stop() {
	close(c.stopCh)
}

// Collect samples both pools once
func (c *DBStatsCollector) Collect() {
	if c.pool != nil {
		stat := c.pool.Stat()
		DBConnectionsOpen.WithLabelValues("pgx").Set(float64(stat.TotalConns()))
		DBConnectionsInUse.WithLabelValues("pgx").Set(float64(stat.AcquiredConns()))
		DBConnectionsIdle.WithLabelValues("pgx").Set(float64(stat.IdleConns()))
	}

	if c.sqlDB != nil {
		stats := c.sqlDB.Stats()
		DBConnectionsOpen.WithLabelValues("sql").Set(float64(stats.OpenConnections))
		DBConnectionsInUse.WithLabelValues("sql").Set(float64(stats.InUse))
		DBConnectionsIdle.WithLabelValues("sql").Set(float64(stats.Idle))
	}
}
