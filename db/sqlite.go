// Package db persists price points, training runs and forecasts in SQLite.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"stockcast/forecast"
	"stockcast/market"
	"stockcast/ml"
)

// Store wraps the SQLite handle. One Store per database file; safe for
// concurrent use through database/sql.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	store := &Store{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return store, nil
}

func (s *Store) createTables() error {
	query := `
    CREATE TABLE IF NOT EXISTS price_points (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        date TEXT NOT NULL,
        price REAL NOT NULL,
        position INTEGER NOT NULL,
        loaded_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        epochs INTEGER NOT NULL,
        final_loss REAL,
        final_val_loss REAL,
        test_mse REAL,
        test_rmse REAL,
        duration_seconds REAL,
        trained_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE TABLE IF NOT EXISTS forecasts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        day_offset INTEGER NOT NULL,
        predicted_return REAL NOT NULL,
        projected_price REAL NOT NULL,
        price_delta REAL NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );`
	_, err := s.db.Exec(query)
	return err
}

// SavePricePoints replaces the stored series with the freshly parsed one.
func (s *Store) SavePricePoints(points []market.PricePoint) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM price_points"); err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO price_points (date, price, position) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range points {
		if _, err := stmt.Exec(p.Date, p.Price, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// QueryPricePoints returns the stored series in chronological order.
func (s *Store) QueryPricePoints() ([]market.PricePoint, error) {
	rows, err := s.db.Query("SELECT date, price FROM price_points ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []market.PricePoint
	for rows.Next() {
		var p market.PricePoint
		if err := rows.Scan(&p.Date, &p.Price); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// SaveTrainingRun records one completed training run with its evaluation.
func (s *Store) SaveTrainingRun(summary ml.TrainingSummary, metrics ml.Metrics) error {
	_, err := s.db.Exec(`INSERT INTO training_log
        (epochs, final_loss, final_val_loss, test_mse, test_rmse, duration_seconds)
        VALUES (?, ?, ?, ?, ?, ?)`,
		summary.Epochs, summary.FinalLoss, summary.FinalValLoss,
		metrics.MSE, metrics.RMSE, summary.Elapsed)
	return err
}

// LatestTrainingRun returns the most recent run's evaluation metrics.
func (s *Store) LatestTrainingRun() (ml.Metrics, error) {
	var m ml.Metrics
	err := s.db.QueryRow(`SELECT test_mse, test_mse, test_rmse FROM training_log
        ORDER BY id DESC LIMIT 1`).Scan(&m.Loss, &m.MSE, &m.RMSE)
	if err != nil {
		return ml.Metrics{}, err
	}
	return m, nil
}

// SaveForecasts replaces the stored projection with the latest one.
func (s *Store) SaveForecasts(days []forecast.DayForecast) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM forecasts"); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO forecasts
        (day_offset, predicted_return, projected_price, price_delta)
        VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range days {
		if _, err := stmt.Exec(d.DayOffset, d.PredictedReturn, d.ProjectedPrice, d.PriceDelta); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}
