package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Dan9191/sales-forecast/internal/models"
	"github.com/Dan9191/sales-forecast/internal/warehouse"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// insertBatchSize caps the rows of one multi-row INSERT
const insertBatchSize = 500

// dateLayouts are the textual forms a warehouse date can arrive in
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02", "2006-01-02T15:04:05Z", "2006-01-02 15:04:05"}

// Repository provides warehouse operations
type Repository struct {
	db      *sql.DB
	dialect warehouse.Dialect
	log     *logrus.Logger
}

// NewRepository initializes a new repository on an open session
func NewRepository(session *warehouse.Session, log *logrus.Logger) *Repository {
	return &Repository{db: session.DB(), dialect: session.Dialect(), log: log}
}

// LoadSales returns the daily sales series: rows of years >= minYear grouped
// by calendar date and summed, zero totals dropped, dates >= start, ascending.
func (r *Repository) LoadSales(ctx context.Context, start time.Time, minYear int) ([]models.SalesPoint, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.SalesQuery, minYear)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	totals := make(map[time.Time]decimal.Decimal)
	scanned := 0
	for rows.Next() {
		var (
			rawDate sql.NullString
			market  sql.NullString
			sales   decimal.NullDecimal
		)
		if err := rows.Scan(&rawDate, &market, &sales); err != nil {
			return nil, fmt.Errorf("failed to scan sales row: %w", err)
		}
		scanned++
		if !rawDate.Valid {
			continue
		}
		date, err := parseDate(rawDate.String)
		if err != nil {
			return nil, err
		}
		sum := totals[date]
		if sales.Valid {
			sum = sum.Add(sales.Decimal)
		}
		totals[date] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sales rows: %w", err)
	}

	start = truncateDay(start)
	series := make([]models.SalesPoint, 0, len(totals))
	for date, sum := range totals {
		if sum.IsZero() || date.Before(start) {
			continue
		}
		series = append(series, models.SalesPoint{Date: date, Sales: sum.InexactFloat64()})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })

	r.log.WithFields(logrus.Fields{
		"rows":     scanned,
		"dates":    len(series),
		"start":    start.Format("2006-01-02"),
		"min_year": minYear,
	}).Info("Sales loaded")
	return series, nil
}

// EnsureIntervalTable creates the confidence interval table if it does not exist
func (r *Repository) EnsureIntervalTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.dialect.CreateIntervalTable); err != nil {
		return fmt.Errorf("failed to create %s: %w", warehouse.IntervalTable, err)
	}
	return nil
}

// InsertConfidenceIntervals appends rows to the interval table in one transaction.
// Existing rows are never updated, so a rerun duplicates them.
func (r *Repository) InsertConfidenceIntervals(ctx context.Context, rows []models.ConfidenceRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if r.dialect.UsesCopy() {
		err = r.copyIntervals(ctx, tx, rows)
	} else {
		err = r.insertIntervals(ctx, tx, rows)
	}
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit confidence intervals: %w", err)
	}

	r.log.Infof("Inserted %d rows into %s", len(rows), warehouse.IntervalTable)
	return int64(len(rows)), nil
}

func (r *Repository) insertIntervals(ctx context.Context, tx *sql.Tx, rows []models.ConfidenceRow) error {
	for from := 0; from < len(rows); from += insertBatchSize {
		to := from + insertBatchSize
		if to > len(rows) {
			to = len(rows)
		}
		batch := rows[from:to]

		var query strings.Builder
		query.WriteString(r.dialect.InsertInterval)
		args := make([]interface{}, 0, 4*len(batch))
		for i, row := range batch {
			if i > 0 {
				query.WriteString(", ")
			}
			n := len(args)
			fmt.Fprintf(&query, "(%s, %s, %s, %s)",
				r.dialect.Placeholder(n+1), r.dialect.Placeholder(n+2),
				r.dialect.Placeholder(n+3), r.dialect.Placeholder(n+4))
			args = append(args, row.Date.Format("2006-01-02"), row.LowerBound, row.UpperBound, row.ConfidenceLevel)
		}

		if _, err := tx.ExecContext(ctx, query.String(), args...); err != nil {
			return fmt.Errorf("failed to insert confidence intervals: %w", err)
		}
	}
	return nil
}

func (r *Repository) copyIntervals(ctx context.Context, tx *sql.Tx, rows []models.ConfidenceRow) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(warehouse.IntervalTable,
		"DATE", "LOWER_BOUND", "UPPER_BOUND", "CONFIDENCE_LEVEL"))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Date, row.LowerBound, row.UpperBound, row.ConfidenceLevel); err != nil {
			return fmt.Errorf("failed to copy confidence interval: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	return nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return truncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse sales date %q", raw)
}

// truncateDay maps t to midnight UTC of its calendar date
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
