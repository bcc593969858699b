package warehouse

import (
	"fmt"

	"github.com/Dan9191/sales-forecast/internal/config"
)

// IntervalTable is the append-only sink for confidence intervals
const IntervalTable = "SALES_CONFIDENCE_INTERVALS"

// Dialect holds the SQL that differs between warehouse engines
type Dialect struct {
	Name         string
	VersionQuery string
	// SalesQuery returns (date, code_marche, sales) rows for years >= the single bound parameter
	SalesQuery          string
	CreateIntervalTable string
	// InsertInterval is the statement prefix of a multi-row insert; empty when COPY is used
	InsertInterval string
}

// Placeholder returns the n-th (1-based) bind parameter marker
func (d Dialect) Placeholder(n int) string {
	if d.Name == config.DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// UsesCopy reports whether interval rows are loaded with COPY instead of INSERT
func (d Dialect) UsesCopy() bool {
	return d.InsertInterval == ""
}

var dialects = map[string]Dialect{
	config.DriverSnowflake: {
		Name:         config.DriverSnowflake,
		VersionQuery: "SELECT current_version()",
		SalesQuery: `
		SELECT DATE(FK_DATE, 'YYYYMMDD') AS date, "code_marche", "CA" AS sales
		FROM sales_data
		WHERE year(FK_DATE) >= ?
		ORDER BY date ASC`,
		CreateIntervalTable: `
		CREATE TABLE IF NOT EXISTS SALES_CONFIDENCE_INTERVALS (
			DATE DATE, LOWER_BOUND FLOAT, UPPER_BOUND FLOAT, CONFIDENCE_LEVEL FLOAT
		)`,
		InsertInterval: `INSERT INTO SALES_CONFIDENCE_INTERVALS (DATE, LOWER_BOUND, UPPER_BOUND, CONFIDENCE_LEVEL) VALUES `,
	},
	config.DriverPostgres: {
		Name:         config.DriverPostgres,
		VersionQuery: "SELECT version()",
		SalesQuery: `
		SELECT to_date(fk_date::text, 'YYYYMMDD') AS date, code_marche, ca AS sales
		FROM sales_data
		WHERE extract(year FROM to_date(fk_date::text, 'YYYYMMDD')) >= $1
		ORDER BY date ASC`,
		CreateIntervalTable: `
		CREATE TABLE IF NOT EXISTS "SALES_CONFIDENCE_INTERVALS" (
			"DATE" date, "LOWER_BOUND" double precision,
			"UPPER_BOUND" double precision, "CONFIDENCE_LEVEL" double precision
		)`,
		// Inserts go through COPY, see repository
		InsertInterval: "",
	},
	config.DriverSQLite: {
		Name:         config.DriverSQLite,
		VersionQuery: "SELECT sqlite_version()",
		SalesQuery: `
		SELECT substr(FK_DATE, 1, 4) || '-' || substr(FK_DATE, 5, 2) || '-' || substr(FK_DATE, 7, 2) AS date,
			code_marche, CA AS sales
		FROM sales_data
		WHERE CAST(substr(FK_DATE, 1, 4) AS INTEGER) >= ?
		ORDER BY date ASC`,
		CreateIntervalTable: `
		CREATE TABLE IF NOT EXISTS SALES_CONFIDENCE_INTERVALS (
			DATE TEXT, LOWER_BOUND REAL, UPPER_BOUND REAL, CONFIDENCE_LEVEL REAL
		)`,
		InsertInterval: `INSERT INTO SALES_CONFIDENCE_INTERVALS (DATE, LOWER_BOUND, UPPER_BOUND, CONFIDENCE_LEVEL) VALUES `,
	},
}

// DialectFor returns the dialect of a configured driver
func DialectFor(driver string) (Dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported warehouse driver: %s", driver)
	}
	return d, nil
}
