package journal

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/TheRealDxRed/backtesting/market"
)

// SQLite persists ledger records for later querying. One row per closed
// trade; rows are inserted in close order and never updated.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite journal")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create journal schema")
	}

	return &SQLite{db: db}, nil
}

// SaveAll inserts the given trades in order inside one transaction.
func (j *SQLite) SaveAll(trades []Trade) error {
	tx, err := j.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin journal tx")
	}

	stmt, err := tx.Prepare(`
		INSERT INTO trades
		(trade_id, symbol, side, units, entry_price, exit_price, open_time, close_time, pnl, commission, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare trade insert")
	}
	defer stmt.Close()

	for _, t := range trades {
		_, err := stmt.Exec(
			t.ID, t.Symbol, t.Side.String(), t.Units,
			t.EntryPrice, t.ExitPrice, t.OpenTime, t.CloseTime,
			t.PnL, t.Commission, t.Reason,
		)
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "insert trade %s", t.ID)
		}
	}

	return errors.Wrap(tx.Commit(), "commit journal tx")
}

// TradesClosedBetween returns trades whose close_time is within [start, end),
// in close order.
func (j *SQLite) TradesClosedBetween(start, end time.Time) ([]Trade, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, symbol, side, units, entry_price, exit_price, open_time, close_time, pnl, commission, reason
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "query trades")
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		var side string
		if err := rows.Scan(
			&t.ID, &t.Symbol, &side, &t.Units,
			&t.EntryPrice, &t.ExitPrice, &t.OpenTime, &t.CloseTime,
			&t.PnL, &t.Commission, &t.Reason,
		); err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}
		t.Side = sideFromString(side)
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "iterate trades")
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func sideFromString(s string) market.Side {
	if s == "short" {
		return market.Short
	}
	return market.Long
}
