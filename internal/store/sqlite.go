package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/finsight/backend/internal/model"
)

// SQLiteStore implements Store on a local SQLite database. Dates are stored
// as ISO-8601 TEXT and structured payloads as JSON TEXT.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer; modernc's driver returns SQLITE_BUSY under write
	// contention otherwise.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			tx_date    TEXT NOT NULL,
			amount     REAL NOT NULL,
			label      TEXT NOT NULL DEFAULT '',
			notes      TEXT NOT NULL DEFAULT '',
			recurring  INTEGER NOT NULL DEFAULT 0,
			series_id  INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_user_date ON transactions(user_id, tx_date)`,

		`CREATE TABLE IF NOT EXISTS budget_goals (
			user_id TEXT NOT NULL,
			month   TEXT NOT NULL,
			amount  REAL NOT NULL,
			PRIMARY KEY (user_id, month)
		)`,

		`CREATE TABLE IF NOT EXISTS insights (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			type         TEXT NOT NULL,
			priority     TEXT NOT NULL,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL,
			data         TEXT,
			action_url   TEXT NOT NULL DEFAULT '',
			is_read      INTEGER NOT NULL DEFAULT 0,
			is_dismissed INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL,
			expires_at   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_user ON insights(user_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS health_scores (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id       TEXT NOT NULL,
			score         REAL NOT NULL,
			components    TEXT NOT NULL,
			trend         TEXT NOT NULL,
			calculated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_health_user ON health_scores(user_id, calculated_at)`,

		`CREATE TABLE IF NOT EXISTS spending_benchmarks (
			category        TEXT NOT NULL,
			demographic     TEXT NOT NULL,
			median_amount   REAL NOT NULL,
			average_percent REAL NOT NULL,
			data            TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			PRIMARY KEY (category, demographic)
		)`,

		`CREATE TABLE IF NOT EXISTS user_preferences (
			user_id                TEXT PRIMARY KEY,
			insights_enabled       INTEGER NOT NULL DEFAULT 1,
			peer_comparison_opt_in INTEGER NOT NULL DEFAULT 1
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339Nano
)

// Transaction operations

func (s *SQLiteStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	if tx.ID != 0 {
		_, err := s.db.ExecContext(ctx, `INSERT INTO transactions
			(id, user_id, tx_date, amount, label, notes, recurring, series_id)
			VALUES (?,?,?,?,?,?,?,?)`,
			tx.ID, tx.UserID, tx.TxDate.Format(dateLayout), tx.Amount,
			tx.Label, tx.Notes, tx.Recurring, tx.SeriesID,
		)
		return err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO transactions
		(user_id, tx_date, amount, label, notes, recurring, series_id)
		VALUES (?,?,?,?,?,?,?)`,
		tx.UserID, tx.TxDate.Format(dateLayout), tx.Amount,
		tx.Label, tx.Notes, tx.Recurring, tx.SeriesID,
	)
	if err != nil {
		return err
	}
	tx.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, userID string, start, end *time.Time) ([]*model.Transaction, error) {
	query := `SELECT id, user_id, tx_date, amount, label, notes, recurring, series_id
		FROM transactions WHERE user_id = ?`
	args := []any{userID}
	if start != nil {
		query += " AND tx_date >= ?"
		args = append(args, start.Format(dateLayout))
	}
	if end != nil {
		query += " AND tx_date <= ?"
		args = append(args, end.Format(dateLayout))
	}
	query += " ORDER BY tx_date ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		var tx model.Transaction
		var date string
		if err := rows.Scan(&tx.ID, &tx.UserID, &date, &tx.Amount, &tx.Label, &tx.Notes, &tx.Recurring, &tx.SeriesID); err != nil {
			return nil, err
		}
		if tx.TxDate, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("parse tx_date %q: %w", date, err)
		}
		out = append(out, &tx)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LatestTransactionDate(ctx context.Context, userID string) (time.Time, error) {
	var date sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(tx_date) FROM transactions WHERE user_id = ?`, userID,
	).Scan(&date)
	if err != nil {
		return time.Time{}, err
	}
	if !date.Valid {
		return time.Time{}, ErrNotFound
	}
	return time.Parse(dateLayout, date.String)
}

// Budget goal operations

func (s *SQLiteStore) UpsertBudgetGoal(ctx context.Context, goal *model.BudgetGoal) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO budget_goals (user_id, month, amount)
		VALUES (?,?,?)
		ON CONFLICT(user_id, month) DO UPDATE SET amount = excluded.amount`,
		goal.UserID, model.MonthStart(goal.Month).Format(dateLayout), goal.Amount,
	)
	return err
}

func (s *SQLiteStore) GetBudgetGoal(ctx context.Context, userID string, month time.Time) (*model.BudgetGoal, error) {
	goal := &model.BudgetGoal{UserID: userID, Month: model.MonthStart(month)}
	err := s.db.QueryRowContext(ctx,
		`SELECT amount FROM budget_goals WHERE user_id = ? AND month = ?`,
		userID, goal.Month.Format(dateLayout),
	).Scan(&goal.Amount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return goal, nil
}

func (s *SQLiteStore) ListBudgetGoals(ctx context.Context, userID string, since time.Time) ([]*model.BudgetGoal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT month, amount FROM budget_goals WHERE user_id = ? AND month >= ? ORDER BY month ASC`,
		userID, model.MonthStart(since).Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list budget goals: %w", err)
	}
	defer rows.Close()

	var out []*model.BudgetGoal
	for rows.Next() {
		goal := &model.BudgetGoal{UserID: userID}
		var month string
		if err := rows.Scan(&month, &goal.Amount); err != nil {
			return nil, err
		}
		if goal.Month, err = time.Parse(dateLayout, month); err != nil {
			return nil, fmt.Errorf("parse month %q: %w", month, err)
		}
		out = append(out, goal)
	}
	return out, rows.Err()
}

// Insight operations

func (s *SQLiteStore) CreateInsight(ctx context.Context, insight *model.Insight) error {
	if insight.ID == "" {
		insight.ID = uuid.New().String()
	}
	var data any
	if insight.Data != nil {
		b, err := json.Marshal(insight.Data)
		if err != nil {
			return fmt.Errorf("marshal insight data: %w", err)
		}
		data = string(b)
	}
	var expires any
	if insight.ExpiresAt != nil {
		expires = insight.ExpiresAt.Format(timeLayout)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO insights
		(id, user_id, type, priority, title, description, data, action_url, is_read, is_dismissed, created_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		insight.ID, insight.UserID, string(insight.Type), string(insight.Priority),
		insight.Title, insight.Description, data, insight.ActionURL,
		insight.IsRead, insight.IsDismissed, insight.CreatedAt.Format(timeLayout), expires,
	)
	return err
}

func (s *SQLiteStore) ListInsights(ctx context.Context, userID string, filter InsightFilter) ([]*model.Insight, error) {
	var conds []string
	args := []any{userID}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.UnreadOnly {
		conds = append(conds, "is_read = 0")
	}
	if !filter.IncludeDismissed {
		conds = append(conds, "is_dismissed = 0")
	}

	query := `SELECT id, user_id, type, priority, title, description, data, action_url, is_read, is_dismissed, created_at, expires_at
		FROM insights WHERE user_id = ?`
	if len(conds) > 0 {
		query += " AND " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY CASE priority
			WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0
		END DESC, created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	var out []*model.Insight
	for rows.Next() {
		ins, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

func scanInsight(rows *sql.Rows) (*model.Insight, error) {
	var ins model.Insight
	var typ, priority, created string
	var data, expires sql.NullString
	err := rows.Scan(&ins.ID, &ins.UserID, &typ, &priority, &ins.Title, &ins.Description,
		&data, &ins.ActionURL, &ins.IsRead, &ins.IsDismissed, &created, &expires)
	if err != nil {
		return nil, err
	}
	ins.Type = model.InsightType(typ)
	ins.Priority = model.InsightPriority(priority)
	if ins.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	if expires.Valid {
		t, err := time.Parse(timeLayout, expires.String)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at %q: %w", expires.String, err)
		}
		ins.ExpiresAt = &t
	}
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &ins.Data); err != nil {
			return nil, fmt.Errorf("unmarshal insight data: %w", err)
		}
	}
	return &ins, nil
}

func (s *SQLiteStore) HasRecentInsight(ctx context.Context, userID string, typ model.InsightType, title string, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM insights WHERE user_id = ? AND type = ? AND title = ? AND created_at >= ?`,
		userID, string(typ), title, since.Format(timeLayout),
	).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) MarkInsightRead(ctx context.Context, userID, insightID string) error {
	return s.flagInsight(ctx, userID, insightID, "is_read")
}

func (s *SQLiteStore) DismissInsight(ctx context.Context, userID, insightID string) error {
	return s.flagInsight(ctx, userID, insightID, "is_dismissed")
}

func (s *SQLiteStore) flagInsight(ctx context.Context, userID, insightID, column string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE insights SET `+column+` = 1 WHERE id = ? AND user_id = ?`,
		insightID, userID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteInsightsBefore(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM insights WHERE user_id = ? AND created_at < ?`,
		userID, cutoff.Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Health score operations

func (s *SQLiteStore) CreateHealthScore(ctx context.Context, score *model.FinancialHealthScore) error {
	components, err := json.Marshal(score.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO health_scores
		(user_id, score, components, trend, calculated_at) VALUES (?,?,?,?,?)`,
		score.UserID, score.Score, string(components), score.Trend,
		score.CalculatedAt.Format(timeLayout),
	)
	return err
}

func (s *SQLiteStore) LatestHealthScore(ctx context.Context, userID string) (*model.FinancialHealthScore, error) {
	score := &model.FinancialHealthScore{UserID: userID}
	var components, calculated string
	err := s.db.QueryRowContext(ctx,
		`SELECT score, components, trend, calculated_at FROM health_scores
		WHERE user_id = ? ORDER BY calculated_at DESC LIMIT 1`, userID,
	).Scan(&score.Score, &components, &score.Trend, &calculated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(components), &score.Components); err != nil {
		return nil, fmt.Errorf("unmarshal components: %w", err)
	}
	if score.CalculatedAt, err = time.Parse(timeLayout, calculated); err != nil {
		return nil, fmt.Errorf("parse calculated_at %q: %w", calculated, err)
	}
	return score, nil
}

// Benchmark operations

func (s *SQLiteStore) UpsertBenchmark(ctx context.Context, benchmark *model.SpendingBenchmark) error {
	data, err := json.Marshal(benchmark.Data)
	if err != nil {
		return fmt.Errorf("marshal benchmark data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO spending_benchmarks
		(category, demographic, median_amount, average_percent, data, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(category, demographic) DO UPDATE SET
			median_amount = excluded.median_amount,
			average_percent = excluded.average_percent,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		benchmark.Category, benchmark.Demographic, benchmark.MedianAmount,
		benchmark.AveragePercent, string(data), benchmark.UpdatedAt.Format(timeLayout),
	)
	return err
}

func (s *SQLiteStore) GetBenchmark(ctx context.Context, category, demographic string) (*model.SpendingBenchmark, error) {
	b := &model.SpendingBenchmark{Category: category, Demographic: demographic}
	var data, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT median_amount, average_percent, data, updated_at FROM spending_benchmarks
		WHERE category = ? AND demographic = ?`, category, demographic,
	).Scan(&b.MedianAmount, &b.AveragePercent, &data, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &b.Data); err != nil {
		return nil, fmt.Errorf("unmarshal benchmark data: %w", err)
	}
	if b.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updated, err)
	}
	return b, nil
}

// User operations

func (s *SQLiteStore) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM transactions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetUserPreferences(ctx context.Context, userID string) (*model.UserPreferences, error) {
	prefs := &model.UserPreferences{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT insights_enabled, peer_comparison_opt_in FROM user_preferences WHERE user_id = ?`,
		userID,
	).Scan(&prefs.InsightsEnabled, &prefs.PeerComparisonOptIn)
	if err == sql.ErrNoRows {
		return model.DefaultPreferences(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func (s *SQLiteStore) UpsertUserPreferences(ctx context.Context, prefs *model.UserPreferences) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO user_preferences
		(user_id, insights_enabled, peer_comparison_opt_in) VALUES (?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET
			insights_enabled = excluded.insights_enabled,
			peer_comparison_opt_in = excluded.peer_comparison_opt_in`,
		prefs.UserID, prefs.InsightsEnabled, prefs.PeerComparisonOptIn,
	)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
