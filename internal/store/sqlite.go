package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The store uses a single connection so per-connection pragmas such as
// foreign_keys apply to every statement.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS coins (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	source         TEXT NOT NULL DEFAULT 'auto',
	detail_url     TEXT UNIQUE,
	official_links TEXT NOT NULL DEFAULT '{}',
	status         TEXT NOT NULL DEFAULT 'pending',
	first_seen     DATETIME NOT NULL,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL,
	UNIQUE (name, symbol)
);

CREATE TABLE IF NOT EXISTS pages (
	id           TEXT PRIMARY KEY,
	coin_id      TEXT NOT NULL REFERENCES coins(id) ON DELETE CASCADE,
	link_type    TEXT NOT NULL,
	url          TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	http_status  INTEGER NOT NULL DEFAULT 0,
	title        TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	excerpt      TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	fetched_at   DATETIME NOT NULL,
	UNIQUE (coin_id, url)
);

CREATE TABLE IF NOT EXISTS facts (
	id         TEXT PRIMARY KEY,
	coin_id    TEXT NOT NULL REFERENCES coins(id) ON DELETE CASCADE,
	extracted  TEXT NOT NULL,
	sources    TEXT NOT NULL DEFAULT '[]',
	model      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scores (
	id               TEXT PRIMARY KEY,
	coin_id          TEXT NOT NULL REFERENCES coins(id) ON DELETE CASCADE,
	overall          REAL NOT NULL,
	overall_cap      REAL,
	confidence       REAL NOT NULL,
	pillars          TEXT NOT NULL DEFAULT '{}',
	sub_scores       TEXT NOT NULL DEFAULT '{}',
	penalties        REAL NOT NULL DEFAULT 0,
	red_flags        TEXT NOT NULL DEFAULT '[]',
	green_flags      TEXT NOT NULL DEFAULT '[]',
	summary          TEXT NOT NULL DEFAULT '',
	strategy_version TEXT NOT NULL DEFAULT '',
	weights_hash     TEXT NOT NULL DEFAULT '',
	as_of            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS deep_analysis (
	id         TEXT PRIMARY KEY,
	coin_id    TEXT NOT NULL REFERENCES coins(id) ON DELETE CASCADE,
	sections   TEXT NOT NULL,
	summary    TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL DEFAULT '',
	failed     INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	id               INTEGER PRIMARY KEY CHECK (id = 1),
	weights          TEXT NOT NULL,
	hybrid_mode      INTEGER NOT NULL DEFAULT 0,
	allowed_domains  TEXT NOT NULL DEFAULT '[]',
	strategy_version TEXT NOT NULL DEFAULT '',
	user_api_key     TEXT NOT NULL DEFAULT '',
	updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_coins_status ON coins(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_pages_coin ON pages(coin_id);
CREATE INDEX IF NOT EXISTS idx_facts_coin ON facts(coin_id, created_at);
CREATE INDEX IF NOT EXISTS idx_scores_coin ON scores(coin_id, as_of);
CREATE INDEX IF NOT EXISTS idx_deep_analysis_coin ON deep_analysis(coin_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const coinColumns = `id, name, symbol, source, detail_url, official_links, status, first_seen, created_at, updated_at`

func (s *SQLiteStore) CreateCoin(ctx context.Context, coin *model.Coin) error {
	prepareCoin(coin, uuid.New().String(), time.Now().UTC())

	linksJSON, err := json.Marshal(coin.OfficialLinks)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal links")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO coins (`+coinColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		coin.ID, coin.Name, coin.Symbol, string(coin.Source), nullString(coin.DetailURL),
		string(linksJSON), string(coin.Status), coin.FirstSeen, coin.CreatedAt, coin.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return eris.Wrapf(ErrDuplicateCoin, "sqlite: insert coin %s/%s", coin.Name, coin.Symbol)
		}
		return eris.Wrap(err, "sqlite: insert coin")
	}
	return nil
}

func (s *SQLiteStore) GetCoin(ctx context.Context, id string) (*model.Coin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+coinColumns+` FROM coins WHERE id = ?`, id)
	c, err := scanCoin(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get coin %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) FindCoinByDetailURL(ctx context.Context, detailURL string) (*model.Coin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+coinColumns+` FROM coins WHERE detail_url = ?`, detailURL)
	return optionalCoin(scanCoin(row))
}

func (s *SQLiteStore) FindCoinByNameSymbol(ctx context.Context, name, symbol string) (*model.Coin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+coinColumns+` FROM coins WHERE name = ? AND symbol = ?`, name, symbol)
	return optionalCoin(scanCoin(row))
}

func (s *SQLiteStore) ListCoins(ctx context.Context, filter CoinFilter) ([]model.Coin, error) {
	query := `SELECT ` + coinColumns + ` FROM coins WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += orderClause(filter.Order)
	query += ` LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit, 100))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	return s.queryCoins(ctx, query, args...)
}

func (s *SQLiteStore) ListStuckCoins(ctx context.Context, statuses []model.CoinStatus, idleBefore time.Time) ([]model.Coin, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	args := make([]any, 0, len(statuses)+1)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	args = append(args, idleBefore.UTC())

	return s.queryCoins(ctx,
		`SELECT `+coinColumns+` FROM coins WHERE status IN (`+placeholders+`) AND updated_at < ? ORDER BY updated_at ASC`,
		args...,
	)
}

func (s *SQLiteStore) queryCoins(ctx context.Context, query string, args ...any) ([]model.Coin, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list coins")
	}
	defer rows.Close()

	var coins []model.Coin
	for rows.Next() {
		c, err := scanCoin(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan coin")
		}
		coins = append(coins, *c)
	}
	return coins, eris.Wrap(rows.Err(), "sqlite: list coins iterate")
}

func (s *SQLiteStore) UpdateCoinLinks(ctx context.Context, id string, links model.Links) error {
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal links")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE coins SET official_links = ?, updated_at = ? WHERE id = ?`,
		string(linksJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update coin links %s", id)
	}
	return checkRowsAffected(res, "coin", id)
}

func (s *SQLiteStore) TransitionCoin(ctx context.Context, id string, from, to model.CoinStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE coins SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: transition coin %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrStatusConflict, "sqlite: coin %s not in status %s", id, from)
	}
	return nil
}

func (s *SQLiteStore) TouchCoin(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE coins SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch coin %s", id)
	}
	return checkRowsAffected(res, "coin", id)
}

func (s *SQLiteStore) ResetCoin(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin reset")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"pages", "facts", "scores"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE coin_id = ?`, id); err != nil {
			return eris.Wrapf(err, "sqlite: reset coin %s: clear %s", id, table)
		}
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE coins SET status = ?, updated_at = ? WHERE id = ?`,
		string(model.CoinStatusPending), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reset coin %s", id)
	}
	if err := checkRowsAffected(res, "coin", id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit reset")
}

func (s *SQLiteStore) DeleteCoin(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM coins WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete coin %s", id)
	}
	return checkRowsAffected(res, "coin", id)
}

func (s *SQLiteStore) CountCoinsByStatus(ctx context.Context) (map[model.CoinStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM coins GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count coins")
	}
	defer rows.Close()

	counts := make(map[model.CoinStatus]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.CoinStatus(st)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count coins iterate")
}

func (s *SQLiteStore) UpsertPage(ctx context.Context, p *model.Page) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.FetchedAt.IsZero() {
		p.FetchedAt = time.Now().UTC()
	}

	// RETURNING id reports the surviving row id when the (coin_id, url) pair already existed.
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO pages (id, coin_id, link_type, url, status, http_status, title, content, excerpt, content_hash, error, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (coin_id, url) DO UPDATE SET
			link_type = excluded.link_type,
			status = excluded.status,
			http_status = excluded.http_status,
			title = excluded.title,
			content = excluded.content,
			excerpt = excluded.excerpt,
			content_hash = excluded.content_hash,
			error = excluded.error,
			fetched_at = excluded.fetched_at
		 RETURNING id`,
		p.ID, p.CoinID, string(p.LinkType), p.URL, string(p.Status), p.HTTPStatus,
		p.Title, p.Content, p.Excerpt, p.Hash, p.Error, p.FetchedAt,
	).Scan(&p.ID)
	return eris.Wrapf(err, "sqlite: upsert page %s", p.URL)
}

func (s *SQLiteStore) ListPages(ctx context.Context, coinID string) ([]model.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, coin_id, link_type, url, status, http_status, title, content, excerpt, content_hash, error, fetched_at
		 FROM pages WHERE coin_id = ? ORDER BY fetched_at ASC, url ASC`,
		coinID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pages")
	}
	defer rows.Close()

	var pages []model.Page
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.ID, &p.CoinID, &p.LinkType, &p.URL, &p.Status, &p.HTTPStatus,
			&p.Title, &p.Content, &p.Excerpt, &p.Hash, &p.Error, &p.FetchedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan page")
		}
		pages = append(pages, p)
	}
	return pages, eris.Wrap(rows.Err(), "sqlite: list pages iterate")
}

func (s *SQLiteStore) InsertFacts(ctx context.Context, rec *model.FactRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now().UTC()

	extracted, err := json.Marshal(rec.Extracted)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal facts")
	}
	sources, err := json.Marshal(nonNil(rec.Sources))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sources")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO facts (id, coin_id, extracted, sources, model, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CoinID, string(extracted), string(sources), rec.Model, rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert facts")
}

func (s *SQLiteStore) LatestFacts(ctx context.Context, coinID string) (*model.FactRecord, error) {
	var rec model.FactRecord
	var extracted, sources string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, coin_id, extracted, sources, model, created_at FROM facts
		 WHERE coin_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		coinID,
	).Scan(&rec.ID, &rec.CoinID, &extracted, &sources, &rec.Model, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest facts")
	}
	if err := json.Unmarshal([]byte(extracted), &rec.Extracted); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal facts")
	}
	if err := json.Unmarshal([]byte(sources), &rec.Sources); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal sources")
	}
	return &rec, nil
}

func (s *SQLiteStore) InsertScore(ctx context.Context, sc *model.Score) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.AsOf.IsZero() {
		sc.AsOf = time.Now().UTC()
	}

	enc, err := encodeScore(sc)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal score")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scores (id, coin_id, overall, overall_cap, confidence, pillars, sub_scores, penalties,
			red_flags, green_flags, summary, strategy_version, weights_hash, as_of)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.CoinID, sc.Overall, sc.OverallCap, sc.Confidence, string(enc.pillars), string(enc.subScores),
		sc.Penalties, string(enc.redFlags), string(enc.greenFlags), sc.Summary, sc.StrategyVersion,
		sc.WeightsHash, sc.AsOf,
	)
	return eris.Wrap(err, "sqlite: insert score")
}

const scoreColumns = `id, coin_id, overall, overall_cap, confidence, pillars, sub_scores, penalties,
	red_flags, green_flags, summary, strategy_version, weights_hash, as_of`

func (s *SQLiteStore) LatestScore(ctx context.Context, coinID string) (*model.Score, error) {
	scores, err := s.ListScores(ctx, coinID, 1)
	if err != nil || len(scores) == 0 {
		return nil, err
	}
	return &scores[0], nil
}

func (s *SQLiteStore) ListScores(ctx context.Context, coinID string, limit int) ([]model.Score, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scoreColumns+` FROM scores WHERE coin_id = ? ORDER BY as_of DESC, rowid DESC LIMIT ?`,
		coinID, limitOrDefault(limit, 50),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scores")
	}
	defer rows.Close()

	var out []model.Score
	for rows.Next() {
		var sc model.Score
		var capVal sql.NullFloat64
		var enc encodedScore
		var pillars, subScores, red, green string
		if err := rows.Scan(&sc.ID, &sc.CoinID, &sc.Overall, &capVal, &sc.Confidence, &pillars, &subScores,
			&sc.Penalties, &red, &green, &sc.Summary, &sc.StrategyVersion, &sc.WeightsHash, &sc.AsOf); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		if capVal.Valid {
			sc.OverallCap = &capVal.Float64
		}
		enc.pillars, enc.subScores, enc.redFlags, enc.greenFlags = []byte(pillars), []byte(subScores), []byte(red), []byte(green)
		if err := enc.decodeInto(&sc); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal score")
		}
		out = append(out, sc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list scores iterate")
}

func (s *SQLiteStore) InsertDeepAnalysis(ctx context.Context, da *model.DeepAnalysis) error {
	if da.ID == "" {
		da.ID = uuid.New().String()
	}
	da.CreatedAt = time.Now().UTC()

	sections, err := json.Marshal(sectionsOf(da))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal deep analysis")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deep_analysis (id, coin_id, sections, summary, model, failed, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		da.ID, da.CoinID, string(sections), da.Summary, da.Model, da.Failed, da.Error, da.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert deep analysis")
}

func (s *SQLiteStore) LatestDeepAnalysis(ctx context.Context, coinID string) (*model.DeepAnalysis, error) {
	var da model.DeepAnalysis
	var sections string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, coin_id, sections, summary, model, failed, error, created_at FROM deep_analysis
		 WHERE coin_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		coinID,
	).Scan(&da.ID, &da.CoinID, &sections, &da.Summary, &da.Model, &da.Failed, &da.Error, &da.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest deep analysis")
	}
	var sec analysisSections
	if err := json.Unmarshal([]byte(sections), &sec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal deep analysis")
	}
	sec.apply(&da)
	return &da, nil
}

func (s *SQLiteStore) GetSettings(ctx context.Context) (*model.Settings, error) {
	var st model.Settings
	var weights, domains string
	err := s.db.QueryRowContext(ctx,
		`SELECT weights, hybrid_mode, allowed_domains, strategy_version, user_api_key, updated_at FROM settings WHERE id = 1`,
	).Scan(&weights, &st.HybridMode, &domains, &st.StrategyVersion, &st.UserAPIKey, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		def := model.DefaultSettings()
		return &def, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get settings")
	}
	if err := json.Unmarshal([]byte(weights), &st.Weights); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal weights")
	}
	if err := json.Unmarshal([]byte(domains), &st.AllowedDomains); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal allowed domains")
	}
	return settingsOrDefault(&st), nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, st *model.Settings) error {
	st.UpdatedAt = time.Now().UTC()
	weights, err := json.Marshal(st.Weights)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal weights")
	}
	domains, err := json.Marshal(nonNil(st.AllowedDomains))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal allowed domains")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (id, weights, hybrid_mode, allowed_domains, strategy_version, user_api_key, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			weights = excluded.weights,
			hybrid_mode = excluded.hybrid_mode,
			allowed_domains = excluded.allowed_domains,
			strategy_version = excluded.strategy_version,
			user_api_key = excluded.user_api_key,
			updated_at = excluded.updated_at`,
		string(weights), st.HybridMode, string(domains), st.StrategyVersion, st.UserAPIKey, st.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: save settings")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCoin(row scannable) (*model.Coin, error) {
	var c model.Coin
	var detailURL sql.NullString
	var links string

	err := row.Scan(&c.ID, &c.Name, &c.Symbol, &c.Source, &detailURL, &links,
		&c.Status, &c.FirstSeen, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.DetailURL = detailURL.String
	if err := json.Unmarshal([]byte(links), &c.OfficialLinks); err != nil {
		return nil, eris.Wrap(err, "unmarshal official links")
	}
	if c.OfficialLinks == nil {
		c.OfficialLinks = model.Links{}
	}
	return &c, nil
}

// optionalCoin converts ErrNotFound into a nil coin.
func optionalCoin(c *model.Coin, err error) (*model.Coin, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: find coin")
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
