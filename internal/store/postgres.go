package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/michelcools-creator/gem-radar-bot/internal/db"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the hot-path queries prepared on each new connection.
var preparedStatements = map[string]string{
	"get_coin":        `SELECT ` + coinColumns + ` FROM coins WHERE id = $1`,
	"transition_coin": `UPDATE coins SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
	"touch_coin":      `UPDATE coins SET updated_at = $1 WHERE id = $2`,
	"list_pages":      `SELECT ` + pageColumns + ` FROM pages WHERE coin_id = $1 ORDER BY fetched_at ASC, url ASC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(5)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS coins (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	source         TEXT NOT NULL DEFAULT 'auto',
	detail_url     TEXT UNIQUE,
	official_links JSONB NOT NULL DEFAULT '{}',
	status         TEXT NOT NULL DEFAULT 'pending',
	first_seen     TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
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
	fetched_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (coin_id, url)
);

CREATE TABLE IF NOT EXISTS facts (
	id         TEXT PRIMARY KEY,
	coin_id    TEXT NOT NULL REFERENCES coins(id) ON DELETE CASCADE,
	extracted  JSONB NOT NULL,
	sources    JSONB NOT NULL DEFAULT '[]',
	model      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scores (
	id               TEXT PRIMARY KEY,
	coin_id          TEXT NOT NULL REFERENCES coins(id) ON DELETE CASCADE,
	overall          DOUBLE PRECISION NOT NULL,
	overall_cap      DOUBLE PRECISION,
	confidence       DOUBLE PRECISION NOT NULL,
	pillars          JSONB NOT NULL DEFAULT '{}',
	sub_scores       JSONB NOT NULL DEFAULT '{}',
	penalties        DOUBLE PRECISION NOT NULL DEFAULT 0,
	red_flags        JSONB NOT NULL DEFAULT '[]',
	green_flags      JSONB NOT NULL DEFAULT '[]',
	summary          TEXT NOT NULL DEFAULT '',
	strategy_version TEXT NOT NULL DEFAULT '',
	weights_hash     TEXT NOT NULL DEFAULT '',
	as_of            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deep_analysis (
	id         TEXT PRIMARY KEY,
	coin_id    TEXT NOT NULL REFERENCES coins(id) ON DELETE CASCADE,
	sections   JSONB NOT NULL,
	summary    TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL DEFAULT '',
	failed     BOOLEAN NOT NULL DEFAULT false,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS settings (
	id               INTEGER PRIMARY KEY CHECK (id = 1),
	weights          JSONB NOT NULL,
	hybrid_mode      BOOLEAN NOT NULL DEFAULT false,
	allowed_domains  JSONB NOT NULL DEFAULT '[]',
	strategy_version TEXT NOT NULL DEFAULT '',
	user_api_key     TEXT NOT NULL DEFAULT '',
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_coins_status ON coins(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_pages_coin ON pages(coin_id);
CREATE INDEX IF NOT EXISTS idx_facts_coin ON facts(coin_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_scores_coin ON scores(coin_id, as_of DESC);
CREATE INDEX IF NOT EXISTS idx_deep_analysis_coin ON deep_analysis(coin_id, created_at DESC);
`

const pageColumns = `id, coin_id, link_type, url, status, http_status, title, content, excerpt, content_hash, error, fetched_at`

var (
	pageUpsert = db.UpsertConfig{
		Table:        "pages",
		Columns:      strings.Split(strings.ReplaceAll(pageColumns, " ", ""), ","),
		ConflictKeys: []string{"coin_id", "url"},
		UpdateCols: []string{
			"link_type", "status", "http_status", "title", "content",
			"excerpt", "content_hash", "error", "fetched_at",
		},
	}
	settingsUpsert = db.UpsertConfig{
		Table:        "settings",
		Columns:      []string{"id", "weights", "hybrid_mode", "allowed_domains", "strategy_version", "user_api_key", "updated_at"},
		ConflictKeys: []string{"id"},
	}
)

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateCoin(ctx context.Context, coin *model.Coin) error {
	prepareCoin(coin, uuid.New().String(), time.Now().UTC())

	linksJSON, err := json.Marshal(coin.OfficialLinks)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal links")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO coins (`+coinColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		coin.ID, coin.Name, coin.Symbol, string(coin.Source), nullString(coin.DetailURL),
		linksJSON, string(coin.Status), coin.FirstSeen, coin.CreatedAt, coin.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return eris.Wrapf(ErrDuplicateCoin, "postgres: insert coin %s/%s", coin.Name, coin.Symbol)
		}
		return eris.Wrap(err, "postgres: insert coin")
	}
	return nil
}

func (s *PostgresStore) GetCoin(ctx context.Context, id string) (*model.Coin, error) {
	c, err := scanPgCoin(s.pool.QueryRow(ctx, `SELECT `+coinColumns+` FROM coins WHERE id = $1`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get coin %s", id)
	}
	return c, nil
}

func (s *PostgresStore) FindCoinByDetailURL(ctx context.Context, detailURL string) (*model.Coin, error) {
	return optionalCoin(scanPgCoin(s.pool.QueryRow(ctx,
		`SELECT `+coinColumns+` FROM coins WHERE detail_url = $1`, detailURL)))
}

func (s *PostgresStore) FindCoinByNameSymbol(ctx context.Context, name, symbol string) (*model.Coin, error) {
	return optionalCoin(scanPgCoin(s.pool.QueryRow(ctx,
		`SELECT `+coinColumns+` FROM coins WHERE name = $1 AND symbol = $2`, name, symbol)))
}

func (s *PostgresStore) ListCoins(ctx context.Context, filter CoinFilter) ([]model.Coin, error) {
	query := `SELECT ` + coinColumns + ` FROM coins WHERE 1=1`
	var args []any
	argN := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argN)
		args = append(args, string(filter.Status))
		argN++
	}
	query += orderClause(filter.Order)
	query += fmt.Sprintf(` LIMIT $%d`, argN)
	args = append(args, limitOrDefault(filter.Limit, 100))
	argN++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argN)
		args = append(args, filter.Offset)
	}

	return s.queryCoins(ctx, query, args...)
}

func (s *PostgresStore) ListStuckCoins(ctx context.Context, statuses []model.CoinStatus, idleBefore time.Time) ([]model.Coin, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	return s.queryCoins(ctx,
		`SELECT `+coinColumns+` FROM coins WHERE status = ANY($1) AND updated_at < $2 ORDER BY updated_at ASC`,
		names, idleBefore.UTC(),
	)
}

func (s *PostgresStore) queryCoins(ctx context.Context, query string, args ...any) ([]model.Coin, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list coins")
	}
	defer rows.Close()

	var coins []model.Coin
	for rows.Next() {
		c, err := scanPgCoin(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan coin")
		}
		coins = append(coins, *c)
	}
	return coins, eris.Wrap(rows.Err(), "postgres: list coins iterate")
}

func (s *PostgresStore) UpdateCoinLinks(ctx context.Context, id string, links model.Links) error {
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal links")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE coins SET official_links = $1, updated_at = $2 WHERE id = $3`,
		linksJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update coin links %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "coin %s", id)
	}
	return nil
}

func (s *PostgresStore) TransitionCoin(ctx context.Context, id string, from, to model.CoinStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE coins SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: transition coin %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStatusConflict, "postgres: coin %s not in status %s", id, from)
	}
	return nil
}

func (s *PostgresStore) TouchCoin(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE coins SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch coin %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "coin %s", id)
	}
	return nil
}

func (s *PostgresStore) ResetCoin(ctx context.Context, id string) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, table := range []string{"pages", "facts", "scores"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE coin_id = $1`, id); err != nil {
				return eris.Wrapf(err, "postgres: reset coin %s: clear %s", id, table)
			}
		}
		tag, err := tx.Exec(ctx,
			`UPDATE coins SET status = $1, updated_at = $2 WHERE id = $3`,
			string(model.CoinStatusPending), time.Now().UTC(), id,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: reset coin %s", id)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "coin %s", id)
		}
		return nil
	})
}

func (s *PostgresStore) DeleteCoin(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM coins WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete coin %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "coin %s", id)
	}
	return nil
}

func (s *PostgresStore) CountCoinsByStatus(ctx context.Context) (map[model.CoinStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM coins GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count coins")
	}
	defer rows.Close()

	counts := make(map[model.CoinStatus]int)
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.CoinStatus(st)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count coins iterate")
}

func (s *PostgresStore) UpsertPage(ctx context.Context, p *model.Page) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.FetchedAt.IsZero() {
		p.FetchedAt = time.Now().UTC()
	}

	sql, err := db.UpsertSQL(pageUpsert)
	if err != nil {
		return err
	}
	err = s.pool.QueryRow(ctx, sql+` RETURNING id`,
		p.ID, p.CoinID, string(p.LinkType), p.URL, string(p.Status), p.HTTPStatus,
		p.Title, p.Content, p.Excerpt, p.Hash, p.Error, p.FetchedAt,
	).Scan(&p.ID)
	return eris.Wrapf(err, "postgres: upsert page %s", p.URL)
}

func (s *PostgresStore) ListPages(ctx context.Context, coinID string) ([]model.Page, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE coin_id = $1 ORDER BY fetched_at ASC, url ASC`,
		coinID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pages")
	}
	defer rows.Close()

	var pages []model.Page
	for rows.Next() {
		var p model.Page
		var linkType, status string
		if err := rows.Scan(&p.ID, &p.CoinID, &linkType, &p.URL, &status, &p.HTTPStatus,
			&p.Title, &p.Content, &p.Excerpt, &p.Hash, &p.Error, &p.FetchedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan page")
		}
		p.LinkType = model.LinkType(linkType)
		p.Status = model.PageStatus(status)
		pages = append(pages, p)
	}
	return pages, eris.Wrap(rows.Err(), "postgres: list pages iterate")
}

func (s *PostgresStore) InsertFacts(ctx context.Context, rec *model.FactRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now().UTC()

	extracted, err := json.Marshal(rec.Extracted)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal facts")
	}
	sources, err := json.Marshal(nonNil(rec.Sources))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sources")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO facts (id, coin_id, extracted, sources, model, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.CoinID, extracted, sources, rec.Model, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert facts")
}

func (s *PostgresStore) LatestFacts(ctx context.Context, coinID string) (*model.FactRecord, error) {
	var rec model.FactRecord
	var extracted, sources []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, coin_id, extracted, sources, model, created_at FROM facts
		 WHERE coin_id = $1 ORDER BY created_at DESC LIMIT 1`,
		coinID,
	).Scan(&rec.ID, &rec.CoinID, &extracted, &sources, &rec.Model, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest facts")
	}
	if err := json.Unmarshal(extracted, &rec.Extracted); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal facts")
	}
	if err := json.Unmarshal(sources, &rec.Sources); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal sources")
	}
	return &rec, nil
}

func (s *PostgresStore) InsertScore(ctx context.Context, sc *model.Score) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.AsOf.IsZero() {
		sc.AsOf = time.Now().UTC()
	}

	enc, err := encodeScore(sc)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal score")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scores (`+scoreColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sc.ID, sc.CoinID, sc.Overall, sc.OverallCap, sc.Confidence, enc.pillars, enc.subScores,
		sc.Penalties, enc.redFlags, enc.greenFlags, sc.Summary, sc.StrategyVersion, sc.WeightsHash, sc.AsOf,
	)
	return eris.Wrap(err, "postgres: insert score")
}

func (s *PostgresStore) LatestScore(ctx context.Context, coinID string) (*model.Score, error) {
	scores, err := s.ListScores(ctx, coinID, 1)
	if err != nil || len(scores) == 0 {
		return nil, err
	}
	return &scores[0], nil
}

func (s *PostgresStore) ListScores(ctx context.Context, coinID string, limit int) ([]model.Score, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scoreColumns+` FROM scores WHERE coin_id = $1 ORDER BY as_of DESC LIMIT $2`,
		coinID, limitOrDefault(limit, 50),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scores")
	}
	defer rows.Close()

	var out []model.Score
	for rows.Next() {
		var sc model.Score
		var enc encodedScore
		if err := rows.Scan(&sc.ID, &sc.CoinID, &sc.Overall, &sc.OverallCap, &sc.Confidence, &enc.pillars,
			&enc.subScores, &sc.Penalties, &enc.redFlags, &enc.greenFlags, &sc.Summary, &sc.StrategyVersion,
			&sc.WeightsHash, &sc.AsOf); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		if err := enc.decodeInto(&sc); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal score")
		}
		out = append(out, sc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list scores iterate")
}

func (s *PostgresStore) InsertDeepAnalysis(ctx context.Context, da *model.DeepAnalysis) error {
	if da.ID == "" {
		da.ID = uuid.New().String()
	}
	da.CreatedAt = time.Now().UTC()

	sections, err := json.Marshal(sectionsOf(da))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal deep analysis")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO deep_analysis (id, coin_id, sections, summary, model, failed, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		da.ID, da.CoinID, sections, da.Summary, da.Model, da.Failed, da.Error, da.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert deep analysis")
}

func (s *PostgresStore) LatestDeepAnalysis(ctx context.Context, coinID string) (*model.DeepAnalysis, error) {
	var da model.DeepAnalysis
	var sections []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, coin_id, sections, summary, model, failed, error, created_at FROM deep_analysis
		 WHERE coin_id = $1 ORDER BY created_at DESC LIMIT 1`,
		coinID,
	).Scan(&da.ID, &da.CoinID, &sections, &da.Summary, &da.Model, &da.Failed, &da.Error, &da.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest deep analysis")
	}
	var sec analysisSections
	if err := json.Unmarshal(sections, &sec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal deep analysis")
	}
	sec.apply(&da)
	return &da, nil
}

func (s *PostgresStore) GetSettings(ctx context.Context) (*model.Settings, error) {
	var st model.Settings
	var weights, domains []byte
	err := s.pool.QueryRow(ctx,
		`SELECT weights, hybrid_mode, allowed_domains, strategy_version, user_api_key, updated_at FROM settings WHERE id = 1`,
	).Scan(&weights, &st.HybridMode, &domains, &st.StrategyVersion, &st.UserAPIKey, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		def := model.DefaultSettings()
		return &def, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get settings")
	}
	if err := json.Unmarshal(weights, &st.Weights); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal weights")
	}
	if err := json.Unmarshal(domains, &st.AllowedDomains); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal allowed domains")
	}
	return settingsOrDefault(&st), nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, st *model.Settings) error {
	st.UpdatedAt = time.Now().UTC()
	weights, err := json.Marshal(st.Weights)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal weights")
	}
	domains, err := json.Marshal(nonNil(st.AllowedDomains))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal allowed domains")
	}

	_, err = db.Upsert(ctx, s.pool, settingsUpsert,
		1, weights, st.HybridMode, domains, st.StrategyVersion, st.UserAPIKey, st.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: save settings")
}

func scanPgCoin(row pgx.Row) (*model.Coin, error) {
	var c model.Coin
	var detailURL *string
	var source, status string
	var links []byte

	err := row.Scan(&c.ID, &c.Name, &c.Symbol, &source, &detailURL, &links,
		&status, &c.FirstSeen, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Source = model.CoinSource(source)
	c.Status = model.CoinStatus(status)
	if detailURL != nil {
		c.DetailURL = *detailURL
	}
	if len(links) > 0 {
		if err := json.Unmarshal(links, &c.OfficialLinks); err != nil {
			return nil, eris.Wrap(err, "unmarshal official links")
		}
	}
	if c.OfficialLinks == nil {
		c.OfficialLinks = model.Links{}
	}
	return &c, nil
}
