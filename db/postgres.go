package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"shortlink-service/models"
)

// PostgresDB is the persistence layer for short links and visit records.
type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{db: db}, nil
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Ping checks database connectivity.
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Migrate creates the tables and indexes if they do not exist yet.
func (p *PostgresDB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS links (
			id BIGSERIAL PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			original_url TEXT NOT NULL,
			user_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ,
			max_clicks BIGINT,
			current_clicks BIGINT NOT NULL DEFAULT 0,
			password_hash TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS visits (
			id UUID PRIMARY KEY,
			link_id BIGINT NOT NULL REFERENCES links(id) ON DELETE CASCADE,
			slug TEXT NOT NULL,
			visited_at TIMESTAMPTZ NOT NULL,
			visitor_hash TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			referrer TEXT NOT NULL DEFAULT '',
			browser_name TEXT NOT NULL DEFAULT '',
			browser_version TEXT NOT NULL DEFAULT '',
			browser_major TEXT NOT NULL DEFAULT '',
			browser_type TEXT NOT NULL DEFAULT '',
			os_name TEXT NOT NULL DEFAULT '',
			os_version TEXT NOT NULL DEFAULT '',
			device_vendor TEXT NOT NULL DEFAULT '',
			device_model TEXT NOT NULL DEFAULT '',
			device_type TEXT NOT NULL DEFAULT '',
			engine_name TEXT NOT NULL DEFAULT '',
			engine_version TEXT NOT NULL DEFAULT '',
			cpu_arch TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			isp TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_link_time ON visits (link_id, visited_at)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_slug_time ON visits (slug, visited_at)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_link_country ON visits (link_id, country)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_browser ON visits (browser_name)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_device ON visits (device_type)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_os ON visits (os_name)`,
	}
	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const linkColumns = `id, slug, original_url, user_id, created_at, expires_at, max_clicks, current_clicks, password_hash`

func scanLink(row interface{ Scan(...any) error }) (*models.Link, error) {
	link := &models.Link{}
	var userID, passwordHash sql.NullString
	var expiresAt sql.NullTime
	var maxClicks sql.NullInt64

	err := row.Scan(&link.ID, &link.Slug, &link.OriginalURL, &userID, &link.CreatedAt,
		&expiresAt, &maxClicks, &link.CurrentClicks, &passwordHash)
	if err != nil {
		return nil, err
	}

	link.UserID = userID.String
	link.PasswordHash = passwordHash.String
	if expiresAt.Valid {
		t := expiresAt.Time
		link.ExpiresAt = &t
	}
	if maxClicks.Valid {
		n := maxClicks.Int64
		link.MaxClicks = &n
	}
	return link, nil
}

// CreateLink inserts a new link, enforcing slug uniqueness.
func (p *PostgresDB) CreateLink(ctx context.Context, link *models.Link) error {
	query := `INSERT INTO links (slug, original_url, user_id, created_at, expires_at, max_clicks, password_hash)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`

	err := p.db.QueryRowContext(ctx, query,
		link.Slug, link.OriginalURL, nullString(link.UserID), time.Now(),
		nullTime(link.ExpiresAt), nullInt(link.MaxClicks), nullString(link.PasswordHash)).
		Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return &models.DuplicateSlugError{Slug: link.Slug}
		}
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// GetLinkBySlug returns the link for slug or NotFoundError.
func (p *PostgresDB) GetLinkBySlug(ctx context.Context, slug string) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE slug = $1`

	link, err := scanLink(p.db.QueryRowContext(ctx, query, slug))
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Message: "link not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

// GetLinkByID returns the link by its identity or NotFoundError.
func (p *PostgresDB) GetLinkByID(ctx context.Context, id int64) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = $1`

	link, err := scanLink(p.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Message: "link not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

// GetLinkBySlugForOwner returns the link only if it belongs to ownerID.
func (p *PostgresDB) GetLinkBySlugForOwner(ctx context.Context, slug, ownerID string) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE slug = $1 AND user_id = $2`

	link, err := scanLink(p.db.QueryRowContext(ctx, query, slug, ownerID))
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Message: "link not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

// GetLinksByOwner lists an owner's links, newest first.
func (p *PostgresDB) GetLinksByOwner(ctx context.Context, ownerID string) ([]*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []*models.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return links, nil
}

// DeleteLinkForOwner removes a link owned by ownerID. Returns false when no
// matching row existed.
func (p *PostgresDB) DeleteLinkForOwner(ctx context.Context, id int64, ownerID string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM links WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to delete link: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

// IncrementClicks adds one to the click counter as a server-side atomic
// update, so concurrent visits never lose an increment.
func (p *PostgresDB) IncrementClicks(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE links SET current_clicks = current_clicks + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment clicks: %w", err)
	}
	return nil
}

const visitInsert = `INSERT INTO visits (
	id, link_id, slug, visited_at, visitor_hash, ip_address, referrer,
	browser_name, browser_version, browser_major, browser_type,
	os_name, os_version, device_vendor, device_model, device_type,
	engine_name, engine_version, cpu_arch, country, region, city, isp)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`

func visitArgs(v *models.Visit) []any {
	return []any{
		v.ID, v.LinkID, v.Slug, v.Timestamp, v.VisitorHash, v.IPAddress, v.Referrer,
		v.Facets.BrowserName, v.Facets.BrowserVersion, v.Facets.BrowserMajor, v.Facets.BrowserType,
		v.Facets.OSName, v.Facets.OSVersion,
		v.Facets.DeviceVendor, v.Facets.DeviceModel, v.Facets.DeviceType,
		v.Facets.EngineName, v.Facets.EngineVersion, v.Facets.CPUArch,
		v.Location.Country, v.Location.Region, v.Location.City, v.Location.ISP,
	}
}

// InsertVisit writes a single visit record.
func (p *PostgresDB) InsertVisit(ctx context.Context, v *models.Visit) error {
	if _, err := p.db.ExecContext(ctx, visitInsert, visitArgs(v)...); err != nil {
		return fmt.Errorf("failed to insert visit: %w", err)
	}
	return nil
}

// BatchInsertVisits writes a batch of visit records in one transaction.
func (p *PostgresDB) BatchInsertVisits(ctx context.Context, visits []*models.Visit) error {
	if len(visits) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, visitInsert)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, v := range visits {
		if _, err := stmt.ExecContext(ctx, visitArgs(v)...); err != nil {
			return fmt.Errorf("failed to insert visit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CountVisits returns the number of visits for a link within [start, end].
func (p *PostgresDB) CountVisits(ctx context.Context, linkID int64, start, end time.Time) (int64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM visits WHERE link_id = $1 AND visited_at BETWEEN $2 AND $3`,
		linkID, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return count, nil
}

// CountUniqueVisitors returns the number of distinct visitor fingerprints
// for a link within [start, end].
func (p *PostgresDB) CountUniqueVisitors(ctx context.Context, linkID int64, start, end time.Time) (int64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT visitor_hash) FROM visits WHERE link_id = $1 AND visited_at BETWEEN $2 AND $3`,
		linkID, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unique visitors: %w", err)
	}
	return count, nil
}

// VisitsOverTime buckets visit counts by hour or day within [start, end].
func (p *PostgresDB) VisitsOverTime(ctx context.Context, linkID int64, start, end time.Time, bucket string) ([]models.TimePoint, error) {
	var query string
	if bucket == "hour" {
		query = `SELECT DATE_TRUNC('hour', visited_at) AS time_bucket, COUNT(*) AS count
		         FROM visits
		         WHERE link_id = $1 AND visited_at BETWEEN $2 AND $3
		         GROUP BY time_bucket
		         ORDER BY time_bucket ASC`
	} else {
		query = `SELECT DATE_TRUNC('day', visited_at) AS time_bucket, COUNT(*) AS count
		         FROM visits
		         WHERE link_id = $1 AND visited_at BETWEEN $2 AND $3
		         GROUP BY time_bucket
		         ORDER BY time_bucket ASC`
	}

	rows, err := p.db.QueryContext(ctx, query, linkID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits over time: %w", err)
	}
	defer rows.Close()

	var points []models.TimePoint
	for rows.Next() {
		var point models.TimePoint
		if err := rows.Scan(&point.Timestamp, &point.Count); err != nil {
			return nil, fmt.Errorf("failed to scan time point: %w", err)
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return points, nil
}

// breakdownColumns whitelists the dimensions exposed for ranked breakdowns.
var breakdownColumns = map[string]string{
	"country":  "country",
	"region":   "region",
	"referrer": "referrer",
	"browser":  "browser_name",
	"os":       "os_name",
	"device":   "device_type",
}

// TopBreakdown returns raw per-category visit counts for a dimension,
// ordered by count descending. Labeling of empty or internal values is the
// aggregator's concern.
func (p *PostgresDB) TopBreakdown(ctx context.Context, linkID int64, start, end time.Time, dimension string) ([]models.BreakdownRow, error) {
	column, ok := breakdownColumns[dimension]
	if !ok {
		return nil, fmt.Errorf("unknown breakdown dimension: %s", dimension)
	}

	query := fmt.Sprintf(`SELECT %s AS name, COUNT(*) AS count
	          FROM visits
	          WHERE link_id = $1 AND visited_at BETWEEN $2 AND $3
	          GROUP BY name
	          ORDER BY count DESC`, column)

	rows, err := p.db.QueryContext(ctx, query, linkID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s breakdown: %w", dimension, err)
	}
	defer rows.Close()

	var result []models.BreakdownRow
	for rows.Next() {
		var row models.BreakdownRow
		if err := rows.Scan(&row.Name, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

// RecentVisits returns the most recent visits within [start, end], reduced
// to the fields shown in the recent-activity view.
func (p *PostgresDB) RecentVisits(ctx context.Context, linkID int64, start, end time.Time, limit int) ([]models.RecentVisit, error) {
	query := `SELECT visited_at, country, browser_name, os_name, device_type, referrer
	          FROM visits
	          WHERE link_id = $1 AND visited_at BETWEEN $2 AND $3
	          ORDER BY visited_at DESC
	          LIMIT $4`

	rows, err := p.db.QueryContext(ctx, query, linkID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent visits: %w", err)
	}
	defer rows.Close()

	var visits []models.RecentVisit
	for rows.Next() {
		var v models.RecentVisit
		if err := rows.Scan(&v.Timestamp, &v.Country, &v.Browser, &v.OS, &v.Device, &v.Referrer); err != nil {
			return nil, fmt.Errorf("failed to scan recent visit: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return visits, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
