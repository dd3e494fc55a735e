package database

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/franckalain/eatproof/internal/models"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// timeFormat is RFC 3339 with fixed-width nanoseconds so stored timestamps
// sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// RecallFilter narrows the recall listing. Zero values mean "no filter".
type RecallFilter struct {
	Query    string
	Category string
	Severity string
}

// DB interface defines the methods our database should implement
type DB interface {
	SaveScan(ctx context.Context, userID string, scan *models.ScanResponse) error
	RecentScans(ctx context.Context, userID string, limit int) ([]*models.ScanResponse, error)

	CreateUser(ctx context.Context, user *models.User, passwordHash string) error
	UserByEmail(ctx context.Context, email string) (*models.User, string, error)
	UserByID(ctx context.Context, id string) (*models.User, error)

	CreateSession(ctx context.Context, session *models.Session) error
	UserByToken(ctx context.Context, token string) (*models.User, error)

	SaveHealthProfile(ctx context.Context, profile *models.HealthProfile) error
	HealthProfile(ctx context.Context, userID string) (*models.HealthProfile, error)

	Product(ctx context.Context, barcode string) (*models.Product, error)
	Recalls(ctx context.Context, filter RecallFilter) ([]*models.Recall, error)

	Close() error
}

// SQLiteDB implements the DB interface
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Enable foreign keys and WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("error enabling foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("error enabling WAL mode: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

func initializeSchema(db *sql.DB) error {
	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}

	if _, err := db.Exec(string(schemaBytes)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}
	return nil
}

// SaveScan persists a completed scan. userID may be empty for anonymous
// scans; those are stored but never surface in any user's history.
func (s *SQLiteDB) SaveScan(ctx context.Context, userID string, scan *models.ScanResponse) error {
	analysis, err := json.Marshal(scan.Analysis)
	if err != nil {
		return fmt.Errorf("error encoding analysis: %w", err)
	}

	var rawData []byte
	if scan.RawData != nil {
		if rawData, err = json.Marshal(scan.RawData); err != nil {
			return fmt.Errorf("error encoding raw data: %w", err)
		}
	}

	query := `
		INSERT INTO scans (
			id, user_id, barcode, product_score, ingredient_score,
			health_risk_score, safety_score, analysis, raw_data, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		scan.ID, nullable(userID), scan.Barcode,
		scan.ProductScore, scan.IngredientScore, scan.HealthRiskScore, scan.SafetyScore,
		string(analysis), nullableBytes(rawData), scan.CreatedAt.Format(timeFormat),
	)
	return err
}

// RecentScans returns a user's scans, most recent first.
func (s *SQLiteDB) RecentScans(ctx context.Context, userID string, limit int) ([]*models.ScanResponse, error) {
	query := `
		SELECT id, barcode, product_score, ingredient_score, health_risk_score,
			safety_score, analysis, raw_data, created_at
		FROM scans
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.ScanResponse
	for rows.Next() {
		var scan models.ScanResponse
		var analysis string
		var rawData sql.NullString
		var createdAt string

		err := rows.Scan(
			&scan.ID, &scan.Barcode, &scan.ProductScore, &scan.IngredientScore,
			&scan.HealthRiskScore, &scan.SafetyScore, &analysis, &rawData, &createdAt,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(analysis), &scan.Analysis); err != nil {
			return nil, fmt.Errorf("error decoding analysis for scan %s: %w", scan.ID, err)
		}
		if rawData.Valid && rawData.String != "" {
			if err := json.Unmarshal([]byte(rawData.String), &scan.RawData); err != nil {
				return nil, fmt.Errorf("error decoding raw data for scan %s: %w", scan.ID, err)
			}
		}
		scan.CreatedAt, _ = time.Parse(timeFormat, createdAt)

		results = append(results, &scan)
	}
	return results, rows.Err()
}

// CreateUser inserts a new account.
func (s *SQLiteDB) CreateUser(ctx context.Context, user *models.User, passwordHash string) error {
	query := `INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, strings.ToLower(user.Email), user.Name, passwordHash,
		user.CreatedAt.Format(timeFormat))
	return err
}

// UserByEmail returns the user and stored password hash, or (nil, "", nil)
// when the email is unknown.
func (s *SQLiteDB) UserByEmail(ctx context.Context, email string) (*models.User, string, error) {
	query := `SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`

	var user models.User
	var hash, createdAt string
	err := s.db.QueryRowContext(ctx, query, strings.ToLower(email)).Scan(
		&user.ID, &user.Email, &user.Name, &hash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	user.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &user, hash, nil
}

// UserByID returns a user, or nil when the id is unknown.
func (s *SQLiteDB) UserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, email, name, created_at FROM users WHERE id = ?`

	var user models.User
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Email, &user.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &user, nil
}

// CreateSession stores a bearer token.
func (s *SQLiteDB) CreateSession(ctx context.Context, session *models.Session) error {
	query := `INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		session.Token, session.UserID,
		session.CreatedAt.Format(timeFormat), session.ExpiresAt.Format(timeFormat))
	return err
}

// UserByToken resolves a bearer token to its user. Expired or unknown tokens
// return (nil, nil).
func (s *SQLiteDB) UserByToken(ctx context.Context, token string) (*models.User, error) {
	query := `
		SELECT u.id, u.email, u.name, u.created_at, s.expires_at
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.token = ?
	`

	var user models.User
	var createdAt, expiresAt string
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&user.ID, &user.Email, &user.Name, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	expiry, err := time.Parse(timeFormat, expiresAt)
	if err != nil || time.Now().After(expiry) {
		return nil, nil
	}
	user.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &user, nil
}

// SaveHealthProfile upserts a user's declared health data.
func (s *SQLiteDB) SaveHealthProfile(ctx context.Context, profile *models.HealthProfile) error {
	allergies, err := json.Marshal(emptyIfNil(profile.Allergies))
	if err != nil {
		return err
	}
	conditions, err := json.Marshal(emptyIfNil(profile.MedicalConditions))
	if err != nil {
		return err
	}
	medications, err := json.Marshal(emptyIfNil(profile.Medications))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO health_profiles (
			user_id, age, diet, allergies, medical_conditions, medications, lifestyle, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			age = excluded.age,
			diet = excluded.diet,
			allergies = excluded.allergies,
			medical_conditions = excluded.medical_conditions,
			medications = excluded.medications,
			lifestyle = excluded.lifestyle,
			updated_at = excluded.updated_at
	`

	profile.UpdatedAt = time.Now()
	_, err = s.db.ExecContext(ctx, query,
		profile.UserID, profile.Age, profile.Diet,
		string(allergies), string(conditions), string(medications),
		profile.Lifestyle, profile.UpdatedAt.Format(timeFormat))
	return err
}

// HealthProfile returns a user's profile, or nil when none is stored.
func (s *SQLiteDB) HealthProfile(ctx context.Context, userID string) (*models.HealthProfile, error) {
	query := `
		SELECT user_id, age, diet, allergies, medical_conditions, medications, lifestyle, updated_at
		FROM health_profiles WHERE user_id = ?
	`

	var profile models.HealthProfile
	var allergies, conditions, medications, updatedAt string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID, &profile.Age, &profile.Diet,
		&allergies, &conditions, &medications, &profile.Lifestyle, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(allergies), &profile.Allergies); err != nil {
		return nil, fmt.Errorf("error decoding allergies: %w", err)
	}
	if err := json.Unmarshal([]byte(conditions), &profile.MedicalConditions); err != nil {
		return nil, fmt.Errorf("error decoding medical conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(medications), &profile.Medications); err != nil {
		return nil, fmt.Errorf("error decoding medications: %w", err)
	}
	profile.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &profile, nil
}

// Product looks up a catalog entry, or nil when the barcode is unknown.
func (s *SQLiteDB) Product(ctx context.Context, barcode string) (*models.Product, error) {
	query := `SELECT barcode, name, brand, distributor FROM products WHERE barcode = ?`

	var p models.Product
	err := s.db.QueryRowContext(ctx, query, barcode).Scan(&p.Barcode, &p.Name, &p.Brand, &p.Distributor)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Recalls lists recall notices matching the filter, newest first.
func (s *SQLiteDB) Recalls(ctx context.Context, filter RecallFilter) ([]*models.Recall, error) {
	query := `
		SELECT id, product_name, brand, reason, severity, category, batch_numbers, affected_regions, date_issued
		FROM recalls WHERE 1=1
	`
	var args []any
	if filter.Query != "" {
		query += ` AND (product_name LIKE ? OR brand LIKE ?)`
		like := "%" + filter.Query + "%"
		args = append(args, like, like)
	}
	if filter.Category != "" {
		query += ` AND category = ? COLLATE NOCASE`
		args = append(args, filter.Category)
	}
	if filter.Severity != "" {
		query += ` AND severity = ? COLLATE NOCASE`
		args = append(args, filter.Severity)
	}
	query += ` ORDER BY date_issued DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.Recall
	for rows.Next() {
		var r models.Recall
		var batches, regions, dateIssued string
		err := rows.Scan(&r.ID, &r.ProductName, &r.Brand, &r.Reason, &r.Severity,
			&r.Category, &batches, &regions, &dateIssued)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(batches), &r.BatchNumbers); err != nil {
			return nil, fmt.Errorf("error decoding batch numbers for recall %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(regions), &r.AffectedRegions); err != nil {
			return nil, fmt.Errorf("error decoding regions for recall %s: %w", r.ID, err)
		}
		r.DateIssued, _ = time.Parse(time.RFC3339, dateIssued)
		results = append(results, &r)
	}
	return results, rows.Err()
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
