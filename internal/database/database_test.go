package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/franckalain/eatproof/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestUser(t *testing.T, db *SQLiteDB, id, email string) *models.User {
	t.Helper()
	user := &models.User{
		ID:        id,
		Email:     email,
		Name:      "Test User",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.CreateUser(context.Background(), user, "hash"))
	return user
}

func sampleScan(id string, createdAt time.Time) *models.ScanResponse {
	return &models.ScanResponse{
		ID:              id,
		Barcode:         "123",
		ProductScore:    65,
		IngredientScore: 90,
		HealthRiskScore: 80,
		SafetyScore:     82,
		CreatedAt:       createdAt,
		Analysis: models.Analysis{
			Packaging: models.PackagingInfo{
				ProductName: "Organic Almonds",
				Brand:       "Unknown",
				BatchNumber: "Unknown",
				Distributor: "Unknown",
			},
			Ingredients: models.IngredientAnalysis{
				AnalyzedIngredients: []models.IngredientAssessment{
					{Name: "Almonds", RiskScore: 1, Matched: true},
				},
				DetectedAllergens: []models.AllergenFlag{
					{Allergen: "nuts", Sources: []string{"Almonds"}},
				},
			},
		},
	}
}

func TestSaveAndRecentScans(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := newTestUser(t, db, "u1", "u1@example.com")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveScan(ctx, user.ID, sampleScan("scan-old", base)))
	require.NoError(t, db.SaveScan(ctx, user.ID, sampleScan("scan-new", base.Add(time.Minute))))

	scans, err := db.RecentScans(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, "scan-new", scans[0].ID)
	assert.Equal(t, "scan-old", scans[1].ID)

	// The analysis block survives the JSON round trip.
	flags := scans[0].Analysis.Ingredients.DetectedAllergens
	require.Len(t, flags, 1)
	assert.Equal(t, "nuts", flags[0].Allergen)
	assert.Equal(t, []string{"Almonds"}, flags[0].Sources)
	assert.True(t, scans[0].CreatedAt.Equal(base.Add(time.Minute)))

	limited, err := db.RecentScans(ctx, user.ID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "scan-new", limited[0].ID)
}

func TestRecentScansScopedToUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := newTestUser(t, db, "u1", "u1@example.com")
	other := newTestUser(t, db, "u2", "u2@example.com")

	require.NoError(t, db.SaveScan(ctx, owner.ID, sampleScan("owned", time.Now().UTC())))
	require.NoError(t, db.SaveScan(ctx, "", sampleScan("anonymous", time.Now().UTC())))

	scans, err := db.RecentScans(ctx, other.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, scans)

	scans, err = db.RecentScans(ctx, owner.ID, 10)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, "owned", scans[0].ID)
}

func TestUserLookup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	created := newTestUser(t, db, "u1", "User@Example.com")

	user, hash, err := db.UserByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, created.ID, user.ID)
	assert.Equal(t, "user@example.com", user.Email)
	assert.Equal(t, "hash", hash)

	user, _, err = db.UserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = db.UserByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, created.ID, user.ID)
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := newTestUser(t, db, "u1", "u1@example.com")

	now := time.Now().UTC()
	require.NoError(t, db.CreateSession(ctx, &models.Session{
		Token:     "valid-token",
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, db.CreateSession(ctx, &models.Session{
		Token:     "expired-token",
		UserID:    user.ID,
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}))

	resolved, err := db.UserByToken(ctx, "valid-token")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, user.ID, resolved.ID)

	resolved, err = db.UserByToken(ctx, "expired-token")
	require.NoError(t, err)
	assert.Nil(t, resolved)

	resolved, err = db.UserByToken(ctx, "unknown-token")
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestHealthProfileRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := newTestUser(t, db, "u1", "u1@example.com")

	missing, err := db.HealthProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	profile := &models.HealthProfile{
		UserID:            user.ID,
		Age:               34,
		Diet:              "Vegetarian",
		Allergies:         []string{"Nuts", "Gluten"},
		MedicalConditions: []string{"Asthma"},
		Medications:       []string{},
		Lifestyle:         "Moderate Activity",
	}
	require.NoError(t, db.SaveHealthProfile(ctx, profile))

	loaded, err := db.HealthProfile(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 34, loaded.Age)
	assert.Equal(t, []string{"Nuts", "Gluten"}, loaded.Allergies)
	assert.Equal(t, []string{"Asthma"}, loaded.MedicalConditions)
	assert.Empty(t, loaded.Medications)

	// Upsert replaces the previous row.
	profile.Allergies = []string{"Shellfish"}
	require.NoError(t, db.SaveHealthProfile(ctx, profile))
	loaded, err = db.HealthProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Shellfish"}, loaded.Allergies)
}

func TestProductCatalogSeeded(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	product, err := db.Product(ctx, "0123456789012")
	require.NoError(t, err)
	require.NotNil(t, product)
	assert.Equal(t, "Organic Almonds", product.Name)
	assert.Equal(t, "Nature's Best", product.Brand)

	product, err = db.Product(ctx, "no-such-barcode")
	require.NoError(t, err)
	assert.Nil(t, product)
}

func TestRecallsFiltering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	all, err := db.Recalls(ctx, RecallFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	// Newest first.
	assert.Equal(t, "rc-2025-001", all[0].ID)
	assert.Equal(t, []string{"NUT-2024-001", "NUT-2024-002"}, all[0].BatchNumbers)

	critical, err := db.Recalls(ctx, RecallFilter{Severity: "critical"})
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, "Peanut Butter Spread", critical[0].ProductName)

	food, err := db.Recalls(ctx, RecallFilter{Category: "Food"})
	require.NoError(t, err)
	assert.Len(t, food, 1)

	juice, err := db.Recalls(ctx, RecallFilter{Query: "Juice"})
	require.NoError(t, err)
	require.Len(t, juice, 1)
	assert.Equal(t, "FreshPress", juice[0].Brand)

	none, err := db.Recalls(ctx, RecallFilter{Query: "Juice", Severity: "critical"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
