// Package scoring computes the safety assessment for a scanned product.
//
// Analyze is a pure function of its input and the active reference-table
// snapshot: the same request against the same table version always produces
// the same scores. Only the response id and created_at stamp vary.
package scoring

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/franckalain/eatproof/internal/models"
	"github.com/franckalain/eatproof/internal/reference"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scoring policy constants. These are part of the contract: the composite
// score must be reproducible by a caller holding the same reference tables.
const (
	// DefaultRiskScore is assigned to ingredients missing from the risk
	// table. Unknown is not safe, so the default is low but nonzero.
	DefaultRiskScore = 2

	// NoDataIngredientScore is the ingredient sub-score for an empty
	// ingredient list. Deliberately mid-range so "no data" is
	// distinguishable from a scored low-risk basket.
	NoDataIngredientScore = 50

	// ProductBaseScore is the packaging confidence in the absence of
	// negative signals. Kept above the verified threshold so a product
	// with complete packaging metadata renders as verified.
	ProductBaseScore     = 85
	MissingBatchPenalty  = 15
	MissingExpiryPenalty = 5

	// AllergenPenalty is subtracted from the health sub-score per
	// detected allergen.
	AllergenPenalty = 20

	// Composite weights. Must sum to 1.
	IngredientWeight = 0.5
	ProductWeight    = 0.2
	HealthWeight     = 0.3

	// SafeThreshold is the lower bound of the "safe" band on the
	// composite score.
	SafeThreshold = 70
)

// Service computes scan assessments against the reference tables published
// by a Provider. It is stateless; concurrent Analyze calls need no
// coordination.
type Service struct {
	tables *reference.Provider
	log    *zap.Logger

	// Injectable for deterministic tests.
	now   func() time.Time
	newID func() string
}

// New builds a scoring service on top of a reference provider.
func New(tables *reference.Provider, log *zap.Logger) *Service {
	return &Service{
		tables: tables,
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Analyze scores one scan request. It fails only on validation (empty
// barcode); an empty or fully-unmatched ingredient list is a valid "no
// confident data" result, not an error.
func (s *Service) Analyze(ctx context.Context, req *models.ScanRequest) (*models.ScanResponse, error) {
	barcode := strings.TrimSpace(req.Barcode)
	if barcode == "" {
		return nil, InvalidRequest("barcode must not be empty")
	}

	tables := s.tables.Current()
	ingredients := cleanIngredients(req.Ingredients)

	assessments := s.assessIngredients(tables, ingredients)
	allergens := detectAllergens(tables, ingredients)

	ingredientScore := ingredientScoreOf(assessments)
	productScore := productScoreOf(req)
	healthRiskScore := clampScore(100 - AllergenPenalty*len(allergens))
	safetyScore := clampScore(int(math.Round(
		IngredientWeight*float64(ingredientScore) +
			ProductWeight*float64(productScore) +
			HealthWeight*float64(healthRiskScore))))

	resp := &models.ScanResponse{
		ID:              s.newID(),
		Barcode:         barcode,
		ProductScore:    productScore,
		IngredientScore: ingredientScore,
		HealthRiskScore: healthRiskScore,
		SafetyScore:     safetyScore,
		RawData:         req.RawData,
		CreatedAt:       s.now().UTC(),
		Analysis: models.Analysis{
			Packaging: packagingOf(req),
			Ingredients: models.IngredientAnalysis{
				AnalyzedIngredients: assessments,
				DetectedAllergens:   allergens,
			},
			SafetyBreakdown: models.SafetyBreakdown{
				IngredientWeight: IngredientWeight,
				ProductWeight:    ProductWeight,
				HealthWeight:     HealthWeight,
				SafeThreshold:    SafeThreshold,
			},
		},
	}

	s.log.Debug("scan analyzed",
		zap.String("scan_id", resp.ID),
		zap.String("barcode", barcode),
		zap.String("reference_version", tables.Version()),
		zap.Int("ingredients", len(ingredients)),
		zap.Int("allergens", len(allergens)),
		zap.Int("safety_score", safetyScore))

	return resp, nil
}

// cleanIngredients trims each name and silently drops blank entries,
// preserving input order.
func cleanIngredients(names []string) []string {
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		if trimmed := strings.TrimSpace(n); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

func (s *Service) assessIngredients(tables *reference.Tables, names []string) []models.IngredientAssessment {
	assessments := make([]models.IngredientAssessment, 0, len(names))
	for _, name := range names {
		risk, matched := tables.RiskFor(name)
		if !matched {
			risk = DefaultRiskScore
		}
		assessments = append(assessments, models.IngredientAssessment{
			Name:      name,
			RiskScore: risk,
			Matched:   matched,
		})
	}
	return assessments
}

// detectAllergens collects one flag per canonical allergen, with every
// triggering ingredient recorded as a source in input order. Flags come out
// in the table's stable order so identical requests produce identical output.
func detectAllergens(tables *reference.Tables, names []string) []models.AllergenFlag {
	sources := make(map[string][]string)
	var order []string
	for _, name := range names {
		for _, allergen := range tables.AllergensFor(name) {
			if _, seen := sources[allergen]; !seen {
				order = append(order, allergen)
			}
			sources[allergen] = append(sources[allergen], name)
		}
	}

	flags := make([]models.AllergenFlag, 0, len(order))
	for _, allergen := range order {
		flags = append(flags, models.AllergenFlag{
			Allergen: allergen,
			Sources:  sources[allergen],
		})
	}
	return flags
}

// ingredientScoreOf inverts the mean ingredient risk onto the 0-100 scale.
// An empty basket scores NoDataIngredientScore rather than a perfect 100.
func ingredientScoreOf(assessments []models.IngredientAssessment) int {
	if len(assessments) == 0 {
		return NoDataIngredientScore
	}
	total := 0
	for _, a := range assessments {
		total += a.RiskScore
	}
	mean := float64(total) / float64(len(assessments))
	return clampScore(100 - int(math.Round(mean*10)))
}

// productScoreOf starts from the neutral-high base and subtracts only for
// explicit negative signals in the packaging metadata.
func productScoreOf(req *models.ScanRequest) int {
	score := ProductBaseScore
	if strings.TrimSpace(req.BatchNumber) == "" {
		score -= MissingBatchPenalty
	}
	if strings.TrimSpace(req.ExpiryDate) == "" {
		score -= MissingExpiryPenalty
	}
	return clampScore(score)
}

func packagingOf(req *models.ScanRequest) models.PackagingInfo {
	return models.PackagingInfo{
		ProductName: orUnknown(req.ProductName),
		Brand:       "Unknown",
		BatchNumber: orUnknown(req.BatchNumber),
		Distributor: "Unknown",
	}
}

func orUnknown(s string) string {
	if trimmed := strings.TrimSpace(s); trimmed != "" {
		return trimmed
	}
	return "Unknown"
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
