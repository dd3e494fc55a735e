package models

import (
	"time"
)

// ScanRequest is the payload the client sends to have a product analyzed.
type ScanRequest struct {
	Barcode     string         `json:"barcode"`
	ProductName string         `json:"product_name,omitempty"`
	BatchNumber string         `json:"batch_number,omitempty"`
	ExpiryDate  string         `json:"expiry_date,omitempty"`
	Ingredients []string       `json:"ingredients"`
	RawData     map[string]any `json:"raw_data,omitempty"`
}

// IngredientAssessment carries the risk annotation for a single ingredient.
// RiskScore is always in [0, 10]; Matched reports whether the name was found
// in the risk reference table or fell back to the default score.
type IngredientAssessment struct {
	Name      string `json:"name"`
	RiskScore int    `json:"risk_score"`
	Matched   bool   `json:"matched"`
}

// AllergenFlag records one detected allergen and the ingredients that
// triggered it. Declared is filled in by the server when the authenticated
// caller's health profile lists this allergen.
type AllergenFlag struct {
	Allergen string   `json:"allergen"`
	Sources  []string `json:"source"`
	Declared bool     `json:"declared,omitempty"`
}

// PackagingInfo echoes packaging metadata from the request plus whatever the
// product catalog knows about the barcode. Missing fields render as "Unknown".
type PackagingInfo struct {
	ProductName string `json:"product_name"`
	Brand       string `json:"brand"`
	BatchNumber string `json:"batch_number"`
	Distributor string `json:"distributor"`
}

// IngredientAnalysis groups the per-ingredient results inside a response.
type IngredientAnalysis struct {
	AnalyzedIngredients []IngredientAssessment `json:"analyzed_ingredients"`
	DetectedAllergens   []AllergenFlag         `json:"detected_allergens"`
}

// SafetyBreakdown exposes the scoring constants used for this response so
// the composite figure is reproducible by the caller.
type SafetyBreakdown struct {
	IngredientWeight float64 `json:"ingredient_weight"`
	ProductWeight    float64 `json:"product_weight"`
	HealthWeight     float64 `json:"health_weight"`
	SafeThreshold    int     `json:"safe_threshold"`
}

// Analysis is the structured detail block of a scan response.
type Analysis struct {
	Packaging       PackagingInfo      `json:"packaging"`
	Ingredients     IngredientAnalysis `json:"ingredients"`
	SafetyBreakdown SafetyBreakdown    `json:"safety_breakdown"`
}

// ScanResponse is the result of one analyze call. It is immutable once
// produced; all sub-scores and the composite are integers in [0, 100].
type ScanResponse struct {
	ID              string         `json:"id"`
	Barcode         string         `json:"barcode"`
	ProductScore    int            `json:"product_score"`
	IngredientScore int            `json:"ingredient_score"`
	HealthRiskScore int            `json:"health_risk_score"`
	SafetyScore     int            `json:"safety_score"`
	RawData         map[string]any `json:"raw_data,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	Analysis        Analysis       `json:"analysis"`
}
