package models

import "time"

// Recall is one product recall notice served by /recalls.
type Recall struct {
	ID              string    `json:"id"`
	ProductName     string    `json:"product_name"`
	Brand           string    `json:"brand"`
	Reason          string    `json:"reason"`
	Severity        string    `json:"severity"` // "critical", "high", "medium", "low"
	Category        string    `json:"category"`
	BatchNumbers    []string  `json:"batch_numbers"`
	AffectedRegions []string  `json:"affected_regions"`
	DateIssued      time.Time `json:"date_issued"`
}

// Product is a catalog entry keyed by barcode, used to enrich packaging
// metadata on scan responses.
type Product struct {
	Barcode     string `json:"barcode"`
	Name        string `json:"name"`
	Brand       string `json:"brand"`
	Distributor string `json:"distributor"`
}
