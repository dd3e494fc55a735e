package reference

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed data/ingredient_risk.yaml data/allergens.yaml
var dataFS embed.FS

// Builtin loads the reference tables embedded in the binary. This is the
// snapshot the service starts with; a remote refresher may later swap in a
// newer version.
func Builtin() (*Tables, error) {
	riskRaw, err := dataFS.ReadFile("data/ingredient_risk.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded risk table: %w", err)
	}
	allergenRaw, err := dataFS.ReadFile("data/allergens.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded allergen table: %w", err)
	}
	return Parse(riskRaw, allergenRaw)
}

// Parse builds a Tables snapshot from the two YAML reference documents. The
// two documents must carry the same version string; mixed versions would make
// scoring output impossible to attribute to one table revision.
func Parse(riskYAML, allergenYAML []byte) (*Tables, error) {
	var risks riskDocument
	if err := yaml.Unmarshal(riskYAML, &risks); err != nil {
		return nil, fmt.Errorf("parsing risk table: %w", err)
	}
	var allergens allergenDocument
	if err := yaml.Unmarshal(allergenYAML, &allergens); err != nil {
		return nil, fmt.Errorf("parsing allergen table: %w", err)
	}
	if risks.Version == "" {
		return nil, fmt.Errorf("risk table has no version")
	}
	if risks.Version != allergens.Version {
		return nil, fmt.Errorf("reference version mismatch: risk %q vs allergen %q", risks.Version, allergens.Version)
	}
	return Build(risks.Version, risks.Ingredients, allergens.Allergens)
}
