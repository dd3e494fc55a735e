package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinLoads(t *testing.T) {
	tables, err := Builtin()
	require.NoError(t, err)
	assert.NotEmpty(t, tables.Version())

	risk, ok := tables.RiskFor("Almonds")
	require.True(t, ok)
	assert.Equal(t, 1, risk)
}

func TestRiskForNormalizesAndMatchesAliases(t *testing.T) {
	tables, err := Build("v1", []IngredientRisk{
		{Name: "sea salt", Aliases: []string{"salt"}, Risk: 0},
		{Name: "high fructose corn syrup", Aliases: []string{"hfcs"}, Risk: 6},
	}, []AllergenEntry{{Allergen: "nuts", Aliases: []string{"nut"}}})
	require.NoError(t, err)

	for _, name := range []string{"sea salt", "  SEA   Salt ", "Salt", "HFCS"} {
		_, ok := tables.RiskFor(name)
		assert.True(t, ok, "expected %q to match", name)
	}

	_, ok := tables.RiskFor("saffron")
	assert.False(t, ok)
}

func TestBuildRejectsOutOfRangeRisk(t *testing.T) {
	_, err := Build("v1", []IngredientRisk{{Name: "x", Risk: 11}}, nil)
	assert.Error(t, err)

	_, err = Build("v1", []IngredientRisk{{Name: "x", Risk: -1}}, nil)
	assert.Error(t, err)
}

func TestAllergensForMatchesAtWordBoundaries(t *testing.T) {
	tables, err := Builtin()
	require.NoError(t, err)

	assert.Equal(t, []string{"nuts"}, tables.AllergensFor("Roasted Almonds"))
	assert.Equal(t, []string{"nuts"}, tables.AllergensFor("Peanut Extract"))
	assert.Equal(t, []string{"gluten"}, tables.AllergensFor("Wheat Flour"))

	// "fish" must not fire on the "shellfish" token.
	assert.Equal(t, []string{"shellfish"}, tables.AllergensFor("Shellfish Stock"))
	assert.Equal(t, []string{"fish"}, tables.AllergensFor("Smoked Fish"))

	assert.Empty(t, tables.AllergensFor("Sea Salt"))
	assert.Empty(t, tables.AllergensFor(""))
}

func TestAllergensForMultiWordAlias(t *testing.T) {
	tables, err := Build("v1", nil, []AllergenEntry{
		{Allergen: "soy", Aliases: []string{"soya", "soy lecithin"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"soy"}, tables.AllergensFor("Emulsifier (Soy Lecithin)"))
	assert.Empty(t, tables.AllergensFor("Sunflower Lecithin"))
}

func TestParseRejectsVersionMismatch(t *testing.T) {
	risk := []byte("version: v1\ningredients:\n  - name: salt\n    risk: 0\n")
	allergens := []byte("version: v2\nallergens:\n  - allergen: nuts\n    aliases: [nut]\n")

	_, err := Parse(risk, allergens)
	assert.ErrorContains(t, err, "version mismatch")
}

func TestParseRejectsMissingVersion(t *testing.T) {
	risk := []byte("ingredients:\n  - name: salt\n    risk: 0\n")
	allergens := []byte("allergens:\n  - allergen: nuts\n    aliases: [nut]\n")

	_, err := Parse(risk, allergens)
	assert.Error(t, err)
}

func TestProviderSwapPublishesNewSnapshot(t *testing.T) {
	v1, err := Build("v1", []IngredientRisk{{Name: "salt", Risk: 0}}, nil)
	require.NoError(t, err)
	v2, err := Build("v2", []IngredientRisk{{Name: "salt", Risk: 1}}, nil)
	require.NoError(t, err)

	provider := NewProvider(v1)
	assert.Equal(t, "v1", provider.Current().Version())

	snapshot := provider.Current()
	provider.Swap(v2)

	// The old snapshot stays intact for in-flight readers.
	risk, _ := snapshot.RiskFor("salt")
	assert.Equal(t, 0, risk)

	risk, _ = provider.Current().RiskFor("salt")
	assert.Equal(t, 1, risk)
}
