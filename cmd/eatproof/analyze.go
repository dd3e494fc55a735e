package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/franckalain/eatproof/internal/models"
	"github.com/franckalain/eatproof/internal/reference"
	"github.com/franckalain/eatproof/internal/scoring"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	analyzeProductName string
	analyzeBatch       string
	analyzeExpiry      string
)

// analyzeCmd scores a product locally against the embedded reference
// tables, without a running server. Handy for inspecting how a given
// ingredient list lands.
var analyzeCmd = &cobra.Command{
	Use:   "analyze <barcode> [ingredient]...",
	Short: "Score a product from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := reference.Builtin()
		if err != nil {
			return fmt.Errorf("failed to load reference tables: %w", err)
		}

		scorer := scoring.New(reference.NewProvider(tables), zap.NewNop())
		resp, err := scorer.Analyze(cmd.Context(), &models.ScanRequest{
			Barcode:     args[0],
			ProductName: analyzeProductName,
			BatchNumber: analyzeBatch,
			ExpiryDate:  analyzeExpiry,
			Ingredients: args[1:],
		})
		if err != nil {
			return err
		}

		printScores(resp)
		printIngredients(resp.Analysis.Ingredients.AnalyzedIngredients)
		printAllergens(resp.Analysis.Ingredients.DetectedAllergens)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeProductName, "product-name", "", "display name of the product")
	analyzeCmd.Flags().StringVar(&analyzeBatch, "batch", "", "batch number from the packaging")
	analyzeCmd.Flags().StringVar(&analyzeExpiry, "expiry", "", "expiry date from the packaging")
}

func printScores(resp *models.ScanResponse) {
	verdict := color.GreenString("SAFE")
	if resp.SafetyScore < scoring.SafeThreshold {
		verdict = color.RedString("CAUTION")
	}
	fmt.Printf("\nSafety score for %s: %d/100 (%s)\n\n", resp.Barcode, resp.SafetyScore, verdict)

	table := tablewriter.NewTable(os.Stdout)
	table.Header([]string{"Sub-score", "Value"})
	table.Append([]string{"Ingredient", strconv.Itoa(resp.IngredientScore)})
	table.Append([]string{"Product", strconv.Itoa(resp.ProductScore)})
	table.Append([]string{"Health risk", strconv.Itoa(resp.HealthRiskScore)})
	table.Render()
}

func printIngredients(assessments []models.IngredientAssessment) {
	if len(assessments) == 0 {
		fmt.Println(color.YellowString("\nNo ingredients supplied; score reflects insufficient data."))
		return
	}

	fmt.Println("\nIngredients:")
	table := tablewriter.NewTable(os.Stdout)
	table.Header([]string{"Name", "Risk (0-10)", "Matched"})
	for _, a := range assessments {
		table.Append([]string{a.Name, strconv.Itoa(a.RiskScore), strconv.FormatBool(a.Matched)})
	}
	table.Render()
}

func printAllergens(flags []models.AllergenFlag) {
	if len(flags) == 0 {
		fmt.Println(color.GreenString("\nNo allergens detected."))
		return
	}

	fmt.Printf("%s", color.RedString("\nDetected allergens:\n"))
	table := tablewriter.NewTable(os.Stdout)
	table.Header([]string{"Allergen", "Triggered by"})
	for _, f := range flags {
		for _, src := range f.Sources {
			table.Append([]string{f.Allergen, src})
		}
	}
	table.Render()
}
