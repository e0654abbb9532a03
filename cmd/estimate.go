package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/theirongolddev/paychat/internal/cli"
	"github.com/theirongolddev/paychat/internal/config"
	"github.com/theirongolddev/paychat/internal/estimate"

	"github.com/spf13/cobra"
)

var (
	flagEstimateAll    bool
	flagEstimateFormat string
	flagEstimateTokens int
)

var estimateCmd = &cobra.Command{
	Use:   "estimate [prompt...]",
	Short: "Estimate the cost of a prompt before sending it",
	Args:  cobra.ArbitraryArgs,
	RunE:  runEstimate,
}

func init() {
	estimateCmd.Flags().BoolVarP(&flagEstimateAll, "all", "a", false, "Estimate against every catalog model")
	estimateCmd.Flags().IntVar(&flagEstimateTokens, "max-output-tokens", 0, "Output token cap to price")
	addFormatFlag(estimateCmd, &flagEstimateFormat)
	rootCmd.AddCommand(estimateCmd)
}

type estimateRow struct {
	Model      string                `json:"model" yaml:"model"`
	Estimate   estimate.CostEstimate `json:"estimate" yaml:"estimate"`
	ExceedsCap bool                  `json:"exceeds_cap" yaml:"exceeds_cap"`
}

func runEstimate(_ *cobra.Command, args []string) error {
	if err := checkFormat(flagEstimateFormat); err != nil {
		return err
	}
	prompt := strings.Join(args, " ")
	if strings.TrimSpace(prompt) == "" {
		return errors.New("estimate needs a prompt")
	}

	_, s, err := loadSettings(os.Stderr)
	if err != nil {
		return err
	}
	outputCap := s.MaxOutputTokens
	if flagEstimateTokens > 0 {
		outputCap = flagEstimateTokens
	}

	models := config.Models()
	if !flagEstimateAll {
		m, _ := config.LookupModel(s.DefaultModel)
		models = []config.Model{m}
	}

	rows := make([]estimateRow, 0, len(models))
	for _, m := range models {
		est := estimate.Estimate(prompt, outputCap, m.Pricing)
		rows = append(rows, estimateRow{
			Model:      m.ID,
			Estimate:   est,
			ExceedsCap: est.TotalCost > s.MaxSpendUSDC,
		})
	}
	if done, err := writeStructured(flagEstimateFormat, rows); done {
		return err
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("COST ESTIMATE"))
	fmt.Println()

	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		total := cli.FormatCost(r.Estimate.TotalCost)
		if r.ExceedsCap {
			total += " !"
		}
		table = append(table, []string{
			r.Model,
			cli.FormatNumber(int64(r.Estimate.InputTokens)),
			cli.FormatCost(r.Estimate.InputCost),
			cli.FormatNumber(int64(r.Estimate.OutputTokens)),
			cli.FormatCost(r.Estimate.OutputCost),
			total,
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Model", "In Tok", "In Cost", "Out Tok", "Out Cost", "Total"},
		Rows:    table,
	}))
	fmt.Println()
	for _, line := range estimateFooter(rows, outputCap, s.MaxSpendUSDC) {
		fmt.Println(line)
	}
	fmt.Println()
	return nil
}

// estimateFooter returns the lines printed under the estimate table.
func estimateFooter(rows []estimateRow, outputCap int, spendCap float64) []string {
	lines := []string{
		"  Output cap: " + cli.RenderTokens(int64(outputCap)) + " tokens   Spend cap: " + cli.RenderCost(spendCap) + " per request",
	}
	var over []string
	for _, r := range rows {
		if r.ExceedsCap {
			over = append(over, r.Model)
		}
	}
	if len(over) > 0 {
		lines = append(lines, cli.RenderWarning(strings.Join(over, ", ")+" would exceed the cap and be refused before signing"))
	}
	return append(lines, cli.RenderMuted("  Token counts are approximate (4 characters per token)."))
}
