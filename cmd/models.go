package cmd

import (
	"fmt"

	"github.com/theirongolddev/paychat/internal/cli"
	"github.com/theirongolddev/paychat/internal/config"

	"github.com/spf13/cobra"
)

var flagModelsFormat string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the model catalog with prices",
	RunE:  runModels,
}

func init() {
	addFormatFlag(modelsCmd, &flagModelsFormat)
	rootCmd.AddCommand(modelsCmd)
}

type modelRow struct {
	ID            string  `json:"id" yaml:"id"`
	Name          string  `json:"name" yaml:"name"`
	Category      string  `json:"category" yaml:"category"`
	InputPerKTok  float64 `json:"input_per_ktok" yaml:"input_per_ktok"`
	OutputPerKTok float64 `json:"output_per_ktok" yaml:"output_per_ktok"`
}

func runModels(_ *cobra.Command, _ []string) error {
	if err := checkFormat(flagModelsFormat); err != nil {
		return err
	}

	models := config.Models()
	rowsOut := make([]modelRow, 0, len(models))
	for _, m := range models {
		rowsOut = append(rowsOut, modelRow{
			ID:            m.ID,
			Name:          m.DisplayName,
			Category:      m.Category,
			InputPerKTok:  m.Pricing.InputPerKTok,
			OutputPerKTok: m.Pricing.OutputPerKTok,
		})
	}
	if done, err := writeStructured(flagModelsFormat, rowsOut); done {
		return err
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("MODELS"))
	fmt.Println()

	byCat := config.ModelsByCategory()
	for _, cat := range config.Categories {
		rows := make([][]string, 0, len(byCat[cat]))
		for _, m := range byCat[cat] {
			rows = append(rows, []string{
				m.ID,
				m.DisplayName,
				cli.FormatPrice(m.Pricing.InputPerKTok),
				cli.FormatPrice(m.Pricing.OutputPerKTok),
			})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:     cat,
			Headers:   []string{"Model", "Name", "Input", "Output"},
			Rows:      rows,
			LeftAlign: 2,
		}))
		fmt.Println()
	}
	return nil
}
