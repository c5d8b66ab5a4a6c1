package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	exportInput string
	exportXLSX  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a lead table to XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}
		in := exportInput
		if in == "" {
			in = cfg.Output.Path
		}
		out := exportXLSX
		if out == "" {
			out = cfg.Output.XLSXPath
		}
		if out == "" {
			return eris.New("export: --xlsx is required")
		}

		if err := exportTable(in, out); err != nil {
			return err
		}
		zap.L().Info("exported xlsx", zap.String("input", in), zap.String("path", out))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportInput, "input", "", "CSV table to export (default output.path)")
	exportCmd.Flags().StringVar(&exportXLSX, "xlsx", "", "XLSX destination (default output.xlsx_path)")
	rootCmd.AddCommand(exportCmd)
}
