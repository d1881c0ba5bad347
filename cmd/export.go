package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dps-crimelog/internal/archive"
	"github.com/sells-group/dps-crimelog/internal/config"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the archive to a file in CSV, JSON or XLSX form",
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		n, path, err := exportArchive(cfg, format, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Exported %d records to %s\n", n, path)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "xlsx", "output format: xlsx, csv or json")
	exportCmd.Flags().String("out", "", "output path (default usc_crime_logs.<format> in the current directory)")
	rootCmd.AddCommand(exportCmd)
}

// exportArchive loads the archive and writes it to out in format.
func exportArchive(c *config.Config, format, out string) (int, string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "xlsx", "csv", "json":
	default:
		return 0, "", eris.Errorf("export: unsupported format %q (want xlsx, csv or json)", format)
	}
	if out == "" {
		base := strings.TrimSuffix(c.Archive.CSVFile, filepath.Ext(c.Archive.CSVFile))
		out = base + "." + format
	}

	snap, err := archive.NewStore(c.Archive).Load()
	if err != nil {
		return 0, "", err
	}
	if !snap.Found {
		return 0, "", eris.Errorf("export: no archive at %s", snap.Path)
	}

	if err := archive.WriteFile(out, format, snap.Records); err != nil {
		return 0, "", eris.Wrap(err, "export")
	}

	zap.L().Info("export: wrote archive",
		zap.String("format", format),
		zap.String("path", out),
		zap.Int("records", len(snap.Records)),
	)
	return len(snap.Records), out, nil
}
