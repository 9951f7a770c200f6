package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/siapp-dev/siapp/internal/models"
	"github.com/siapp-dev/siapp/pkg/config"
	"github.com/siapp-dev/siapp/pkg/logger"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func newImportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import applications from a JSON or YAML export",
		Long: "Import applications from a file written by export. Records whose slug\n" +
			"already exists are skipped. The format follows the file extension\n" +
			"unless --format is given.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Clean(args[0])
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read input file: %w", err)
			}

			if format == "" {
				format = formatFromPath(path)
			}
			apps, err := decodeApps(data, format)
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", path, err)
			}

			cfg, log, err := dataConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			created := st.Apps().Import(cmd.Context(), apps)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d applications into %s\n", created, len(apps), cfg.DataDir)
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "input format: json or yaml")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		outputPath string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every application for backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format == "" {
				format = formatFromPath(outputPath)
			}

			cfg, log, err := dataConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			apps := st.Apps().Export(cmd.Context())
			if apps == nil {
				apps = []*models.App{}
			}
			data, err := encodeApps(apps, format)
			if err != nil {
				return err
			}

			if outputPath == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(outputPath, data, 0o644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			_, err = fmt.Fprintf(cmd.ErrOrStderr(), "Exported applications to %s\n", outputPath)
			return err
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "", "output format: json or yaml")
	return cmd
}

// dataConfig resolves configuration for commands that only need the data
// directory. Logs go to stderr so stdout stays clean for export.
func dataConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Resolve()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.DataDir == "" {
		return nil, nil, fmt.Errorf("SIAPP_DATA_DIR is required")
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewWithWriter(cmd.ErrOrStderr(), level, false), nil
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func decodeApps(data []byte, format string) ([]*models.App, error) {
	var apps []*models.App
	switch format {
	case formatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&apps); err != nil {
			return nil, err
		}
		if _, err := dec.Token(); err != io.EOF {
			return nil, fmt.Errorf("unexpected data after the application list")
		}
	case formatYAML:
		if err := yaml.Unmarshal(data, &apps); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return apps, nil
}

func encodeApps(apps []*models.App, format string) ([]byte, error) {
	switch format {
	case formatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "    ")
		if err := enc.Encode(apps); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case formatYAML:
		return yaml.Marshal(apps)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}
