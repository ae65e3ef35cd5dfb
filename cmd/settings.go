package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/scorer"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and edit scoring settings",
	Long:  "Commands for showing, exporting and importing the weights, hybrid mode, allowed domains and strategy version.",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		s, err := st.GetSettings(ctx)
		if err != nil {
			return eris.Wrap(err, "load settings")
		}
		out := *s
		out.UserAPIKey = maskKey(out.UserAPIKey)

		data, err := yaml.Marshal(&out)
		if err != nil {
			return eris.Wrap(err, "encode settings")
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var settingsExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the current settings to a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		s, err := st.GetSettings(ctx)
		if err != nil {
			return eris.Wrap(err, "load settings")
		}
		includeKey, _ := cmd.Flags().GetBool("include-key")

		data, err := exportSettings(s, includeKey)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0o600); err != nil {
			return eris.Wrapf(err, "write %s", args[0])
		}
		zap.L().Info("settings exported", zap.String("file", args[0]))
		return nil
	},
}

var settingsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace settings from a YAML file",
	Long:  "Reads settings from YAML. Weights are validated before saving; fields missing from the file keep their current values.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		current, err := st.GetSettings(ctx)
		if err != nil {
			return eris.Wrap(err, "load settings")
		}
		next, err := importSettings(current, data)
		if err != nil {
			return err
		}
		if err := st.SaveSettings(ctx, next); err != nil {
			return eris.Wrap(err, "save settings")
		}

		zap.L().Info("settings imported",
			zap.String("file", args[0]),
			zap.String("strategy_version", next.StrategyVersion),
			zap.String("weights_hash", scorer.WeightsHash(next.Weights)),
		)
		return nil
	},
}

// exportSettings encodes s as YAML. The user API key is dropped unless
// includeKey is set.
func exportSettings(s *model.Settings, includeKey bool) ([]byte, error) {
	out := *s
	if !includeKey {
		out.UserAPIKey = ""
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, eris.Wrap(err, "encode settings")
	}
	return data, nil
}

// importSettings decodes data over a copy of current and validates the
// resulting weights. Empty fields keep their current values.
func importSettings(current *model.Settings, data []byte) (*model.Settings, error) {
	var in model.Settings
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, eris.Wrap(err, "decode settings")
	}

	next := *current
	if len(in.Weights) > 0 {
		next.Weights = in.Weights
	}
	if in.StrategyVersion != "" {
		next.StrategyVersion = in.StrategyVersion
	}
	if in.AllowedDomains != nil {
		next.AllowedDomains = make([]string, 0, len(in.AllowedDomains))
		for _, d := range in.AllowedDomains {
			if d = model.NormalizeDomain(d); d != "" {
				next.AllowedDomains = append(next.AllowedDomains, d)
			}
		}
	}
	if in.UserAPIKey != "" {
		next.UserAPIKey = in.UserAPIKey
	}
	next.HybridMode = in.HybridMode

	if err := scorer.ValidateWeights(next.Weights); err != nil {
		return nil, eris.Wrap(err, "invalid weights")
	}
	return &next, nil
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func init() {
	settingsExportCmd.Flags().Bool("include-key", false, "include the stored user API key")
	settingsCmd.AddCommand(settingsShowCmd, settingsExportCmd, settingsImportCmd)
	rootCmd.AddCommand(settingsCmd)
}
