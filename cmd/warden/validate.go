package main

import (
	"github.com/spf13/cobra"

	"mercator-hq/warden/pkg/cli"
	"mercator-hq/warden/pkg/rules"
)

var validateFlags struct {
	rules string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and rules",
	Long: `Validate the configuration file and the rule document it points to.

The configuration is loaded with environment overrides applied, so the
result matches what "warden run" would use. File based rules are parsed and
validated; git based rules are checked by "warden rules show".

Examples:
  # Validate warden.yaml and its rule file
  warden validate

  # Validate another rule file against the same configuration
  warden validate --rules staging-rules.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.rules, "rules", "", "rule file to validate (defaults to rules.file_path)")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	p := cli.NewPrinter(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		p.Error("Configuration invalid")
		return err
	}
	p.Success("Configuration valid (%s)", cfgFile)

	enabled := cfg.EnabledPlugins()
	for _, pl := range enabled {
		p.Info("plugin %s (%s) on %v", pl.Name, pl.Type, pl.Pointcuts)
	}
	if !cfg.Agent.Enabled {
		p.Warning("Agent disabled, %d plugins will not be installed", len(enabled))
	}

	path := validateFlags.rules
	if path == "" && cfg.Rules.Source == "file" {
		path = cfg.Rules.FilePath
	}

	switch {
	case path != "":
		doc, err := rules.ParseFile(path)
		if err != nil {
			p.Error("Rules invalid (%s)", path)
			return cli.NewConfigError(path, err)
		}
		p.Success("Rules valid (%s): %d flow rules, %d routes, %d tags",
			path, len(doc.FlowControl), len(doc.Routes), len(doc.Tags))
	case cfg.Rules.Source == "git":
		p.Info("rules are read from %s@%s, not checked", cfg.Rules.Git.Repository, cfg.Rules.Git.Branch)
	default:
		p.Info("no rule source configured")
	}
	return nil
}
