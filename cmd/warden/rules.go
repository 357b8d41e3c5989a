package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/warden/pkg/cli"
	"mercator-hq/warden/pkg/rules"
)

var rulesFlags struct {
	file   string
	format string
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect governance rules",
	Long: `Inspect the governance rules read by the flowcontrol, router and tag plugins.

Subcommands:
  show  - Load the rules from the configured source and print them`,
}

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active rules",
	Long: `Load the rules from the configured source, or from --file, and print them.

Examples:
  # Rules from the configured file or git repository
  warden rules show

  # A rule file outside the configuration
  warden rules show --file rules.yaml --format json`,
	RunE: showRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesShowCmd)

	rulesShowCmd.Flags().StringVarP(&rulesFlags.file, "file", "f", "", "rule file to read instead of the configured source")
	rulesShowCmd.Flags().StringVar(&rulesFlags.format, "format", "text", "output format: text, json, csv")
}

// ruleView is the printable form of a rule snapshot.
type ruleView struct {
	Version  string          `json:"version"`
	Source   string          `json:"source"`
	LoadedAt time.Time       `json:"loaded_at"`
	Rules    *rules.Document `json:"rules"`
}

// Table lists one row per rule plus one row per default tag.
func (v ruleView) Table() cli.Table {
	t := cli.Table{Headers: []string{"KIND", "NAME", "METHOD", "DETAIL"}}
	doc := v.Rules
	if doc == nil {
		return t
	}

	for _, r := range doc.FlowControl {
		var detail []string
		if r.QPS > 0 {
			detail = append(detail, "qps="+strconv.FormatFloat(r.QPS, 'g', -1, 64))
		}
		if r.Burst > 0 {
			detail = append(detail, "burst="+strconv.Itoa(r.Burst))
		}
		if r.MaxConcurrent > 0 {
			detail = append(detail, "max_concurrent="+strconv.Itoa(r.MaxConcurrent))
		}
		detail = append(detail, "behavior="+string(r.Behavior))
		if r.Behavior == rules.BehaviorSkip {
			detail = append(detail, fmt.Sprintf("fallback=%v", r.Fallback))
		}
		t.Rows = append(t.Rows, []string{"flow", r.Name, r.Method, strings.Join(detail, " ")})
	}

	for _, r := range doc.Routes {
		detail := "targets=" + joinTags(r.Targets)
		if len(r.Match) > 0 {
			detail = "match=" + joinTags(r.Match) + " " + detail
		}
		if r.Weight > 0 {
			detail += " weight=" + strconv.Itoa(r.Weight)
		}
		t.Rows = append(t.Rows, []string{"route", r.Name, r.Method, detail})
	}

	for _, k := range sortedKeys(doc.Tags) {
		t.Rows = append(t.Rows, []string{"tag", k, "*", doc.Tags[k]})
	}
	return t
}

func showRules(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(rulesFlags.format)
	if err != nil {
		return err
	}

	snap, err := loadRules(commandContext(cmd), rulesFlags.file)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatText {
		p := cli.NewPrinter(out)
		p.Title("Rules %s", snap.Version)
		p.Info("source: %s, %d rules", snap.Source, snap.Document.RuleCount())
	}
	return cli.NewFormatter(format).FormatTo(out, ruleView{
		Version:  snap.Version,
		Source:   snap.Source,
		LoadedAt: snap.LoadedAt,
		Rules:    snap.Document,
	})
}

// loadRules reads path when set, or loads the configured rule source once.
func loadRules(ctx context.Context, path string) (*rules.Snapshot, error) {
	if path != "" {
		doc, err := rules.ParseFile(path)
		if err != nil {
			return nil, cli.NewConfigError(path, err)
		}
		return &rules.Snapshot{Document: doc, Version: doc.Version, Source: "file", LoadedAt: time.Now()}, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store := rules.NewStore()
	src, err := rules.NewSource(&cfg.Rules, store)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	if src == nil {
		return nil, errors.New("no rule source configured (rules.source is \"none\"), use --file")
	}
	defer src.Close()

	if err := src.Load(ctx); err != nil {
		return nil, cli.NewCommandError("rules", err)
	}
	return store.Snapshot(), nil
}

func joinTags(tags map[string]string) string {
	parts := make([]string, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		parts = append(parts, k+"="+tags[k])
	}
	return strings.Join(parts, ",")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
