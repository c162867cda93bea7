package main

// ---------------------------------------------------------------------------
// cmd_rules.go — list and validate the loaded correlation rules
// ---------------------------------------------------------------------------

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"

	"github.com/fuseid-project/fuseid/internal/core"
)

func cmdRules(args []string) {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	jsonOut := fs.Bool("json", false, "Output raw JSON")
	fs.Parse(args)

	cfg, err := core.LoadConfig(envConfig(*configPath))
	if err != nil {
		errorf("loading config: %v", err)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	rules, err := core.LoadRules(cfg.Correlation.RulesFile, logger)
	if err != nil {
		errorf("loading rules: %v", err)
	}

	if *jsonOut {
		data, err := json.MarshalIndent(rules, "", "  ")
		if err != nil {
			errorf("encoding rules: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("%s %d correlation rules loaded\n\n", bold("◆"), len(rules))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Severity", "Window", "Patterns", "Constraint"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, r := range rules {
		constraint := "-"
		if r.SameIP {
			constraint = "same_ip"
		} else if r.SameHost {
			constraint = "same_host"
		}

		patterns := make([]string, 0, len(r.Required))
		for _, p := range r.Required {
			desc := string(p.Source)
			if p.Pattern != "" {
				desc += " ~ " + p.Pattern
			}
			patterns = append(patterns, desc)
		}

		table.Append([]string{
			r.RuleID,
			r.Name,
			colorSeverity(r.Severity),
			fmt.Sprintf("%ds", r.TimeWindow),
			strings.Join(patterns, "; "),
			constraint,
		})
	}
	table.Render()
}

func colorSeverity(s core.Severity) string {
	switch s {
	case core.SeverityCritical:
		return red(s.String())
	case core.SeverityHigh:
		return yellow(s.String())
	default:
		return s.String()
	}
}
