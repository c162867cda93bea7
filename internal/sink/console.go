package sink

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/fuseid-project/fuseid/internal/core"
)

var severityColors = map[core.Severity]func(a ...interface{}) string{
	core.SeverityInfo:     color.New(color.FgBlue).SprintFunc(),
	core.SeverityLow:      color.New(color.FgGreen).SprintFunc(),
	core.SeverityMedium:   color.New(color.FgYellow).SprintFunc(),
	core.SeverityHigh:     color.New(color.FgRed).SprintFunc(),
	core.SeverityCritical: color.New(color.FgMagenta, color.Bold).SprintFunc(),
}

// ConsoleSink prints alerts to stdout with severity coloring.
type ConsoleSink struct {
	verbose bool
}

// NewConsoleSink creates a console sink.
func NewConsoleSink(cfg core.ConsoleSinkConfig) *ConsoleSink {
	return &ConsoleSink{verbose: cfg.Verbose}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Write(alert *core.UnifiedAlert) error {
	colorize := severityColors[alert.Severity]
	if colorize == nil {
		colorize = fmt.Sprint
	}

	fmt.Printf("%s [%s] %s\n", colorize("["+alert.Severity.String()+"]"), alert.Source, alert.Title)
	if s.verbose {
		if alert.Description != "" {
			fmt.Printf("  Description: %s\n", alert.Description)
		}
		fmt.Printf("  Time: %s\n", alert.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
		fmt.Printf("  ID: %s\n", alert.ID)
		fmt.Printf("  Risk: %d\n", alert.RiskScore)
	}
	return nil
}

func (s *ConsoleSink) Close() error { return nil }
