package core

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ReloadConfig reloads the configuration from disk and applies the settings
// that can change without restarting the pipeline. Returns a list of what
// changed.
//
// Hot-reloadable settings:
//   - logging level
//   - dedup window
//   - correlation rules file and window (rule set is swapped atomically)
//   - webhook sink minimum severity (applied on next engine start)
//
// NOT hot-reloadable (require restart):
//   - bus config (NATS URL, port, data dir)
//   - server host/port
//   - pipeline queue size and worker count
//   - collector sources and syslog listener
func ReloadConfig(engine *Engine, configPath string, logger zerolog.Logger) ([]string, error) {
	if configPath == "" {
		return nil, fmt.Errorf("no config path set, cannot reload")
	}

	newCfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	var changes []string

	if newCfg.LogLevel() != engine.Config.LogLevel() {
		engine.Config.Logging.Level = newCfg.Logging.Level
		changes = append(changes, "logging.level -> "+newCfg.LogLevel())
	}

	if newCfg.Dedup.WindowSeconds != engine.Config.Dedup.WindowSeconds {
		engine.Config.Dedup.WindowSeconds = newCfg.Dedup.WindowSeconds
		engine.Dedup.SetWindow(time.Duration(newCfg.Dedup.WindowSeconds) * time.Second)
		changes = append(changes, fmt.Sprintf("dedup.window_seconds -> %d", newCfg.Dedup.WindowSeconds))
	}

	// Always re-read the rules file: the path may be unchanged while the
	// file contents were edited.
	rules, err := LoadRules(newCfg.Correlation.RulesFile, logger)
	if err != nil {
		return changes, fmt.Errorf("loading correlation rules: %w", err)
	}
	if newCfg.Correlation.RulesFile != engine.Config.Correlation.RulesFile {
		engine.Config.Correlation.RulesFile = newCfg.Correlation.RulesFile
		changes = append(changes, "correlation.rules_file -> "+newCfg.Correlation.RulesFile)
	}
	if newCfg.Correlation.WindowSeconds != engine.Config.Correlation.WindowSeconds {
		engine.Config.Correlation.WindowSeconds = newCfg.Correlation.WindowSeconds
		changes = append(changes, fmt.Sprintf("correlation.window_seconds -> %d", newCfg.Correlation.WindowSeconds))
	}
	if len(rules) != len(engine.Correlator.Rules()) {
		changes = append(changes, fmt.Sprintf("correlation rules -> %d rules", len(rules)))
	}
	engine.Correlator.ReplaceRules(rules, newCfg.Correlation.WindowSeconds)

	if newCfg.Outputs.Webhook.MinSeverity != engine.Config.Outputs.Webhook.MinSeverity {
		engine.Config.Outputs.Webhook.MinSeverity = newCfg.Outputs.Webhook.MinSeverity
		changes = append(changes, "outputs.webhook.min_severity -> "+newCfg.Outputs.Webhook.MinSeverity)
	}

	if len(changes) == 0 {
		changes = append(changes, "no changes detected")
	}

	logger.Info().Strs("changes", changes).Msg("configuration reloaded")
	return changes, nil
}
