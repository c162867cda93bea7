package main

// ---------------------------------------------------------------------------
// cmd_config.go — show or write the configuration file
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fuseid-project/fuseid/internal/core"
)

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	initOut := fs.Bool("init", false, "Write the default config to the config path")
	fs.Parse(args)

	path := envConfig(*configPath)

	if *initOut {
		if _, err := os.Stat(path); err == nil {
			errorf("config file %s already exists", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			errorf("creating config directory: %v", err)
		}
		if err := core.SaveConfig(core.DefaultConfig(), path); err != nil {
			errorf("writing config: %v", err)
		}
		fmt.Printf("%s wrote default config to %s\n", cyan("✓"), path)
		return
	}

	cfg, err := core.LoadConfig(path)
	if err != nil {
		errorf("loading config: %v", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		errorf("encoding config: %v", err)
	}
	fmt.Print(string(data))
}
