package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/config"
)

const (
	appName    = "IoT Security Scanner Dashboard"
	appVersion = "1.0.0"
)

var log = logrus.New()

func main() {
	app := &cli.App{
		Name:    "iot-scanner",
		Usage:   "IoT device security dashboard and scan tools",
		Version: appVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Load configuration from `FILE` (JSON or YAML)",
				EnvVars: []string{"IOT_SCANNER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"IOT_SCANNER_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "source",
				Usage:   "Scan source (mock, remote, capture)",
				EnvVars: []string{"IOT_SCANNER_SOURCE"},
			},
			&cli.StringFlag{
				Name:    "remote-url",
				Usage:   "Base URL of the scanning backend",
				EnvVars: []string{"IOT_SCANNER_REMOTE_URL"},
			},
			&cli.StringFlag{
				Name:  "capture",
				Usage: "pcap `FILE` read by the capture source",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"vv"},
				Usage:   "Enable verbose output",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				level = logrus.InfoLevel
			}
			if c.Bool("verbose") {
				level = logrus.DebugLevel
			}
			log.SetLevel(level)
			log.SetFormatter(&logrus.TextFormatter{
				FullTimestamp:   true,
				TimestampFormat: "2006-01-02 15:04:05",
			})
			return nil
		},
		Commands: []*cli.Command{
			commandDashboard(),
			commandScan(),
			commandAgent(),
			commandHistory(),
			commandReport(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the configuration file when it exists and applies the
// global flag overrides
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.DefaultConfig()

	path := c.String("config")
	if fileExists(path) {
		loaded, err := config.LoadConfigFromFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
		log.WithField("path", path).Debug("Configuration loaded")
	} else if c.IsSet("config") {
		return cfg, fmt.Errorf("config file %s does not exist", path)
	}

	if v := c.String("source"); v != "" {
		cfg.ScanSource = v
	}
	if v := c.String("remote-url"); v != "" {
		cfg.RemoteURL = v
	}
	if v := c.String("capture"); v != "" {
		cfg.CaptureFile = v
	}
	cfg.Verbose = cfg.Verbose || c.Bool("verbose")

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func displayBanner() {
	color.Cyan("==============================================")
	color.Cyan("  %s v%s", appName, appVersion)
	color.Cyan("==============================================")
}

// fileExists checks if a file exists
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
