package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/agent"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/api"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/auth"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/config"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/history"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/report"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/scan"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/settings"
)

// newStore builds the scan store for the configured source. Whitelisted
// devices from the settings are hidden.
func newStore(cfg config.Config) (*scan.Store, *settings.Manager, error) {
	mgr, err := settings.NewManager(cfg.SettingsFile, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load settings: %w", err)
	}

	source, err := scan.NewSource(&cfg, log)
	if err != nil {
		return nil, nil, err
	}

	store := scan.NewStore(source, scan.Options{
		NetworkName: cfg.NetworkName,
		AttackDelay: cfg.AttackDelay,
		Excluder:    mgr,
	}, log)
	return store, mgr, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// commandDashboard returns the dashboard command configuration
func commandDashboard() *cli.Command {
	return &cli.Command{
		Name:    "dashboard",
		Aliases: []string{"d"},
		Usage:   "Start the web dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the dashboard on",
				EnvVars: []string{"IOT_SCANNER_PORT"},
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind the dashboard to",
			},
			&cli.StringFlag{
				Name:  "settings",
				Usage: "YAML `FILE` the user settings are kept in",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if v := c.String("port"); v != "" {
				cfg.DashboardPort = v
			}
			if v := c.String("host"); v != "" {
				cfg.DashboardHost = v
			}
			if v := c.String("settings"); v != "" {
				cfg.SettingsFile = v
			}

			store, mgr, err := newStore(cfg)
			if err != nil {
				return err
			}
			hist := history.NewStore(cfg.HistoryLimit, log)

			server := api.NewServer(api.Config{
				Host:           cfg.DashboardHost,
				Port:           cfg.DashboardPort,
				EnableCORS:     cfg.EnableCORS,
				EnableRealTime: cfg.EnableRealTime,
			}, api.Services{
				Store:    store,
				History:  hist,
				Reports:  report.NewService(hist, store),
				Settings: mgr,
				Auth:     auth.NewService(cfg.AuthDelay, log),
			}, log)

			displayBanner()
			color.Green("Starting dashboard on http://%s", server.Addr())
			color.Yellow("Scan source: %s", cfg.ScanSource)
			color.Yellow("Press Ctrl+C to stop the dashboard")

			ctx, stop := signalContext(c.Context)
			defer stop()
			return server.Start(ctx)
		},
	}
}

// commandScan returns the scan command configuration
func commandScan() *cli.Command {
	return &cli.Command{
		Name:    "scan",
		Aliases: []string{"s"},
		Usage:   "Run one scan and print the devices found",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the devices to `FILE` as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if v := c.String("output"); v != "" {
				cfg.OutputFile = v
			}

			store, _, err := newStore(cfg)
			if err != nil {
				return err
			}

			var summary scan.Summary
			store.OnComplete(func(s scan.Summary) { summary = s })

			events, unsubscribe := store.Subscribe(32)
			done := make(chan struct{})
			go func() {
				defer close(done)
				printEvents(events)
			}()

			displayBanner()
			color.Green("Starting %s scan of %s", cfg.ScanSource, cfg.NetworkName)

			ctx, stop := signalContext(c.Context)
			defer stop()

			startTime := time.Now()
			err = store.StartScan(ctx)
			unsubscribe()
			<-done

			if scan.IsCancelled(err) {
				color.Yellow("Scan cancelled")
				return nil
			}
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			if summary.Fallback {
				color.Yellow("Scan source failed, showing demonstration devices")
			}
			color.Green("Scan completed in %v", time.Since(startTime).Round(time.Millisecond))

			snap := store.Snapshot()
			printSummary(snap)

			if cfg.OutputFile != "" {
				if err := config.WriteResultsToFile(snap.Devices, cfg.OutputFile); err != nil {
					return fmt.Errorf("failed to write results: %w", err)
				}
				color.Green("Results saved to %s", cfg.OutputFile)
			}
			return nil
		},
	}
}

func printEvents(events <-chan scan.Event) {
	for ev := range events {
		switch ev.Type {
		case scan.EventProgress:
			color.Yellow("Scanning... %3d%% (%d devices)", ev.Progress, ev.Stats.TotalDevices)
		case scan.EventFallback:
			log.Warn(ev.Message)
		}
	}
}

func riskColor(r models.Risk) func(format string, a ...interface{}) {
	switch r {
	case models.RiskHigh:
		return color.Red
	case models.RiskMedium:
		return color.Yellow
	case models.RiskLow:
		return color.Green
	default:
		return color.Cyan
	}
}

func printSummary(snap scan.Snapshot) {
	color.Green("--- Scan Summary ---")
	color.Green("Devices: %d (%d vulnerable)", snap.Stats.TotalDevices, snap.Stats.VulnerableDevices)
	color.Green("Vulnerabilities: %d (%d high)", snap.Stats.TotalVulnerabilities, snap.Stats.HighRiskVulnerabilities)
	color.Green("Overall risk: %s", snap.RiskLevel)

	for _, d := range snap.Devices {
		riskColor(d.Risk)("%-20s %-15s %-17s %-12s %s", d.Name, d.IP, d.MAC, d.Type, d.Risk.Label())
		for _, v := range d.Vulnerabilities {
			fmt.Printf("    - %s (%s): %s\n", v.Name, v.Severity.Label(), v.Solution)
		}
	}
}

// commandAgent returns the agent command configuration
func commandAgent() *cli.Command {
	return &cli.Command{
		Name:  "agent",
		Usage: "Serve a simulated scanning backend for the remote source",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the agent on",
			},
			&cli.DurationFlag{
				Name:  "tick",
				Usage: "Delay between two progress steps of a job",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if v := c.String("port"); v != "" {
				cfg.AgentPort = v
			}
			if c.IsSet("tick") {
				cfg.AgentTick = c.Duration("tick")
			}

			a := agent.New(cfg.AgentTick, log)
			defer a.Close()

			srv := &http.Server{
				Addr:              net.JoinHostPort("", cfg.AgentPort),
				Handler:           a.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signalContext(c.Context)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				color.Green("Scan agent v%s listening on %s", agent.Version, srv.Addr)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			log.Info("Shutting down scan agent")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func historyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "filter",
			Aliases: []string{"f"},
			Value:   string(history.FilterAll),
			Usage:   "Filter (all, high-risk, last-7-days)",
		},
		&cli.StringFlag{
			Name:  "date",
			Usage: "Only scans of this day (YYYY-MM-DD)",
		},
		&cli.StringFlag{
			Name:  "sort",
			Usage: "Sort column (id, date, time, deviceCount, vulnerabilityCount, riskLevel, status)",
		},
		&cli.StringFlag{
			Name:  "dir",
			Value: string(history.DirAsc),
			Usage: "Sort direction (asc, desc)",
		},
	}
}

// commandHistory returns the history command configuration
func commandHistory() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List the recorded scans",
		Flags: historyFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			filter, err := history.ParseFilter(c.String("filter"))
			if err != nil {
				return err
			}
			q := history.Query{Filter: filter, Date: c.String("date")}
			if field := c.String("sort"); field != "" {
				f, err := history.ParseField(field)
				if err != nil {
					return err
				}
				dir, err := history.ParseDirection(c.String("dir"))
				if err != nil {
					return err
				}
				q.Sort = history.SortState{Field: f, Dir: dir}
			}

			records, err := history.NewStore(cfg.HistoryLimit, log).List(q)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				color.Yellow("No scans match the search")
				return nil
			}

			fmt.Printf("%-8s %-10s %-6s %8s %16s %-7s %s\n",
				"ID", "DATE", "TIME", "DEVICES", "VULNERABILITIES", "RISK", "STATUS")
			for _, r := range records {
				line := fmt.Sprintf("%-8s %-10s %-6s %8d %16d %-7s %s",
					r.ID, r.Date, r.Time, r.DeviceCount, r.VulnerabilityCount, r.RiskLevel, r.Status)
				switch r.RiskLevel {
				case history.RiskHigh:
					color.Red("%s", line)
				case history.RiskMedium:
					color.Yellow("%s", line)
				default:
					color.Green("%s", line)
				}
			}
			return nil
		},
	}
}

// commandReport returns the report command configuration
func commandReport() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Export the report of a scan",
		ArgsUsage: "[SCAN ID]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Value: string(report.FormatJSON),
				Usage: "Export format (json, csv, md)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report to `FILE` instead of stdout",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			format, err := report.ParseFormat(c.String("format"))
			if err != nil {
				return err
			}

			id := c.Args().First()
			if id == "" {
				id = "SC-001"
			}

			store, _, err := newStore(cfg)
			if err != nil {
				return err
			}
			hist := history.NewStore(cfg.HistoryLimit, log)
			reports := report.NewService(hist, store)

			// the current report needs a scan to describe
			if id == report.CurrentID {
				ctx, stop := signalContext(c.Context)
				defer stop()
				if err := store.StartScan(ctx); err != nil {
					return fmt.Errorf("scan failed: %w", err)
				}
			}

			r, err := reports.Get(id)
			if err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if path := c.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			if err := report.Write(w, r, format); err != nil {
				return fmt.Errorf("failed to export report: %w", err)
			}
			if path := c.String("output"); path != "" {
				color.Green("Report %s saved to %s", r.ID, path)
			}
			return nil
		},
	}
}
