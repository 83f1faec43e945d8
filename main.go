package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mykhaliev/timeline-evals/logger"
	"github.com/mykhaliev/timeline-evals/model"
	"github.com/mykhaliev/timeline-evals/registry"
	"github.com/mykhaliev/timeline-evals/report"
	"github.com/mykhaliev/timeline-evals/runner"
	"github.com/mykhaliev/timeline-evals/templates"
	"github.com/mykhaliev/timeline-evals/version"
)

const (
	AppName = "timeline-evals"
)

func main() {
	suitePath := flag.String("s", "", "Path to the suite configuration file (YAML)")
	scenarioDir := flag.String("d", "", "Path to a scenario directory (overrides suite scenario_dirs)")
	traceDir := flag.String("t", "", "Path to the captured trace directory (overrides suite trace_dir)")
	outputPath := flag.String("o", "", "Path to the output JSON results file")
	markdownPath := flag.String("m", "", "Path to the output markdown report file")
	logPath := flag.String("l", "", "Path to the log file (if not set, logs to stdout)")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	showVersion := flag.Bool("v", false, "Show version and exit")

	flag.Parse()

	fmt.Printf("Version: %s\nCommit: %s\nBuildDate: %s\n",
		version.Version, version.Commit, version.BuildDate)
	if *showVersion {
		return
	}

	logWriter, logFile, err := logger.SetupLogWriter(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetupLogger(logWriter, *verbose)
	templates.NewTemplateEngine()

	if *suitePath == "" && *scenarioDir == "" {
		fmt.Fprintf(os.Stderr, "Error: -s <suite-file> or -d <scenario-dir> is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	suite := &model.SuiteConfig{}
	if *suitePath != "" {
		suite, err = model.ParseSuiteConfig(*suitePath)
		if err != nil {
			logger.Logger.Error("Failed to load suite config", "error", err)
			os.Exit(1)
		}
	}
	if *scenarioDir != "" {
		suite.ScenarioDirs = []string{*scenarioDir}
	}
	if *traceDir != "" {
		suite.TraceDir = *traceDir
	}
	if len(suite.ScenarioDirs) == 0 {
		logger.Logger.Error("No scenario directories configured")
		os.Exit(1)
	}
	if suite.TraceDir == "" {
		logger.Logger.Error("No trace directory configured")
		os.Exit(1)
	}

	logger.Logger.Info("Starting evaluation",
		"app", AppName,
		"suite", suite.Name,
		"scenario_dirs", suite.ScenarioDirs,
		"trace_dir", suite.TraceDir,
		"verbose", *verbose)

	reg, err := registry.Load(suite.Variables, suite.ScenarioDirs...)
	if err != nil {
		logger.Logger.Error("Failed to load scenarios", "error", err)
		os.Exit(1)
	}

	run := runner.New(reg, suite.TraceDir, suite.Settings, suite.Criteria)
	result := run.Run(context.Background(), suite.Name)

	gen := report.NewGenerator()
	gen.PrintSummary(result)
	if *outputPath != "" {
		if err := gen.WriteJSON(result, *outputPath); err != nil {
			logger.Logger.Error("Failed to write JSON results", "error", err)
			os.Exit(1)
		}
	}
	if *markdownPath != "" {
		if err := gen.WriteMarkdown(result, *markdownPath); err != nil {
			logger.Logger.Error("Failed to write markdown report", "error", err)
			os.Exit(1)
		}
	}

	if !result.CriteriaMet {
		logger.Logger.Warn("Evaluation completed below success criteria")
		os.Exit(1)
	}
}
