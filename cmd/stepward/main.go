package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/stepward/stepward/internal/capability"
	"github.com/stepward/stepward/internal/client"
	"github.com/stepward/stepward/internal/decision"
	"github.com/stepward/stepward/internal/engine"
	"github.com/stepward/stepward/internal/expressions"
	"github.com/stepward/stepward/internal/logging"
	"github.com/stepward/stepward/internal/planning"
	"github.com/stepward/stepward/internal/protocol"
	"github.com/stepward/stepward/internal/server"
	"github.com/stepward/stepward/internal/streaming"
	"github.com/stepward/stepward/pkg/schema"
)

const usage = `stepward - human-in-the-loop workflow runner

Usage:
  stepward serve                     start the decision service
  stepward run -topic <topic>        execute a research workflow
  stepward pending                   list decisions awaiting a human
  stepward decide <id> <true|false>  resolve a pending decision
  stepward version                   print version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(cfg, logger)
	case "run":
		err = runWorkflow(cfg, logger, os.Args[2:])
	case "pending":
		err = runPending(cfg, logger)
	case "decide":
		err = runDecide(cfg, logger, os.Args[2:])
	case "version":
		printVersion()
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", slog.String("command", os.Args[1]), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

// runServe starts the decision service with the stale-decision janitor.
func runServe(cfg Config, logger *slog.Logger) error {
	hub := streaming.NewMemoryHub()
	broker := decision.NewBroker(decision.Config{
		Timeout:      time.Duration(cfg.DecisionTimeoutSec) * time.Second,
		PollInterval: time.Duration(cfg.DecisionPollMS) * time.Millisecond,
	}, hub, logger)

	janitor, err := decision.NewJanitor(broker, cfg.JanitorSchedule, logger)
	if err != nil {
		return err
	}
	if err := janitor.Start(); err != nil {
		return err
	}
	defer janitor.Stop()

	srv := server.NewServer(server.Deps{Broker: broker, Hub: hub, Logger: logger})
	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("decision service listening", slog.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// runWorkflow executes the research workflow against a decision service.
func runWorkflow(cfg Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	topic := fs.String("topic", "", "research topic (required)")
	service := fs.String("service", cfg.BaseURL, "decision service base URL")
	threshold := fs.String("threshold", cfg.RiskThreshold, "risk level that triggers human approval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *topic == "" {
		fs.Usage()
		return schema.NewError(schema.ErrCodeValidation, "topic is required")
	}

	level, err := schema.ParseRiskLevel(*threshold)
	if err != nil {
		return err
	}

	registry, err := capability.DefaultRegistry()
	if err != nil {
		return err
	}
	parser, err := planning.NewParser()
	if err != nil {
		return err
	}
	enforcer, err := buildEnforcer(cfg, logger)
	if err != nil {
		return err
	}

	var gate engine.HumanGate
	if cfg.InterventionEnabled {
		c, err := client.New(client.Config{BaseURL: *service, Logger: logger})
		if err != nil {
			return err
		}
		gate = c
	}

	eng, err := engine.New(engine.Deps{
		Capabilities: registry,
		Planner:      parser,
		Enforcer:     enforcer,
		Gate:         gate,
		Logger:       logger,
		MaxNodes:     cfg.MaxNodeExecutions,
	})
	if err != nil {
		return err
	}

	state := schema.NewWorkflowState(uuid.NewString(), *topic, schema.InterventionConfig{
		Enabled:       cfg.InterventionEnabled,
		RiskThreshold: level,
	})

	final, runErr := eng.Run(context.Background(), state)
	printRunSummary(final)
	return runErr
}

// buildEnforcer registers the built-in policies plus any configured rules.
func buildEnforcer(cfg Config, logger *slog.Logger) (*protocol.Enforcer, error) {
	enforcer := protocol.NewEnforcer(logger)
	if err := enforcer.Register(protocol.NewSafetyPolicy(nil)); err != nil {
		return nil, err
	}
	if err := enforcer.Register(protocol.NewEthicalPolicy(nil)); err != nil {
		return nil, err
	}

	for _, rule := range cfg.PolicyRules {
		eng, err := ruleEngine(rule.Engine)
		if err != nil {
			return nil, err
		}
		policy, err := protocol.NewRulePolicy(rule.Name, rule.Rule, eng)
		if err != nil {
			return nil, err
		}
		if err := enforcer.Register(policy); err != nil {
			return nil, err
		}
	}
	return enforcer, nil
}

func ruleEngine(name string) (expressions.Engine, error) {
	switch strings.ToLower(name) {
	case "", "expr":
		return expressions.NewExprEngine(), nil
	case "cel":
		return expressions.NewCELEngine()
	case "jq":
		return expressions.NewGoJQEngine(), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown rule engine %q", name)
	}
}

func printRunSummary(state *schema.WorkflowState) {
	fmt.Printf("run:    %s\n", state.RunID)
	fmt.Printf("topic:  %s\n", state.Topic)
	fmt.Printf("status: %s\n", state.Status)
	if len(state.CompletedSteps) > 0 {
		fmt.Printf("completed: %s\n", strings.Join(state.CompletedSteps, ", "))
	}
	fmt.Println("log:")
	for _, line := range state.Logs {
		fmt.Printf("  %s\n", line)
	}
}

// runPending lists decisions awaiting a human.
func runPending(cfg Config, logger *slog.Logger) error {
	c, err := client.New(client.Config{BaseURL: cfg.BaseURL, Logger: logger})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pending, err := c.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("no pending decisions")
		return nil
	}
	for _, d := range pending {
		fmt.Printf("%s  %s\n", d.ID, d.Message)
	}
	return nil
}

// runDecide resolves a pending decision: stepward decide <id> <true|false>.
func runDecide(cfg Config, logger *slog.Logger, args []string) error {
	if len(args) != 2 {
		return schema.NewError(schema.ErrCodeValidation, "usage: stepward decide <id> <true|false>")
	}
	approved := args[1] == "true" || args[1] == "1"
	if !approved && args[1] != "false" && args[1] != "0" {
		return schema.NewErrorf(schema.ErrCodeValidation, "verdict must be true or false, got %q", args[1])
	}

	c, err := client.New(client.Config{BaseURL: cfg.BaseURL, Logger: logger})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := c.Submit(ctx, args[0], approved)
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}
