package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/amontoro/strategos/pkg/agent"
	"github.com/amontoro/strategos/pkg/capability"
	"github.com/amontoro/strategos/pkg/config"
	"github.com/amontoro/strategos/pkg/playbook"
	"github.com/amontoro/strategos/pkg/telemetry"
	"github.com/amontoro/strategos/pkg/workflow"
)

const version = "0.3.0"

type globalFlags struct {
	ConfigArgs []string
	Timeout    time.Duration
	JSON       bool
	Help       bool
}

type validateResult struct {
	Playbook     string   `json:"playbook"`
	Steps        int      `json:"steps"`
	Agents       []string `json:"agents"`
	ToolsAllowed []string `json:"tools_allowed,omitempty"`
	Missing      []string `json:"missing_dependencies,omitempty"`
	Valid        bool     `json:"valid"`
}

type runResult struct {
	RunID      string         `json:"run_id"`
	Status     string         `json:"status"`
	FailedStep string         `json:"failed_step,omitempty"`
	Output     map[string]any `json:"output"`
	Error      string         `json:"error,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		fatal(err)
	}
	telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	switch args[0] {
	case "validate":
		runValidate(global, args[1:])
	case "run":
		runWorkflow(ctx, global, cfg, args[1:])
	case "audit":
		runAudit(ctx, global, cfg, args[1:])
	case "version":
		printVersion(global)
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{Timeout: 5 * time.Minute}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		case arg == "--set":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --set")
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--set="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		case arg == "--timeout":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --timeout")
			}
			value, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
			i++
		case strings.HasPrefix(arg, "--timeout="):
			value, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func runValidate(global globalFlags, args []string) {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	playbookPath := cmd.String("playbook", "", "path to the playbook file")
	rulesPath := cmd.String("rules", "", "path to the capability dependency rules file")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *playbookPath == "" {
		fatal(fmt.Errorf("--playbook is required"))
	}

	pb, err := playbook.Load(*playbookPath)
	if err != nil {
		fatal(err)
	}

	result := validateResult{
		Playbook:     pb.Name,
		Steps:        len(pb.Workflow),
		Agents:       pb.Agents,
		ToolsAllowed: pb.ToolsAllowed,
		Valid:        true,
	}

	if *rulesPath != "" {
		rules, err := capability.LoadRules(*rulesPath)
		if err != nil {
			fatal(err)
		}
		resolver := capability.NewResolver(rules)
		for _, missing := range resolver.Validate(pb.ToolsAllowed) {
			result.Missing = append(result.Missing, missing.String())
		}
		result.Valid = len(result.Missing) == 0
	}

	if global.JSON {
		printJSON(result)
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "playbook:\t%s\n", result.Playbook)
		fmt.Fprintf(w, "steps:\t%d\n", result.Steps)
		fmt.Fprintf(w, "agents:\t%s\n", strings.Join(result.Agents, ", "))
		fmt.Fprintf(w, "tools_allowed:\t%s\n", strings.Join(result.ToolsAllowed, ", "))
		fmt.Fprintf(w, "valid:\t%t\n", result.Valid)
		for _, missing := range result.Missing {
			fmt.Fprintf(w, "missing:\t%s\n", missing)
		}
		w.Flush()
	}
	if !result.Valid {
		os.Exit(1)
	}
}

func runWorkflow(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	playbookPath := cmd.String("playbook", "", "path to the playbook file")
	rolesPath := cmd.String("roles", "", "path to the role configuration file")
	rulesPath := cmd.String("rules", "", "path to the capability dependency rules file")
	inputJSON := cmd.String("input", "", "initial input as JSON")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *playbookPath == "" {
		fatal(fmt.Errorf("--playbook is required"))
	}

	shutdown, err := telemetry.InitWithConfig("strategos", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	pb, err := playbook.Load(*playbookPath)
	if err != nil {
		fatal(err)
	}

	var roles []agent.RoleConfig
	if *rolesPath != "" {
		roles, err = agent.LoadRoles(*rolesPath)
		if err != nil {
			fatal(err)
		}
	} else {
		// Without a roles file, every declared agent gets a stub role so
		// the run can be exercised end to end with echo processors.
		for _, name := range pb.Agents {
			roles = append(roles, agent.RoleConfig{Name: name, Model: "echo"})
		}
	}

	var resolver *capability.Resolver
	if *rulesPath != "" {
		rules, err := capability.LoadRules(*rulesPath)
		if err != nil {
			fatal(err)
		}
		resolver = capability.NewResolver(rules)
	}

	var input map[string]any
	if *inputJSON != "" {
		if err := json.Unmarshal([]byte(*inputJSON), &input); err != nil {
			fatal(fmt.Errorf("invalid --input: %w", err))
		}
	}

	factory, err := agent.NewFactory(roles, agent.NewBundle(capability.NewRegistry()), resolver, agent.EchoProvider)
	if err != nil {
		fatal(err)
	}
	agents, err := workflow.BindAgents(factory, pb)
	if err != nil {
		fatal(err)
	}

	opts := []workflow.SchedulerOption{
		workflow.WithStepTimeout(cfg.StepTimeout()),
	}
	if resolver != nil {
		opts = append(opts, workflow.WithResolver(resolver))
	}
	if metrics, err := telemetry.NewWorkflowMetrics(); err == nil {
		opts = append(opts, workflow.WithMetrics(metrics))
	}
	store, err := openAuditStore(cfg)
	if err != nil {
		fatal(err)
	}
	if store != nil {
		defer store.Close()
		opts = append(opts, workflow.WithAuditStore(store))
	}

	sched := workflow.NewScheduler(agents, opts...)

	runCtx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()
	result, runErr := sched.Run(runCtx, pb, input)

	out := runResult{Status: string(workflow.StatusFailed)}
	if result != nil {
		out.RunID = result.RunID
		out.Status = string(result.Status)
		out.FailedStep = result.FailedStep
		out.Output = result.Output
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}

	if global.JSON {
		printJSON(out)
	} else {
		fmt.Printf("run %s: %s\n", out.RunID, out.Status)
		if out.FailedStep != "" {
			fmt.Printf("failed step: %s\n", out.FailedStep)
		}
		if out.Error != "" {
			fmt.Printf("error: %s\n", out.Error)
		}
		printJSON(out.Output)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func runAudit(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	cmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	dbPath := cmd.String("db", cfg.Workflow.Audit.Path, "path to the sqlite audit database")
	runID := cmd.String("run", "", "filter by run id")
	status := cmd.String("status", "", "filter by status")
	limit := cmd.Int("limit", 50, "maximum number of events")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *dbPath == "" {
		fatal(fmt.Errorf("--db is required (or set workflow.audit.path)"))
	}

	store, err := workflow.OpenSQLiteAuditStore(*dbPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	events, err := store.List(ctx, workflow.AuditFilter{
		RunID:  *runID,
		Status: *status,
		Limit:  *limit,
	})
	if err != nil {
		fatal(err)
	}

	if global.JSON {
		printJSON(events)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTEP\tTYPE\tSTATUS\tSTARTED")
	for _, event := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			event.RunID, event.StepID, event.StepType, event.Status,
			event.StartedAt.Format(time.RFC3339))
	}
	w.Flush()
}

func openAuditStore(cfg *config.Config) (workflow.AuditStore, error) {
	switch cfg.Workflow.Audit.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return workflow.NewMemoryAuditStore(), nil
	case "sqlite":
		return workflow.OpenSQLiteAuditStore(cfg.Workflow.Audit.Path)
	default:
		return nil, fmt.Errorf("unknown audit driver %q", cfg.Workflow.Audit.Driver)
	}
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(payload))
}

func printVersion(global globalFlags) {
	if global.JSON {
		printJSON(map[string]string{"version": version})
		return
	}
	fmt.Println("strategos", version)
}

func printUsage() {
	fmt.Println(`strategos - multi-agent workflow orchestration

Usage:
  strategos [global flags] <command> [command flags]

Commands:
  validate   validate a playbook and its capability dependencies
  run        execute a playbook with echo agents
  audit      list recorded audit events from a sqlite store
  version    print the version
  help       print this help

Global flags:
  --config <path>   configuration file
  --set key=value   configuration override (repeatable)
  --timeout <dur>   overall run timeout (default 5m)
  --json            JSON output

Examples:
  strategos validate --playbook examples/playbooks/research.yaml --rules examples/playbooks/rules.yaml
  strategos run --playbook examples/playbooks/research.yaml --input '{"topic":"pricing"}'
  strategos --json audit --db audit.db --run run-1234`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
