package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/opencortex/modelstream/client"
	"github.com/opencortex/modelstream/config"
	"github.com/opencortex/modelstream/llm"
	"github.com/opencortex/modelstream/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse command-line flags
	var (
		configPath = flag.String("config", config.GetConfigPath(), "Path to config file")
		provider   = flag.String("provider", "", "Provider name (overrides config)")
		model      = flag.String("model", "", "Model name (overrides config)")
		effort     = flag.String("effort", "", "Reasoning effort: minimal, low, medium, high")
		complete   = flag.Bool("complete", false, "Use the non-streaming endpoint")
		logFile    = flag.String("logfile", "", "Path to log file. If not set, logs to stderr")
		pretty     = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}
	if flag.NArg() == 0 {
		return fmt.Errorf("usage: modelstream [flags] <prompt text>")
	}
	promptText := strings.Join(flag.Args(), " ")

	log, err := logger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *provider != "" {
		cfg.Provider = *provider
	}
	if *model != "" {
		cfg.Model = *model
	}

	providerInfo, err := cfg.ResolveProvider(cfg.Provider)
	if err != nil {
		return err
	}

	opts := cfg.TurnOptions()
	if *effort != "" {
		opts.ReasoningEffort = llm.ReasoningEffort(*effort)
	}

	modelClient, err := client.New(providerInfo, cfg.Model, &http.Client{}, log)
	if err != nil {
		return err
	}

	// Cancel the in-flight request on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prompt := &llm.Prompt{Input: []llm.ResponseItem{llm.NewUserMessage(promptText)}}

	if *complete {
		return runComplete(ctx, modelClient, prompt, opts)
	}
	return runStream(ctx, modelClient, prompt, opts)
}

func runStream(ctx context.Context, modelClient *client.ModelClient, prompt *llm.Prompt, opts llm.TurnOptions) error {
	stream, err := modelClient.Stream(ctx, prompt, opts)
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Next() {
		event := stream.Event()
		switch event.Type {
		case llm.EventTypeOutputTextDelta:
			fmt.Print(event.Delta)
		case llm.EventTypeReasoningSummaryDelta:
			fmt.Fprint(os.Stderr, event.Delta)
		case llm.EventTypeRateLimits:
			printRateLimits(event.RateLimits)
		case llm.EventTypeCompleted:
			fmt.Println()
			printUsage(event.Usage)
		}
	}
	return stream.Err()
}

func runComplete(ctx context.Context, modelClient *client.ModelClient, prompt *llm.Prompt, opts llm.TurnOptions) error {
	response, err := modelClient.Complete(ctx, prompt, opts)
	if err != nil {
		return err
	}
	for _, item := range response.Output {
		if text := item.Text(); text != "" {
			fmt.Println(text)
		}
	}
	printUsage(response.Usage)
	return nil
}

func printRateLimits(snapshot *llm.RateLimitSnapshot) {
	if snapshot == nil || snapshot.Primary == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "rate limit: %.1f%% of primary window used\n", snapshot.Primary.UsedPercent)
}

func printUsage(usage *llm.TokenUsage) {
	if usage == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "tokens: %d in (%d cached), %d out (%d reasoning)\n",
		usage.InputTokens, usage.CachedInputTokens, usage.OutputTokens, usage.ReasoningOutputTokens)
}
