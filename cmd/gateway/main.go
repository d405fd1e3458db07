package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/lexgate/lexgate/pkg/audit"
	"github.com/lexgate/lexgate/pkg/config"
	"github.com/lexgate/lexgate/pkg/filter"
	"github.com/lexgate/lexgate/pkg/patterns"
)

const Version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cfg := config.NewDefaultConfig()
		if len(os.Args) > 2 {
			cfg.Port = os.Args[2]
		}
		cfg.MustValidate()
		runHTTPServer(cfg)
	case "filter":
		if len(os.Args) < 3 {
			fmt.Println("Usage: lexgate filter <text>")
			os.Exit(1)
		}
		runCLIFilter(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("LexGate v%s\n", Version)
		fmt.Println("UPL Compliance Filter for AI Output")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("LexGate v%s - UPL Compliance Filter\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  lexgate serve [port]    Start HTTP gateway (default: 8090)")
	fmt.Println("  lexgate filter <text>   Filter one text and print the decision")
	fmt.Println("  lexgate version         Show version")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Println("  lexgate serve 8090")
	fmt.Println("  lexgate filter \"You should definitely sue your employer\"")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  LEXGATE_ADVICE_THRESHOLD  Risk score requiring neutralization (default: 0.25)")
	fmt.Println("  LEXGATE_RULES             Path to YAML pattern rules")
	fmt.Println("  LEXGATE_TEMPLATES         Path to YAML replacement templates")
	fmt.Println("  LEXGATE_REDIS_ADDR        Redis audit sink address")
	fmt.Println("  LEXGATE_POSTGRES_DSN      Postgres audit sink DSN")
	fmt.Println("  LEXGATE_ENABLE_SEMANTICS  Embedding escalation layer (requires Ollama)")
}

// buildPipeline assembles the filter from configuration. Missing optional
// pieces log and degrade; a broken rule file is fatal because running with
// half a rule table is worse than not running.
func buildPipeline(cfg *config.Config) *filter.Pipeline {
	registry := patterns.Get()
	if cfg.PatternRulesPath != "" {
		loaded, err := patterns.LoadFromFile(cfg.PatternRulesPath)
		if err != nil {
			log.Fatalf("[STARTUP] FATAL: Pattern rules failed to load from %s: %v", cfg.PatternRulesPath, err)
		}
		registry = loaded
		log.Printf("[STARTUP] Loaded %d patterns (version %s) from %s", registry.TotalPatterns(), registry.Version, cfg.PatternRulesPath)
	}

	matcher := filter.NewPatternMatcher(registry, cfg.AdviceThreshold)
	var templates *filter.ReplacementTemplates
	if cfg.TemplatesPath != "" {
		loaded, err := filter.LoadTemplates(cfg.TemplatesPath)
		if err != nil {
			log.Fatalf("[STARTUP] FATAL: Replacement templates failed to load from %s: %v", cfg.TemplatesPath, err)
		}
		templates = loaded
		log.Printf("[STARTUP] Loaded replacement templates (version %s)", templates.Version)
	}

	opts := []filter.PipelineOption{
		filter.WithNeutralizer(filter.NewAdviceNeutralizer(matcher, templates)),
		filter.WithStreamChunkLimit(cfg.MaxStreamChunks),
		filter.WithSinkConcurrency(cfg.SinkConcurrency),
	}

	if sinks := buildSinks(cfg); len(sinks) > 0 {
		opts = append(opts, filter.WithSinks(sinks...))
	}

	if cfg.EnableSemantics {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		if sd := filter.NewOptionalSemanticDetector(ctx, cfg.OllamaBaseURL); sd != nil {
			opts = append(opts, filter.WithSemanticDetector(sd))
		}
		cancel()
	}
	if c := filter.NewOptionalAdviceClassifier(); c != nil {
		opts = append(opts, filter.WithAdviceClassifier(c))
	}

	return filter.NewPipeline(registry, cfg.AdviceThreshold, opts...)
}

// buildSinks wires the configured audit sinks. Sink failures at startup
// log and skip; the in-memory decision log still works.
func buildSinks(cfg *config.Config) []filter.Sink {
	var sinks []filter.Sink
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if fs, err := audit.NewFileSink(cfg.AuditLogPath); err != nil {
		log.Printf("[WARN] File audit sink disabled: %v", err)
	} else {
		sinks = append(sinks, fs)
		log.Printf("[STARTUP] File audit sink writing to %s", cfg.AuditLogPath)
	}

	if cfg.RedisAddr != "" {
		if rs, err := audit.NewRedisSink(ctx, cfg.RedisAddr); err != nil {
			log.Printf("[WARN] Redis audit sink disabled: %v", err)
		} else {
			sinks = append(sinks, rs)
			log.Printf("[STARTUP] Redis audit sink connected to %s", cfg.RedisAddr)
		}
	}

	if cfg.PostgresDSN != "" {
		if ps, err := audit.NewPostgresSink(ctx, cfg.PostgresDSN); err != nil {
			log.Printf("[WARN] Postgres audit sink disabled: %v", err)
		} else {
			sinks = append(sinks, ps)
			log.Println("[STARTUP] Postgres audit sink connected")
		}
	}
	return sinks
}

func requestContext(c fiber.Ctx) filter.RequestContext {
	return filter.RequestContext{
		Path:      c.Path(),
		UserAgent: c.Get("User-Agent"),
		SourceIP:  c.IP(),
	}
}

func runHTTPServer(cfg *config.Config) {
	pipeline := buildPipeline(cfg)
	defer func() {
		if err := pipeline.Close(); err != nil {
			log.Printf("[WARN] Pipeline shutdown: %v", err)
		}
	}()

	app := newApp(pipeline)

	log.Printf("[STARTUP] LexGate v%s listening on :%s (threshold %.2f)", Version, cfg.Port, cfg.AdviceThreshold)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("[STARTUP] FATAL: Server failed: %v", err)
	}
}

// newApp wires the HTTP routes onto a pipeline.
func newApp(pipeline *filter.Pipeline) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "LexGate",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	})

	// Filter one complete response payload.
	app.Post("/filter", func(c fiber.Ctx) error {
		var req struct {
			Payload      any    `json:"payload"`
			ResponseType string `json:"response_type"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Payload == nil {
			return c.Status(400).JSON(fiber.Map{"error": "payload field is required"})
		}
		if req.ResponseType == "" {
			req.ResponseType = "completion"
		}

		result := pipeline.FilterResponse(c.Context(), req.Payload, requestContext(c), req.ResponseType)
		return c.JSON(result)
	})

	// Filter a streamed response. Request body is NDJSON, one payload
	// chunk per line; the response is NDJSON of filtered chunks.
	app.Post("/filter/stream", func(c fiber.Ctx) error {
		reqCtx := requestContext(c)
		body := c.Body()

		in := make(chan any)
		session := pipeline.NewStreamSession(reqCtx)
		out := session.FilterStream(c.Context(), in)

		// done is closed when the session stops receiving (terminal chunk
		// or cancellation) so the producer does not block on a dead channel.
		done := make(chan struct{})

		go func() {
			defer close(in)
			scanner := bufio.NewScanner(strings.NewReader(string(body)))
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				var payload any
				if err := json.Unmarshal([]byte(line), &payload); err != nil {
					payload = line // raw text chunk
				}
				select {
				case in <- payload:
				case <-done:
					return
				}
			}
		}()

		pr, pw := io.Pipe()
		go func() {
			defer close(done)
			enc := json.NewEncoder(pw)
			for chunk := range out {
				if err := enc.Encode(chunk); err != nil {
					pw.CloseWithError(err)
					return
				}
			}
			pw.Close()
		}()

		c.Set("Content-Type", "application/x-ndjson")
		return c.SendStream(pr)
	})

	app.Get("/stats", func(c fiber.Ctx) error {
		return c.JSON(pipeline.Stats().Snapshot())
	})

	app.Get("/audit/blocked", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"records": pipeline.BlockedRecords()})
	})

	app.Get("/audit/reviews", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"records": pipeline.ReviewQueue()})
	})

	return app
}

func runCLIFilter(text string) {
	cfg := config.NewDefaultConfig()
	pipeline := buildPipeline(cfg)
	defer func() { _ = pipeline.Close() }()

	result := pipeline.FilterResponse(context.Background(), text, filter.RequestContext{Path: "cli"}, "cli")

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("encode result: %v", err)
	}
	fmt.Println(string(out))

	if result.Status != filter.FilterCompliant {
		os.Exit(2)
	}
}
