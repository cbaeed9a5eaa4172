package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/intelligrade/intelligrade/internal/handler"
	appI18n "github.com/intelligrade/intelligrade/internal/i18n"
	"github.com/intelligrade/intelligrade/internal/llm"
	"github.com/intelligrade/intelligrade/internal/model"
	"github.com/intelligrade/intelligrade/internal/prefs"
	"github.com/intelligrade/intelligrade/internal/store"
	"github.com/intelligrade/intelligrade/internal/tutor"
)

const defaultLang = "en"

//go:generate templ generate -path ../../internal/handler/views

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "intelligrade",
		Short: "AP exam study platform with AI-generated practice and tutoring",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `intelligrade --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Duration("llm-timeout", 0, "Timeout for each LLM call (0 = none)")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP study server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "intelligrade.db", "SQLite database path")
	f.StringP("lang", "l", "", "Force UI language (en, es); empty negotiates from Accept-Language")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /study)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.Float64("rate-limit", 0.5, "AI requests per second per client (0 = unlimited)")
	f.Int("rate-burst", 5, "Burst size of the per-client AI rate limit")
	f.Duration("idle-timeout", 2*time.Hour, "Drop practice sessions and tutor conversations unused this long (0 = never)")
	f.Bool("skip-ping", false, "Start without checking the LLM endpoint")
	addLLMFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate practice content for a subject and print it as JSON",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringP("subject", "s", "", "Exam subject, e.g. \"AP Biology\" (required)")
	f.StringP("type", "t", string(model.TypeMCQ), "Question type (MCQ, SAQ, DBQ, LEQ, FRQ) or FULL for a full-length exam")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLLMFlags(cmd)
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded practice attempts as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "intelligrade.db", "SQLite database path")
	f.String("exam-id", "", "Only export attempts for this exam (e.g. ap-biology)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("INTELLIGRADE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("intelligrade")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/intelligrade")
	v.AddConfigPath("/etc/intelligrade")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func newLLMClient(v *viper.Viper) (*llm.Client, error) {
	c, err := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		v.GetDuration("llm-timeout"),
	)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	return c, nil
}

// normalizeBasePath returns "" or a path with a leading and no trailing slash.
func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := strings.TrimSpace(v.GetString("lang"))
	defLang := lang
	if defLang == "" {
		defLang = defaultLang
	}
	if err := appI18n.Init(defLang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient, err := newLLMClient(v)
	if err != nil {
		return err
	}
	if v.GetBool("skip-ping") {
		slog.Warn("skipping LLM health check")
	} else {
		if err := llmClient.Ping(context.Background()); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", llmClient.Model())
	}

	basePath := normalizeBasePath(v.GetString("base-path"))
	cfg := model.AppConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		RateLimit:     v.GetFloat64("rate-limit"),
		RateBurst:     v.GetInt("rate-burst"),
		IdleTimeout:   v.GetDuration("idle-timeout"),
	}

	h := handler.New(llmClient, tutor.Gateway(llmClient), prefs.Load(db), db, cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", llmClient.Model(),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"base_path", basePath,
		"rate_limit", cfg.RateLimit,
		"rate_burst", cfg.RateBurst,
		"idle_timeout", cfg.IdleTimeout,
	)
	return http.ListenAndServe(addr, r)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	subject := strings.TrimSpace(v.GetString("subject"))
	if subject == "" {
		return fmt.Errorf("subject is required")
	}
	llmClient, err := newLLMClient(v)
	if err != nil {
		return err
	}

	ctx := context.Background()
	kind := strings.ToUpper(strings.TrimSpace(v.GetString("type")))
	var out any
	switch {
	case kind == "FULL":
		out, err = llmClient.GenerateFullExam(ctx, subject)
	case kind == string(model.TypeMCQ):
		out, err = llmClient.GeneratePracticeSet(ctx, subject)
	default:
		qt, ok := model.ParseQuestionType(kind)
		if !ok {
			return fmt.Errorf("unknown question type %q", kind)
		}
		out, err = llmClient.GenerateFreeResponse(ctx, subject, qt)
	}
	if err != nil {
		return fmt.Errorf("generate %s for %s: %w", kind, subject, err)
	}

	return writeJSON(v.GetString("output"), out)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAttempts(context.Background(), v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("export attempts: %w", err)
	}
	slog.Info("exporting attempts", "count", export.Count)

	return writeJSON(v.GetString("output"), export)
}

func writeJSON(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}
