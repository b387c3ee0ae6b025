package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/evalhub/internal/auth"
	"github.com/pavelanni/evalhub/internal/engine"
	"github.com/pavelanni/evalhub/internal/events"
	"github.com/pavelanni/evalhub/internal/handler"
	appI18n "github.com/pavelanni/evalhub/internal/i18n"
	"github.com/pavelanni/evalhub/internal/llm"
	"github.com/pavelanni/evalhub/internal/llm/prompts"
	"github.com/pavelanni/evalhub/internal/model"
	"github.com/pavelanni/evalhub/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "evalhub",
		Short: "Exam assignment and grading service",
	}

	serve := serveCmd()
	root.AddCommand(serve, importExamCmd(), importStudentsCmd(), exportCmd(), eventsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `evalhub --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(f *pflag.FlagSet) {
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db", "evalhub.db", "SQLite database path or Postgres DSN")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	addCommonFlags(f)
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("frontend-url", "http://localhost:3000", "Base URL magic links point to")
	f.String("jwt-secret", "", "Secret for signing teacher tokens (or set EVALHUB_JWT_SECRET)")
	f.Duration("jwt-ttl", 12*time.Hour, "Teacher token lifetime")
	f.StringSlice("cors-origins", []string{"http://localhost:3000"}, "Allowed CORS origins")
	f.Duration("request-timeout", 30*time.Second, "Per-request timeout")
	f.StringP("lang", "l", "en", "Default response language (en, es)")
	f.String("redis-url", "", "Redis URL for publishing lifecycle events (optional)")
	f.String("llm-url", "", "OpenAI-compatible API base URL; empty disables feedback suggestions")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Suggestion prompt variant (strict, standard, lenient)")
	f.String("teacher-email", "", "Seed teacher email")
	f.String("teacher-password", "", "Seed teacher password (or set EVALHUB_TEACHER_PASSWORD)")
	f.String("teacher-name", "Teacher", "Seed teacher full name")
	f.StringSliceP("exams", "e", nil, "Exam definition JSON files to import at start (repeatable)")
	return cmd
}

func importExamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-exam FILE...",
		Short: "Import exam definitions from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImportExam,
	}
	f := cmd.Flags()
	addCommonFlags(f)
	f.String("teacher-email", "", "Owner of exams whose file names no teacherEmail")
	return cmd
}

func importStudentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-students FILE",
		Short: "Import a CSV student roster",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportStudents,
	}
	f := cmd.Flags()
	addCommonFlags(f)
	f.String("teacher-email", "", "Roster owner (required)")
	f.StringSliceP("group", "g", nil, "Group ID every imported student joins (repeatable)")
	_ = cmd.MarkFlagRequired("teacher-email")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	addCommonFlags(f)
	f.String("teacher-email", "", "Exam owner (required)")
	f.String("exam-id", "", "Exam to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")

	_ = cmd.MarkFlagRequired("teacher-email")
	_ = cmd.MarkFlagRequired("exam-id")

	return cmd
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the lifecycle event log as JSON lines",
		RunE:  runEvents,
	}
	f := cmd.Flags()
	addCommonFlags(f)
	f.Int64("after", 0, "Print entries with a sequence number greater than this")
	f.Int("limit", 100, "Maximum number of entries")
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

	v.SetEnvPrefix("EVALHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("evalhub")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/evalhub")
	v.AddConfigPath("/etc/evalhub")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	driver := store.Driver(strings.ToLower(v.GetString("db-driver")))
	db, err := store.New(ctx, driver, v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret := v.GetString("jwt-secret")
	if secret == "" {
		return errors.New("jwt secret is required: set --jwt-secret flag or EVALHUB_JWT_SECRET env var")
	}

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	seed, err := seedTeacher(ctx, db, v.GetString("teacher-email"), v.GetString("teacher-password"), v.GetString("teacher-name"))
	if err != nil {
		return fmt.Errorf("seed teacher: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	sinks := []events.Sink{&events.LogSink{Logger: slog.Default()}, &events.StoreSink{Log: db}}
	if url := v.GetString("redis-url"); url != "" {
		sink, client, err := events.NewRedisSink(url)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis health check: %w", err)
		}
		slog.Info("publishing events to redis", "channel", sink.Channel)
		sinks = append(sinks, sink)
	}
	dispatcher := events.NewDispatcher(sinks...)
	defer dispatcher.Close()

	svc := engine.New(db,
		engine.WithNotifier(dispatcher),
		engine.WithFrontendURL(v.GetString("frontend-url")),
	)

	if paths := v.GetStringSlice("exams"); len(paths) > 0 {
		ownerID := ""
		if seed != nil {
			ownerID = seed.ID
		}
		if err := importExams(ctx, db, svc, ownerID, paths); err != nil {
			return fmt.Errorf("import exams: %w", err)
		}
	}

	var suggester handler.Suggester
	if llmURL := v.GetString("llm-url"); llmURL != "" {
		promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
		if !prompts.IsValidVariant(promptVariant) {
			slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
			promptVariant = string(prompts.PromptStandard)
		}
		llmClient, err := llm.New(llmURL, v.GetString("llm-key"), v.GetString("llm-model"), promptVariant)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		if err := llmClient.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", llmURL, "model", v.GetString("llm-model"))
		suggester = llmClient
	}

	h := handler.New(svc, auth.NewService(secret, v.GetDuration("jwt-ttl")), db, suggester)
	srv := &http.Server{
		Addr: v.GetString("addr"),
		Handler: h.Router(handler.RouterConfig{
			CORSOrigins:    v.GetStringSlice("cors-origins"),
			RequestTimeout: v.GetDuration("request-timeout"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server",
		"addr", srv.Addr,
		"db_driver", db.Driver(),
		"lang", lang,
		"frontend_url", v.GetString("frontend-url"),
		"suggestions", suggester != nil,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runImportExam(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	ownerID := ""
	if email := v.GetString("teacher-email"); email != "" {
		t, err := teacherByEmail(ctx, db, email)
		if err != nil {
			return err
		}
		ownerID = t.ID
	}
	return importExams(ctx, db, engine.New(db), ownerID, args)
}

// importExams imports exam definition files. A file's teacherEmail names
// its owner; files without one belong to defaultOwner.
func importExams(ctx context.Context, db *store.Store, svc *engine.Service, defaultOwner string, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		var head struct {
			TeacherEmail string `json:"teacherEmail"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		owner := defaultOwner
		if head.TeacherEmail != "" {
			t, err := teacherByEmail(ctx, db, head.TeacherEmail)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			owner = t.ID
		}
		if owner == "" {
			return fmt.Errorf("%s: no owner: set teacherEmail in the file or --teacher-email", path)
		}

		exam, outcome, err := svc.ImportExam(ctx, owner, path, data)
		if err != nil {
			return err
		}
		if outcome == engine.ImportCreated {
			slog.Info("exam ready", "path", path, "exam_id", exam.ID, "title", exam.Title)
		}
	}
	return nil
}

func runImportStudents(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	t, err := teacherByEmail(ctx, db, v.GetString("teacher-email"))
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	res, err := engine.New(db).ImportStudentsCSV(ctx, t.ID, f, v.GetStringSlice("group"))
	if err != nil {
		return fmt.Errorf("import students: %w", err)
	}
	for _, e := range res.Errors {
		slog.Warn("row not imported", "row", e.Row, "email", e.Email, "error", e.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %d, failed %d\n", res.Created, res.Failed)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	t, err := teacherByEmail(ctx, db, v.GetString("teacher-email"))
	if err != nil {
		return err
	}
	export, err := engine.New(db).ExportResults(ctx, t.ID, v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func runEvents(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.EventLogSince(ctx, v.GetInt64("after"), v.GetInt("limit"))
	if err != nil {
		return fmt.Errorf("read event log: %w", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, e := range entries {
		line := struct {
			store.LogEntry
			Data json.RawMessage `json:"data"`
		}{LogEntry: e, Data: json.RawMessage(e.Data)}
		if !json.Valid(line.Data) {
			line.Data = nil
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
	return nil
}

func teacherByEmail(ctx context.Context, db *store.Store, email string) (*model.Teacher, error) {
	t, err := db.GetTeacherByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("get teacher: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("no teacher with email %s", email)
	}
	return t, nil
}

// seedTeacher makes sure the configured teacher exists and uses the
// configured password. It returns nil when no seed teacher is configured.
func seedTeacher(ctx context.Context, db *store.Store, email, password, name string) (*model.Teacher, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}

	existing, err := db.GetTeacherByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if password != "" && !auth.CheckPassword(existing.PasswordHash, password) {
			hash, err := auth.HashPassword(password)
			if err != nil {
				return nil, err
			}
			if err := db.UpdateTeacherPassword(ctx, existing.ID, hash); err != nil {
				return nil, fmt.Errorf("update seed teacher password: %w", err)
			}
			slog.Info("updated seed teacher password", "email", email)
		}
		return existing, nil
	}

	if password == "" {
		return nil, fmt.Errorf("teacher password is required: set --teacher-password flag or EVALHUB_TEACHER_PASSWORD env var")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	t := model.Teacher{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     name,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.CreateTeacher(ctx, t); err != nil {
		return nil, fmt.Errorf("create seed teacher: %w", err)
	}
	slog.Info("seeded teacher", "email", email)
	return &t, nil
}
