package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/eduplatform/examd/internal/aiq"
	"github.com/eduplatform/examd/internal/exam"
	"github.com/eduplatform/examd/internal/handler"
	appI18n "github.com/eduplatform/examd/internal/i18n"
	"github.com/eduplatform/examd/internal/model"
	"github.com/eduplatform/examd/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examd",
		Short: "Exam platform with AI-generated question support",
	}

	serve := serveCmd()
	root.AddCommand(serve, seedCmd(), importCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examd --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examd.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Exam title language (en, ar)")
	f.String("openai-base-url", "", "OpenAI-compatible API base URL (empty = provider default)")
	f.Bool("placeholder-ai", false, "Use the offline placeholder question generator")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create an initial user and AI model descriptor",
		RunE:  runSeed,
	}
	f := cmd.Flags()
	f.String("db", "examd.db", "SQLite database path")
	f.String("email", "admin@example.com", "Email for the seeded user")
	f.String("name", "Administrator", "Display name for the seeded user")
	f.String("password", "", "Password for the seeded user (or set EXAMD_PASSWORD)")
	f.String("ai-model-name", "", "Optional AI model descriptor name to create")
	f.String("ai-model-id", "", "Model identifier sent to the provider (e.g. gpt-4o-mini)")
	f.String("ai-api-key", "", "API key stored with the descriptor (or set EXAMD_AI_API_KEY)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Load questions from JSON files into the bank",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "examd.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("EXAMD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examd")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examd")
	v.AddConfigPath("/etc/examd")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var provider aiq.Provider
	if v.GetBool("placeholder-ai") {
		provider = &aiq.Placeholder{}
		slog.Info("using placeholder question generator")
	} else {
		provider = aiq.NewOpenAI(v.GetString("openai-base-url"))
	}

	svc := exam.New(db, provider, appI18n.NewLocalizer(lang))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	handler.New(db, svc).Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server", "addr", addr, "db", v.GetString("db"), "lang", lang)
	return http.ListenAndServe(addr, r)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedUser(db, v.GetString("email"), v.GetString("name"), v.GetString("password")); err != nil {
		return err
	}

	if name := v.GetString("ai-model-name"); name != "" {
		id, err := db.InsertAIModel(model.AIModel{
			Name:            name,
			ModelIdentifier: v.GetString("ai-model-id"),
			APIKey:          v.GetString("ai-api-key"),
			IsActive:        true,
		})
		if err != nil {
			return fmt.Errorf("create AI model descriptor: %w", err)
		}
		slog.Info("seeded AI model descriptor", "id", id, "name", name)
	}

	return nil
}

func seedUser(db *store.Store, email, name, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		slog.Info("users already exist, skipping seed")
		return nil
	}

	if password == "" {
		return fmt.Errorf("password is required: set --password flag or EXAMD_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	slog.Info("seeded initial user", "email", email)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		var imports []model.QuestionImport
		if err := json.Unmarshal(data, &imports); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for i, qi := range imports {
			q, err := questionFromImport(qi)
			if err != nil {
				return fmt.Errorf("%s entry %d: %w", path, i, err)
			}
			if _, err := db.InsertQuestion(q); err != nil {
				return fmt.Errorf("insert question from %s: %w", path, err)
			}
		}
		slog.Info("imported questions", "path", path, "count", len(imports))
	}

	return nil
}

func questionFromImport(qi model.QuestionImport) (model.Question, error) {
	if !qi.Specialization.Valid() {
		return model.Question{}, fmt.Errorf("invalid specialization %q", qi.Specialization)
	}
	if len(qi.OptionsText) == 0 {
		return model.Question{}, fmt.Errorf("question has no options")
	}
	if qi.CorrectOptionIndex < 0 || qi.CorrectOptionIndex >= len(qi.OptionsText) {
		return model.Question{}, fmt.Errorf("correct_option_index %d out of range", qi.CorrectOptionIndex)
	}
	if qi.Marks < 0 {
		return model.Question{}, fmt.Errorf("marks %d must be at least 1", qi.Marks)
	}
	marks := qi.Marks
	if marks == 0 {
		marks = 1
	}

	q := model.Question{
		Text:           qi.Text,
		Specialization: qi.Specialization,
		Year:           qi.Year,
		Marks:          marks,
		Difficulty:     qi.Difficulty,
		Attachment:     qi.Attachment,
	}
	for i, text := range qi.OptionsText {
		q.Options = append(q.Options, model.Option{Text: text, IsCorrect: i == qi.CorrectOptionIndex})
	}
	return q, nil
}
