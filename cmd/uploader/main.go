// Команда uploader загружает документы заявки на тендер через API сервиса.
//
//	uploader upload --tender <id> --question <id> <file>
//	uploader status --tender <id>
//	uploader submit --tender <id>
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tenderdocs/internal/auth"
	"tenderdocs/internal/client/api"
	"tenderdocs/internal/client/formstate"
	"tenderdocs/internal/client/uploader"
	"tenderdocs/internal/domain"
)

type options struct {
	ServerURL   string        `mapstructure:"server"`
	Token       string        `mapstructure:"token"`
	UserID      string        `mapstructure:"user"`
	JWTSecret   string        `mapstructure:"jwt-secret"`
	TenderID    string        `mapstructure:"tender"`
	QuestionID  string        `mapstructure:"question"`
	ContentType string        `mapstructure:"content-type"`
	Concurrency int           `mapstructure:"concurrency"`
	Debounce    time.Duration `mapstructure:"debounce"`
	Verbose     bool          `mapstructure:"verbose"`
}

func loadOptions(args []string) (*options, []string, error) {
	flags := pflag.NewFlagSet("uploader", pflag.ContinueOnError)
	flags.String("server", "http://localhost:2525", "base URL of the upload service")
	flags.String("token", "", "bearer token")
	flags.String("user", "", "user id for a locally signed development token")
	flags.String("jwt-secret", "", "secret for a locally signed development token")
	flags.String("tender", "", "tender id")
	flags.String("question", "", "question id")
	flags.String("content-type", "", "content type, detected from the file when empty")
	flags.Int("concurrency", 5, "parallel part uploads")
	flags.Duration("debounce", formstate.DefaultDebounce, "form state save debounce")
	flags.BoolP("verbose", "v", false, "debug logging")

	if err := flags.Parse(args); err != nil {
		return nil, nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("UPLOADER")
	v.AutomaticEnv()
	v.BindEnv("jwt-secret", "AUTH_JWT_SECRET")
	if err := v.BindPFlags(flags); err != nil {
		return nil, nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	var opts options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	return &opts, flags.Args(), nil
}

func (o *options) token() (string, error) {
	if o.Token != "" {
		return o.Token, nil
	}
	if o.UserID == "" || o.JWTSecret == "" {
		return "", errors.New("either --token or --user with --jwt-secret is required")
	}
	return auth.IssueToken(&auth.Config{JWTSecret: o.JWTSecret, Issuer: "tenderdocs", TokenTTL: time.Hour}, o.UserID, auth.RoleApplicant, time.Now())
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: uploader <upload|status|submit> [flags]")
		os.Exit(2)
	}
	command := os.Args[1]

	opts, args, err := loadOptions(os.Args[2:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level).With().Timestamp().Logger()

	tenderID, err := uuid.Parse(opts.TenderID)
	if err != nil {
		logger.Fatal().Err(err).Msg("--tender must be a valid id")
	}

	token, err := opts.token()
	if err != nil {
		logger.Fatal().Err(err).Msg("no credentials")
	}
	client := api.New(opts.ServerURL, token, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "upload":
		if len(args) != 1 {
			logger.Fatal().Msg("upload expects exactly one file")
		}
		err = runUpload(ctx, client, opts, tenderID, args[0], logger)
	case "status":
		err = runStatus(ctx, client, tenderID)
	case "submit":
		err = runSubmit(ctx, client, tenderID)
	default:
		err = fmt.Errorf("unknown command %q", command)
	}

	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			logger.Fatal().Str("code", apiErr.Code).Int("status", apiErr.Status).Msg(apiErr.Message)
		}
		logger.Fatal().Err(err).Msg(command + " failed")
	}
}

func runUpload(ctx context.Context, client *api.Client, opts *options, tenderID uuid.UUID, path string, logger zerolog.Logger) error {
	question, ok := domain.LookupQuestion(opts.QuestionID)
	if !ok {
		return fmt.Errorf("unknown question %q", opts.QuestionID)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	store, err := openStore(ctx, client, tenderID, opts.Debounce, logger)
	if err != nil {
		return err
	}

	var sink uploader.Sink
	if store != nil {
		sink = store
		defer store.Close()
	}

	cfg := uploader.DefaultConfig()
	cfg.Concurrency = opts.Concurrency
	registry := uploader.NewRegistry(uploader.New(client, nil, cfg, logger), sink)

	summary, err := registry.Start(ctx, uploader.Request{
		TenderID: tenderID,
		Question: question,
		File: uploader.File{
			Name:        filepath.Base(path),
			Size:        info.Size(),
			ContentType: opts.ContentType,
			Reader:      file,
		},
		OnProgress: func(pct int) {
			fmt.Fprintf(os.Stderr, "\r%s: %3d%%", question.ID, pct)
			if pct == 100 {
				fmt.Fprintln(os.Stderr)
			}
		},
	})

	if store == nil && err == nil {
		// Заявка создается при первом initiate, до этого состояние формы сохранить некуда
		var openErr error
		store, openErr = openStore(ctx, client, tenderID, opts.Debounce, logger)
		switch {
		case openErr != nil:
			logger.Warn().Err(openErr).Msg("failed to open form state")
		case store != nil:
			defer store.Close()
			store.UploadCompleted(question, summary)
		}
	}

	if store != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if flushErr := store.Flush(flushCtx); flushErr != nil {
			logger.Warn().Err(flushErr).Msg("failed to save form state")
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr)
			logger.Info().Msg("upload cancelled")
		}
		return err
	}

	fmt.Printf("%s\t%s\t%d bytes\n", summary.FileID, summary.FileName, summary.FileSizeBytes)
	return nil
}

// openStore возвращает nil, если заявки еще нет
func openStore(ctx context.Context, client *api.Client, tenderID uuid.UUID, debounce time.Duration, logger zerolog.Logger) (*formstate.Store, error) {
	status, err := client.Status(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	if status.Submission.ID == nil {
		return nil, nil
	}

	store := formstate.NewStore(client, tenderID, *status.Submission.ID, debounce, logger)
	if _, err := store.Load(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func runStatus(ctx context.Context, client *api.Client, tenderID uuid.UUID) error {
	status, err := client.Status(ctx, tenderID)
	if err != nil {
		return err
	}

	fmt.Printf("submission: %s", status.Submission.Status)
	if status.Submission.SubmittedAt != nil {
		fmt.Printf(" at %s", status.Submission.SubmittedAt.Format(time.RFC3339))
	}
	fmt.Println()

	ids := make([]string, 0, len(status.Uploads))
	for id := range status.Uploads {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		file := status.Uploads[id]
		if file == nil {
			fmt.Printf("%-24s -\n", id)
			continue
		}
		fmt.Printf("%-24s %s (%d bytes)\n", id, file.FileName, file.FileSizeBytes)
	}
	return nil
}

func runSubmit(ctx context.Context, client *api.Client, tenderID uuid.UUID) error {
	result, err := client.Submit(ctx, tenderID)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Code == "MISSING_REQUIRED_UPLOADS" {
			fmt.Fprintf(os.Stderr, "missing uploads: %v\n", apiErr.Details["missingQuestionIds"])
		}
		return err
	}

	fmt.Printf("submitted at %s\n", result.SubmittedAt.Format(time.RFC3339))
	return nil
}
