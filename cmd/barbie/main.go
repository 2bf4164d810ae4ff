// barbie: voice conversational agent with a Barbie stylist persona.
// Transcribes speech, replies through Gemini and speaks through Murf.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-barbie/internal/config"
	"github.com/teslashibe/go-barbie/internal/log"
	"github.com/teslashibe/go-barbie/pkg/conversation"
	"github.com/teslashibe/go-barbie/pkg/inference"
	"github.com/teslashibe/go-barbie/pkg/metrics"
	"github.com/teslashibe/go-barbie/pkg/relay"
	"github.com/teslashibe/go-barbie/pkg/session"
	"github.com/teslashibe/go-barbie/pkg/stt"
	"github.com/teslashibe/go-barbie/pkg/tts"
	"github.com/teslashibe/go-barbie/pkg/web"
)

var version = "0.1.0"

var (
	cfgFile  string
	envFile  string
	logLevel string
	addrFlag string
	modeFlag string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the CLI. Running it without a subcommand serves.
func newRootCmd() *cobra.Command {
	serveCmd := newServeCmd()

	root := &cobra.Command{
		Use:           "barbie",
		Short:         "Voice conversational agent",
		RunE:          serveCmd.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with provider keys")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	addServeFlags(root)

	root.AddCommand(serveCmd)
	root.AddCommand(newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	addServeFlags(cmd)
	return cmd
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (default :8000)")
	cmd.Flags().StringVar(&modeFlag, "mode", "", "synthesis mode: url or stream")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("barbie " + version)
		},
	}
}

// loadConfig reads the dotenv file, the config file and the flag overrides.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}
	if modeFlag != "" {
		cfg.Chat.SynthesisMode = strings.ToLower(modeFlag)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	log.Init(cfg.Log.Level, cfg.Log.Format)
	logger := log.L()

	if missing := cfg.MissingKeys(); len(missing) > 0 {
		logger.Warn("provider keys not set, affected turns will fall back", "missing", missing)
	}

	m := metrics.New("barbie")

	store := session.NewStore(cfg.Chat.SessionCapacity,
		session.WithLogger(logger),
		session.WithOnEvict(func(id string, turns int) {
			m.RecordSessionEvicted()
		}),
	)
	m.ObserveSessions(store.Len)

	transcriber := stt.NewAssemblyAI(
		stt.WithAPIKey(cfg.AssemblyAI.APIKey),
		stt.WithBaseURL(cfg.AssemblyAI.BaseURL),
		stt.WithPollInterval(cfg.AssemblyAI.PollInterval),
		stt.WithTimeout(cfg.AssemblyAI.Timeout),
		stt.WithLogger(logger),
	)

	geminiOpts := []inference.Option{
		inference.WithAPIKey(cfg.Gemini.APIKey),
		inference.WithModel(cfg.Gemini.Model),
		inference.WithTemperature(cfg.Gemini.Temperature),
		inference.WithTimeout(cfg.Gemini.Timeout),
		inference.WithLogger(logger),
	}
	if cfg.Gemini.BaseURL != "" {
		geminiOpts = append(geminiOpts, inference.WithBaseURL(cfg.Gemini.BaseURL))
	}
	generator, err := newGenerator(cfg.Gemini, logger, geminiOpts)
	if err != nil {
		return err
	}

	synthesizer := tts.NewMurf(
		tts.WithAPIKey(cfg.Murf.APIKey),
		tts.WithBaseURL(cfg.Murf.BaseURL),
		tts.WithTimeout(cfg.Murf.Timeout),
		tts.WithLogger(logger),
	)
	streamer := tts.NewMurfStreamer(
		tts.WithAPIKey(cfg.Murf.APIKey),
		tts.WithStreamURL(cfg.Murf.StreamURL),
		tts.WithLogger(logger),
	)

	voice := murfVoice(cfg.Murf, cfg.Murf.VoiceID, cfg.Murf.Format)
	fallbackVoice := murfVoice(cfg.Murf, cfg.Murf.FallbackVoiceID, cfg.Murf.Format)
	streamVoice := murfVoice(cfg.Murf, cfg.Murf.VoiceID, cfg.Murf.StreamFormat)

	agent := conversation.New(store, transcriber, generator, synthesizer,
		conversation.WithPersona(cfg.Chat.Persona),
		conversation.WithFallbackMessage(cfg.Chat.FallbackMessage),
		conversation.WithMode(conversation.SynthesisMode(cfg.Chat.SynthesisMode)),
		conversation.WithVoice(voice),
		conversation.WithFallbackVoice(fallbackVoice),
		conversation.WithTimeouts(cfg.AssemblyAI.Timeout, cfg.Gemini.Timeout, cfg.Murf.Timeout),
		conversation.WithFallbackTimeout(cfg.Murf.FallbackTimeout),
		conversation.WithTurnWait(cfg.Chat.TurnWait),
		conversation.WithLogger(logger),
		conversation.WithMetrics(m),
	)

	rel := relay.New(store, streamer,
		relay.WithVoice(streamVoice),
		relay.WithStreamTimeout(cfg.Murf.StreamTimeout),
		relay.WithLogger(logger),
		relay.WithMetrics(m),
	)

	srv := web.NewServer(agent, rel, store, web.Config{
		Version:     version,
		StaticDir:   cfg.Server.StaticDir,
		BodyLimitMB: cfg.Server.BodyLimitMB,
		CORSOrigins: cfg.Server.CORSOrigins,
		Debug:       log.ParseLevel(cfg.Log.Level) == slog.LevelDebug,
		Logger:      logger,
		Metrics:     m,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func murfVoice(cfg config.MurfConfig, id, format string) tts.Voice {
	v := tts.DefaultVoice()
	v.ID = id
	v.Style = cfg.Style
	v.Format = format
	v.SampleRate = cfg.SampleRate
	v.Channel = cfg.Channel
	return v
}

// newGenerator returns Gemini on the configured model, chained to the
// fallback model when one is set.
func newGenerator(cfg config.GeminiConfig, logger *slog.Logger, opts []inference.Option) (inference.Provider, error) {
	primary := inference.NewGemini(opts...)
	if cfg.FallbackModel == "" || cfg.FallbackModel == cfg.Model {
		return primary, nil
	}
	fallback := inference.NewGemini(append(opts, inference.WithModel(cfg.FallbackModel))...)
	logger.Info("gemini fallback model enabled", "model", cfg.Model, "fallback_model", cfg.FallbackModel)
	return inference.NewChainWithLogger(logger, primary, fallback)
}
