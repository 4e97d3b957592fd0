package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/contextforge/forge/internal/agents"
	"github.com/contextforge/forge/internal/config"
	"github.com/contextforge/forge/internal/inference"
	"github.com/contextforge/forge/internal/pipeline"
	"github.com/contextforge/forge/internal/privacy"
	"github.com/contextforge/forge/internal/report"
	"github.com/contextforge/forge/internal/store"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <document>...",
	Short: "Run a gap analysis over one or more document files",
	Long: `Run the full analysis pipeline over the given document files.

Each file is read as one document. The session runs to completion (or
failure) and a report is printed: final state, privacy spending and the
final hypothesis set with lineage.

Ctrl-C requests cooperative cancellation: the current inference call may
finish, but its result is discarded and the session ends as failed.

If the configuration has an archive section, the finished session's full
envelope history is persisted to Redis for later inspection.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output the session report in JSON format")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.ExpandEnv()

	documents := make([]string, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read document %s: %w", path, err)
		}
		documents = append(documents, string(data))
	}

	primary, err := buildLLM(cfg.PrimaryBackend)
	if err != nil {
		return err
	}
	var fallback *agents.LLM
	if cfg.FallbackBackend != nil {
		llm, err := buildLLM(*cfg.FallbackBackend)
		if err != nil {
			return err
		}
		fallback = &llm
	}

	st := store.New()
	ledger := privacy.NewLedger(privacy.NewNoiseEngine(rand.NewSource(time.Now().UnixNano())))
	orchestrator := pipeline.New(st, ledger, primary, fallback)

	sess, err := pipeline.NewSession(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sess.Cancel()
	}()

	runErr := orchestrator.Run(ctx, sess, documents)

	if cfg.Archive != nil {
		if err := archiveSession(cfg.Archive, sess, st, ledger); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to archive session: %v\n", err)
		}
	}

	snap, buildErr := report.Build(sess, st, ledger)
	if buildErr != nil {
		// The ledger has no entry when the run failed before registration.
		if runErr != nil {
			return runErr
		}
		return buildErr
	}

	if analyzeJSON {
		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		report.Render(os.Stdout, snap)
	}

	return runErr
}

func buildLLM(b config.Backend) (agents.LLM, error) {
	backend, err := inference.NewOpenAIBackend(inference.OpenAIOptions{
		Name:    b.Name,
		APIKey:  b.APIKey,
		BaseURL: b.BaseURL,
	})
	if err != nil {
		return agents.LLM{}, fmt.Errorf("failed to create backend %q: %w", b.Name, err)
	}

	return agents.LLM{
		Backend: backend,
		Config: inference.ModelConfig{
			Model:       b.Model,
			Temperature: b.Temperature,
			MaxTokens:   b.MaxTokens,
		},
	}, nil
}

func archiveSession(cfg *config.ArchiveConfig, sess *pipeline.Session, st *store.Store, ledger *privacy.Ledger) error {
	archive := store.NewArchive(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	defer archive.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	spent, err := ledger.Spent(sess.ID)
	if err != nil {
		return err
	}

	meta := map[string]string{
		"state":         string(sess.State()),
		"cycles":        strconv.Itoa(sess.CompletedCycles()),
		"epsilon_spent": strconv.FormatFloat(spent, 'f', -1, 64),
		"archived_at":   time.Now().UTC().Format(time.RFC3339),
	}

	return archive.Persist(ctx, sess.ID, st.History(sess.ID), meta)
}
