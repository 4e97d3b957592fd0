package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/contextforge/forge/internal/config"
	"github.com/contextforge/forge/internal/store"
	"github.com/contextforge/forge/pkg/envelope"
)

var (
	inspectAddr string
	inspectJSON bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Inspect an archived session",
	Long: `Inspect a session that was archived to Redis after completion.

Prints the session metadata followed by the full envelope history in
sequence order: sender, receiver, kind and privacy parameters per
envelope. Payloads are shown as stored, noise included.

The Redis address comes from the archive section of forge.yml; use
--addr to override it.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectAddr, "addr", "", "Redis address (overrides the configured archive)")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output envelopes in JSON format")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	opts, err := archiveOptions()
	if err != nil {
		return err
	}

	archive := store.NewArchive(opts)
	defer archive.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	envelopes, err := archive.Load(ctx, sessionID)
	if err != nil {
		if store.IsNotFound(err) {
			return fmt.Errorf("session %s not found in archive", sessionID)
		}
		return err
	}

	if inspectJSON {
		out, err := json.MarshalIndent(envelopes, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	meta, err := archive.Meta(ctx, sessionID)
	if err != nil {
		return err
	}

	printSession(sessionID, meta, envelopes)
	return nil
}

// archiveOptions resolves the Redis endpoint from the --addr flag or the
// archive section of the configuration, in that order.
func archiveOptions() (*redis.Options, error) {
	if inspectAddr != "" {
		return &redis.Options{Addr: inspectAddr}, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Archive == nil {
		return nil, fmt.Errorf("no archive configured in %s; pass --addr", configPath)
	}

	return &redis.Options{
		Addr:     cfg.Archive.Addr,
		Password: cfg.Archive.Password,
		DB:       cfg.Archive.DB,
	}, nil
}

func printSession(sessionID string, meta map[string]string, envelopes []*envelope.Envelope) {
	header := color.New(color.FgCyan, color.Bold)
	label := color.New(color.Bold)
	dim := color.New(color.Faint)

	header.Printf("Session %s\n", sessionID)

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		label.Printf("  %-14s", k+":")
		fmt.Println(meta[k])
	}

	fmt.Println()
	header.Printf("Envelopes (%d)\n", len(envelopes))

	for _, e := range envelopes {
		ts := time.UnixMilli(e.CreatedAtMs).UTC().Format(time.RFC3339)

		label.Printf("  #%-3d ", e.Seq)
		fmt.Printf("%s -> %s ", e.Sender, e.Receiver)

		if e.Kind == envelope.KindDiagnostic {
			dim.Print("[diagnostic] ")
		} else if e.Privacy.Applied {
			fmt.Fprintf(os.Stdout, "[%s eps=%.3f] ", e.Privacy.Mechanism, e.Privacy.Epsilon)
		} else {
			color.New(color.FgYellow).Print("[unprotected] ")
		}

		dim.Println(ts)
	}
}
