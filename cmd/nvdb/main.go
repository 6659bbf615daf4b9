// Package main provides the nvdb CLI, a thin wrapper over pkg/vectordb for
// one-shot inspection and scripting against an on-disk or in-memory
// instance.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nounverb/nounverb/pkg/config"
	"github.com/nounverb/nounverb/pkg/convert"
	"github.com/nounverb/nounverb/pkg/embed"
	"github.com/nounverb/nounverb/pkg/storage"
	"github.com/nounverb/nounverb/pkg/vectordb"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var dataDir string
	var configPath string
	var embeddingURL string
	var embeddingModel string

	rootCmd := &cobra.Command{
		Use:   "nvdb",
		Short: "nvdb - an embeddable vector-and-graph database",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "data directory (filesystem backend)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file, merged onto env")
	rootCmd.PersistentFlags().StringVar(&embeddingURL, "embedding-url", "http://localhost:11434", "Ollama embedding API URL")
	rootCmd.PersistentFlags().StringVar(&embeddingModel, "embedding-model", "mxbai-embed-large", "Ollama embedding model")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nvdb v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize a data directory and write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(dataDir)
		},
	})

	addCmd := &cobra.Command{
		Use:   "add <text> [metadata-json]",
		Short: "Embed text and add it as a noun",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dataDir, configPath, embeddingURL, embeddingModel)
			if err != nil {
				return err
			}
			defer db.Shutdown()
			vectorJSON, _ := cmd.Flags().GetString("vector")
			return runAdd(cmd.Context(), db, args, vectorJSON)
		},
	}
	addCmd.Flags().String("vector", "", "precomputed vector as a JSON number array, instead of embedding the text")
	rootCmd.AddCommand(addCmd)

	searchCmd := &cobra.Command{
		Use:   "search <query> [-l N]",
		Short: "Embed query and return the nearest nouns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dataDir, configPath, embeddingURL, embeddingModel)
			if err != nil {
				return err
			}
			defer db.Shutdown()
			limit, _ := cmd.Flags().GetInt("limit")
			return runSearch(cmd.Context(), db, args[0], limit)
		},
	}
	searchCmd.Flags().IntP("limit", "l", 10, "number of results")
	rootCmd.AddCommand(searchCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a noun by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dataDir, configPath, embeddingURL, embeddingModel)
			if err != nil {
				return err
			}
			defer db.Shutdown()
			return runGet(cmd.Context(), db, args[0])
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a noun and every verb touching it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dataDir, configPath, embeddingURL, embeddingModel)
			if err != nil {
				return err
			}
			defer db.Shutdown()
			if err := db.Delete(cmd.Context(), args[0], vectordb.DeleteOptions{}); err != nil {
				return err
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "add-verb <src> <tgt> <kind> [meta-json]",
		Short: "Create a typed edge between two existing nouns",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dataDir, configPath, embeddingURL, embeddingModel)
			if err != nil {
				return err
			}
			defer db.Shutdown()
			return runAddVerb(cmd.Context(), db, args)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "get-verbs <id>",
		Short: "List every verb touching a noun",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dataDir, configPath, embeddingURL, embeddingModel)
			if err != nil {
				return err
			}
			defer db.Shutdown()
			return runGetVerbs(db, args[0])
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show backend status and counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dataDir, configPath, embeddingURL, embeddingModel)
			if err != nil {
				return err
			}
			defer db.Shutdown()
			return runStatus(cmd.Context(), db)
		},
	})

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every noun and verb",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				return fmt.Errorf("refusing to clear without --force")
			}
			db, err := openDB(dataDir, configPath, embeddingURL, embeddingModel)
			if err != nil {
				return err
			}
			defer db.Shutdown()
			return db.Clear(cmd.Context())
		},
	}
	clearCmd.Flags().Bool("force", false, "confirm the destructive clear")
	rootCmd.AddCommand(clearCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "backup <path>",
		Short: "Write a JSON snapshot of every noun and verb",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dataDir, configPath, embeddingURL, embeddingModel)
			if err != nil {
				return err
			}
			defer db.Shutdown()
			return runBackup(cmd.Context(), db, args[0])
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "restore <path>",
		Short: "Load a JSON snapshot written by backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dataDir, configPath, embeddingURL, embeddingModel)
			if err != nil {
				return err
			}
			defer db.Shutdown()
			return runRestore(cmd.Context(), db, args[0])
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runInit(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(dataDir, "nvdb.yaml")
	if _, err := os.Stat(path); err == nil {
		fmt.Println("config already exists:", path)
		return nil
	}

	cfg := config.Default()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Println("initialized", dataDir)
	fmt.Println("config:", path)
	return nil
}

func openDB(dataDir, configPath, embeddingURL, embeddingModel string) (*vectordb.DB, error) {
	cfg := config.LoadFromEnv()
	if configPath != "" {
		var err error
		cfg, err = config.LoadYAMLFile(configPath, cfg)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "filesystem"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	embConfig := embed.DefaultOllamaConfig()
	embConfig.APIURL = embeddingURL
	embConfig.Model = embeddingModel
	embedder := embed.NewCachedEmbedder(embed.NewOllama(embConfig), 1000)

	embedFn := func(ctx context.Context, payload interface{}) ([]float32, error) {
		text, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("nvdb CLI only embeds text payloads, got %T", payload)
		}
		return embedder.Embed(ctx, text)
	}

	db, err := vectordb.New(cfg, backend, embedFn, "nvdb-cli")
	if err != nil {
		return nil, err
	}
	if err := db.Init(context.Background()); err != nil {
		return nil, err
	}
	return db, nil
}

func openBackend(cfg config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryBackend(), nil
	case "filesystem":
		return storage.NewFilesystemBackend(cfg.Storage.DataDir)
	default:
		return nil, fmt.Errorf("nvdb CLI supports memory/filesystem backends, got %q (use a config file for s3)", cfg.Storage.Backend)
	}
}

func runAdd(ctx context.Context, db *vectordb.DB, args []string, vectorJSON string) error {
	text := args[0]
	var metadata vectordb.Metadata
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &metadata); err != nil {
			return fmt.Errorf("parsing metadata: %w", err)
		}
	}

	var vec []float32
	if vectorJSON != "" {
		var raw []interface{}
		if err := json.Unmarshal([]byte(vectorJSON), &raw); err != nil {
			return fmt.Errorf("parsing vector: %w", err)
		}
		vec = convert.ToFloat32Slice(raw)
		if vec == nil {
			return fmt.Errorf("vector must be a JSON array of numbers")
		}
	}

	id, err := db.Add(ctx, vec, text, metadata, vectordb.AddOptions{})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runSearch(ctx context.Context, db *vectordb.DB, query string, limit int) error {
	results, err := db.SearchText(ctx, query, limit, vectordb.SearchOptions{})
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%s\t%.4f\n", r.ID, r.Score)
	}
	return nil
}

func runGet(ctx context.Context, db *vectordb.DB, id string) error {
	rec, err := db.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Println("not found")
		return nil
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runAddVerb(ctx context.Context, db *vectordb.DB, args []string) error {
	src, tgt, kind := args[0], args[1], args[2]
	var metadata vectordb.Metadata
	if len(args) == 4 {
		if err := json.Unmarshal([]byte(args[3]), &metadata); err != nil {
			return fmt.Errorf("parsing metadata: %w", err)
		}
	}
	id, err := db.AddVerb(ctx, src, tgt, nil, nil, vectordb.AddVerbOptions{Kind: kind, Metadata: metadata})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runGetVerbs(db *vectordb.DB, id string) error {
	verbs := db.GetVerbsBySource(id)
	verbs = append(verbs, db.GetVerbsByTarget(id)...)
	data, err := json.MarshalIndent(verbs, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runStatus(ctx context.Context, db *vectordb.DB) error {
	status, err := db.Status(ctx)
	if err != nil {
		return err
	}
	stats := db.GetStatistics()
	fmt.Printf("backend:     %s\n", status.BackendKind)
	fmt.Printf("bytes used:  %s\n", strconv.FormatInt(status.BytesUsed, 10))
	fmt.Printf("nouns:       %d\n", stats.NounCount)
	fmt.Printf("verbs:       %d\n", stats.VerbCount)
	fmt.Printf("index size:  %d\n", stats.HNSWIndexSize)
	return nil
}

func runBackup(ctx context.Context, db *vectordb.DB, path string) error {
	data, err := db.Backup(ctx)
	if err != nil {
		return err
	}
	raw, err := vectordb.MarshalBackup(data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %d nouns, %d verbs to %s\n", len(data.Nouns), len(data.Verbs), path)
	return nil
}

func runRestore(ctx context.Context, db *vectordb.DB, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data, err := vectordb.UnmarshalBackup(raw)
	if err != nil {
		return err
	}
	if err := db.Restore(ctx, data, vectordb.RestoreOptions{ClearExisting: true}); err != nil {
		return err
	}
	fmt.Printf("restored %d nouns, %d verbs from %s\n", len(data.Nouns), len(data.Verbs), path)
	return nil
}
