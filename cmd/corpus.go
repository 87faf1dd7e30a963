package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/deskbot/internal/config"
	"github.com/nextlevelbuilder/deskbot/internal/providers"
	"github.com/nextlevelbuilder/deskbot/internal/retrieval"
)

func corpusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Manage the Q&A corpus",
	}
	cmd.AddCommand(corpusAddCmd(), corpusCountCmd(), corpusSearchCmd())
	return cmd
}

func openCorpus() *retrieval.Corpus {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log.Level)

	client := providers.NewClient(providers.Config{
		APIKey:     cfg.Provider.APIKey,
		APIBase:    cfg.Provider.APIBase,
		ChatModel:  cfg.Provider.ChatModel,
		EmbedModel: cfg.Provider.EmbedModel,
		Timeout:    time.Duration(cfg.Provider.TimeoutSec) * time.Second,
	})
	corpus, err := retrieval.OpenCorpus(cfg.CorpusPath(), client, cfg.Answer.SearchLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open corpus: %v\n", err)
		os.Exit(1)
	}
	return corpus
}

func corpusAddCmd() *cobra.Command {
	var category string
	var keywords []string
	cmd := &cobra.Command{
		Use:   "add <question> <answer>",
		Short: "Add a Q&A entry (embeds the question)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			corpus := openCorpus()
			defer corpus.Close()
			if err := corpus.Add(context.Background(), args[0], args[1], category, keywords); err != nil {
				fmt.Fprintf(os.Stderr, "add: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("entry added")
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "entry category")
	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "comma-separated keywords")
	return cmd
}

func corpusCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored entries",
		Run: func(cmd *cobra.Command, args []string) {
			corpus := openCorpus()
			defer corpus.Close()
			n, err := corpus.Count(context.Background())
			if err != nil {
				fmt.Fprintf(os.Stderr, "count: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(n)
		},
	}
}

func corpusSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Run a similarity search against the corpus",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			corpus := openCorpus()
			defer corpus.Close()
			results, err := corpus.Search(context.Background(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "search: %v\n", err)
				os.Exit(1)
			}
			for _, r := range results {
				fmt.Printf("%.4f\t%s\n", r.Score, r.Question)
			}
		},
	}
}
