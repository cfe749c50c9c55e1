package cmd

import (
	"encoding/json"
	"fmt"
	"globekeys/internal/analyzer"
	"globekeys/internal/indexer"
	"globekeys/internal/mcp"
	"globekeys/internal/messages"
	"globekeys/internal/qdrant"
	"os"

	"github.com/spf13/cobra"
)

var dupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "Find default-locale messages that say the same thing under different keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		confirm, _ := cmd.Flags().GetBool("confirm")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx, cancel := signalContext()
		defer cancel()

		az, closeFn, err := analyzer.Connect()
		if err != nil {
			return err
		}
		defer closeFn()
		az.SetQuiet(quiet || asJSON)

		collection := analyzer.CollectionName(p.projectID)
		entries, err := messages.LoadMessageEntries(p.cfg.OriginDir(), p.cfg.DefaultLocale)
		if err != nil {
			return err
		}
		if _, err := az.IndexMessages(ctx, collection, p.cfg.DefaultLocale, entries); err != nil {
			return err
		}

		groups, err := az.FindDuplicates(ctx, collection, threshold, confirm)
		if err != nil {
			return err
		}

		if asJSON {
			data, _ := json.MarshalIndent(groups, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		if len(groups) == 0 {
			logf("✓ No duplicate messages found\n")
			return nil
		}
		for i, g := range groups {
			fmt.Printf("Group %d (avg score %.3f)\n", i+1, g.AvgScore)
			for _, m := range g.Messages {
				fmt.Printf("  %s: %q\n", m.Key, m.Message)
			}
			if g.Reason != "" {
				fmt.Printf("  → %s\n", g.Reason)
			}
		}
		return nil
	},
}

var similarCmd = &cobra.Command{
	Use:   "similar <text>",
	Short: "List existing default-locale messages similar to a text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		topK, _ := cmd.Flags().GetInt("top-k")
		if topK <= 0 {
			topK = 10
		}

		ctx, cancel := signalContext()
		defer cancel()

		az, closeFn, err := analyzer.Connect()
		if err != nil {
			return err
		}
		defer closeFn()
		az.SetQuiet(quiet)

		collection := analyzer.CollectionName(p.projectID)
		entries, err := messages.LoadMessageEntries(p.cfg.OriginDir(), p.cfg.DefaultLocale)
		if err != nil {
			return err
		}
		if _, err := az.IndexMessages(ctx, collection, p.cfg.DefaultLocale, entries); err != nil {
			return err
		}

		matches, err := az.FindSimilar(ctx, collection, args[0], uint64(topK))
		if err != nil {
			return err
		}
		for _, m := range matches {
			fmt.Printf("%.3f\t%s\t%q\n", m.Score, m.Key, m.Message)
		}
		return nil
	},
}

var clearIndexCmd = &cobra.Command{
	Use:   "clear-index",
	Short: "Delete the project's Qdrant collection and local key cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		collection := analyzer.CollectionName(p.projectID)

		if err := indexer.ClearProjectState(p.projectID); err != nil {
			return fmt.Errorf("failed to clear key cache: %w", err)
		}
		logf("✓ Key cache cleared\n")

		qc, err := qdrant.NewClient()
		if err != nil {
			return err
		}
		defer qc.Close()

		ctx, cancel := signalContext()
		defer cancel()

		logf("Deleting collection: %s\n", collection)
		if err := qc.DeleteCollection(ctx, collection); err != nil {
			return err
		}
		logf("✓ Collection deleted\n")
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		server := mcp.NewServer(p.cfg, p.projectID, Version)
		return server.Run(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	dupesCmd.Flags().Float64("threshold", analyzer.DefaultThreshold, "Cosine similarity from which two messages are candidates")
	dupesCmd.Flags().Bool("confirm", false, "Confirm every candidate pair with the LLM")
	dupesCmd.Flags().Bool("json", false, "Print groups as JSON")
	similarCmd.Flags().Int("top-k", 10, "Maximum number of results to return")

	rootCmd.AddCommand(dupesCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(clearIndexCmd)
	rootCmd.AddCommand(mcpCmd)
}
