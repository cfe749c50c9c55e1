package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"globekeys/internal/indexer"
	"globekeys/internal/llm"
	"globekeys/internal/messages"
	"globekeys/internal/models"
	"globekeys/internal/translate"
	"globekeys/internal/utils"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract [paths...]",
	Short: "Print the translation keys used by the project or the given files and directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx, cancel := signalContext()
		defer cancel()

		idx := indexer.NewIndexer()
		idx.SetQuiet(quiet || asJSON)

		var entries []models.MessageEntry
		if len(args) == 0 {
			if err := idx.EnablePersistence(p.projectID); err != nil {
				fmt.Fprintf(os.Stderr, "⚠ %v\n", err)
			}
			entries, err = idx.IndexProject(ctx, p.cfg.KeyExtractionDirs(), p.cfg.ExcludedDirs())
		} else {
			var files []string
			files, err = collectFiles(args, p.cfg.ExcludedDirs())
			if err != nil {
				return err
			}
			entries, err = idx.IndexFiles(ctx, files)
		}
		if err != nil {
			return err
		}

		if asJSON {
			data, _ := json.MarshalIndent(entries, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		for _, e := range entries {
			if e.Description != "" {
				fmt.Printf("%s\t# %s\n", e.Key, e.Description)
				continue
			}
			fmt.Println(e.Key)
		}
		return nil
	},
}

// collectFiles expands directories to their source files and keeps explicit
// files as given
func collectFiles(paths []string, excluded []string) ([]string, error) {
	var dirs, files []string
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			dirs = append(dirs, abs)
			continue
		}
		files = append(files, abs)
	}
	if len(dirs) > 0 {
		found, err := utils.GetSourceFiles(dirs, excluded)
		if err != nil {
			return nil, fmt.Errorf("failed to collect source files: %w", err)
		}
		files = append(files, found...)
	}
	return files, nil
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge the extracted keys into every locale's message catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		if prune, _ := cmd.Flags().GetBool("prune"); prune {
			p.cfg.Messages.PruneUnusedKeys = true
		}

		ctx, cancel := signalContext()
		defer cancel()

		idx := indexer.NewIndexer()
		idx.SetQuiet(quiet)
		if err := idx.EnablePersistence(p.projectID); err != nil {
			fmt.Fprintf(os.Stderr, "⚠ %v\n", err)
		}
		entries, err := idx.IndexProject(ctx, p.cfg.KeyExtractionDirs(), p.cfg.ExcludedDirs())
		if err != nil {
			return err
		}

		results, err := messages.NewSyncer(p.cfg).Sync(entries)
		for _, r := range results {
			printLocaleResult(r)
		}
		return err
	},
}

func printLocaleResult(r messages.LocaleResult) {
	state := "unchanged"
	if r.Written {
		state = "written"
	}
	logf("✓ %s: %d messages, %d added, %d pruned (%s)\n", r.Locale, r.Total, len(r.Added), len(r.Pruned), state)
	for _, key := range r.Added {
		logf("  + %s\n", key)
	}
	for _, key := range r.Pruned {
		logf("  - %s\n", key)
	}
	for _, key := range r.Dropped {
		fmt.Fprintf(os.Stderr, "⚠ %s: %s collides with another key and was not written\n", r.Locale, key)
	}
}

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Fill missing messages of other locales from the default locale with an LLM",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		locales, _ := cmd.Flags().GetStringSlice("locale")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		ctx, cancel := signalContext()
		defer cancel()

		svc := translate.NewService(p.cfg, llm.NewClient())
		svc.SetQuiet(quiet)
		results, err := svc.Run(ctx, translate.Options{Locales: locales, DryRun: dryRun})
		if dryRun {
			for _, r := range results {
				for key, msg := range r.Translated {
					fmt.Printf("%s\t%s\t%s\n", r.Locale, key, msg)
				}
			}
		}
		return err
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <key>",
	Short: "Resolve a message key the way the runtime would, with default-locale fallback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		locale, _ := cmd.Flags().GetString("locale")
		if locale == "" {
			locale = p.cfg.DefaultLocale
		}

		resolver, err := messages.NewResolver(p.cfg)
		if err != nil {
			return err
		}
		res, err := resolver.Resolve(locale, args[0])
		if errors.Is(err, messages.ErrMessageNotFound) {
			return fmt.Errorf("%s has no message in %s or %s", args[0], locale, p.cfg.DefaultLocale)
		}
		if err != nil {
			return err
		}

		if res.Fallback {
			fmt.Fprintf(os.Stderr, "⚠ %s: no %s message, using %s\n", res.Key, locale, res.Locale)
		}
		if res.Description != "" {
			logf("# %s\n", res.Description)
		}
		fmt.Println(res.Message)
		return nil
	},
}

func init() {
	extractCmd.Flags().Bool("json", false, "Print entries as JSON")
	syncCmd.Flags().Bool("prune", false, "Remove keys no longer used in the sources (overrides prune_unused_keys)")
	translateCmd.Flags().StringSlice("locale", nil, "Locales to translate (default: every non-default locale)")
	translateCmd.Flags().Bool("dry-run", false, "Print translations instead of writing them")
	lookupCmd.Flags().String("locale", "", "Locale to resolve in (default: the default locale)")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(lookupCmd)
}
