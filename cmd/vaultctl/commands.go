package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vaultgraph/internal/engine"
	"vaultgraph/internal/logging"
	"vaultgraph/internal/rename"
	"vaultgraph/internal/writer"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start watching the vault and applying edits until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := eng.Start(ctx); err != nil {
			return err
		}
		logging.Boot("vaultctl serving %s", vaultRoot)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Full-text search across the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		folder, _ := cmd.Flags().GetString("folder")
		paths, err := eng.Search(engine.SearchParams{Scope: engine.ScopeFullText, Query: args[0], Folder: folder, Limit: limit})
		if err != nil {
			return err
		}
		return printJSON(paths)
	},
}

var backlinksCmd = &cobra.Command{
	Use:   "backlinks [path]",
	Short: "List notes that link to path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(eng.GetBacklinks(args[0]))
	},
}

var forwardLinksCmd = &cobra.Command{
	Use:   "forward-links [path]",
	Short: "List path's resolved outgoing link targets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(eng.GetForwardLinks(args[0]))
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently modified notes",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return printJSON(eng.GetRecentNotes(limit))
	},
}

var metadataCmd = &cobra.Command{
	Use:   "metadata [path]",
	Short: "Show a note's title, aliases, tags, and link counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		meta, ok := eng.GetNoteMetadata(args[0])
		if !ok {
			return fmt.Errorf("note not indexed: %s", args[0])
		}
		return printJSON(meta)
	},
}

var hubsCmd = &cobra.Command{
	Use:   "hubs",
	Short: "Find notes whose combined link degree meets a threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		minLinks, _ := cmd.Flags().GetInt("min-links")
		limit, _ := cmd.Flags().GetInt("limit")
		return printJSON(eng.FindHubNotes(minLinks, limit))
	},
}

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Find notes with no inbound or outbound links",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return printJSON(eng.FindOrphanNotes(limit))
	},
}

var validateLinksCmd = &cobra.Command{
	Use:   "validate-links",
	Short: "List unresolved wikilink targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(eng.ValidateLinks())
	},
}

var folderStructureCmd = &cobra.Command{
	Use:   "folders",
	Short: "Print the vault's folder tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(eng.GetFolderStructure())
	},
}

var addTaskCmd = &cobra.Command{
	Use:   "add-task [path] [section] [text]",
	Short: "Append an unchecked task to a note section",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		commit, _ := cmd.Flags().GetBool("commit")
		return printJSON(eng.AddTask(engine.AddTaskParams{Path: args[0], Section: args[1], Text: args[2], Commit: commit}))
	},
}

var addToSectionCmd = &cobra.Command{
	Use:   "add-to-section [path] [section] [content]",
	Short: "Insert content into a note section",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		commit, _ := cmd.Flags().GetBool("commit")
		position, _ := cmd.Flags().GetString("position")
		pos := writer.Append
		if position == "prepend" {
			pos = writer.Prepend
		}
		return printJSON(eng.AddToSection(engine.AddToSectionParams{
			Path: args[0], Section: args[1], Content: args[2], Format: writer.Bullet, Position: pos, Commit: commit,
		}))
	},
}

var renameTagCmd = &cobra.Command{
	Use:   "rename-tag [old] [new]",
	Short: "Rename a tag across the vault, with an optional dry run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		children, _ := cmd.Flags().GetBool("rename-children")
		folder, _ := cmd.Flags().GetString("folder")
		res, err := eng.RenameTag(readStdinPathsOrAll(), args[0], args[1], rename.TagOptions{
			Options: rename.Options{Folder: folder, DryRun: dryRun}, RenameChildren: children,
		})
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Revert the most recent committed mutation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(eng.UndoLastMutation())
	},
}

// readStdinPathsOrAll reads newline-delimited vault-relative paths from
// stdin if any are piped in, otherwise returns every indexed note path
// so a bare `vaultctl rename-tag` scopes to the whole vault.
func readStdinPathsOrAll() []string {
	stat, err := os.Stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		var paths []string
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				paths = append(paths, line)
			}
		}
		if len(paths) > 0 {
			return paths
		}
	}
	return eng.AllPaths()
}

func init() {
	searchCmd.Flags().Int("limit", 0, "max results")
	searchCmd.Flags().String("folder", "", "restrict to a vault-relative folder")
	recentCmd.Flags().Int("limit", 20, "max results")
	hubsCmd.Flags().Int("min-links", 10, "minimum combined link degree")
	hubsCmd.Flags().Int("limit", 0, "max results")
	orphansCmd.Flags().Int("limit", 0, "max results")
	addTaskCmd.Flags().Bool("commit", false, "commit the change to version control")
	addToSectionCmd.Flags().Bool("commit", false, "commit the change to version control")
	addToSectionCmd.Flags().String("position", "append", "append or prepend")
	renameTagCmd.Flags().Bool("dry-run", false, "preview without writing")
	renameTagCmd.Flags().Bool("rename-children", false, "also rename old/child tags")
	renameTagCmd.Flags().String("folder", "", "restrict to a vault-relative folder")

	rootCmd.AddCommand(serveCmd, searchCmd, backlinksCmd, forwardLinksCmd, recentCmd, metadataCmd,
		hubsCmd, orphansCmd, validateLinksCmd, folderStructureCmd, addTaskCmd, addToSectionCmd,
		renameTagCmd, undoCmd)
}
