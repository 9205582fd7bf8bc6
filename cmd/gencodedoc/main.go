package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gencodedoc/internal/app"
	"gencodedoc/internal/config"
	"gencodedoc/internal/gcd"
	"gencodedoc/internal/router"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// projectFlag is the --project flag shared by every command; empty means
// the working directory.
var projectFlag string

func projectPath() string {
	if projectFlag != "" {
		return projectFlag
	}
	if env := os.Getenv("PROJECT_PATH"); env != "" {
		return env
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func openProject() (*app.Project, error) {
	logger := app.NewLogger(os.Stderr)
	return app.OpenProject(projectPath(), logger, gcd.RealClock{})
}

var rootCmd = &cobra.Command{
	Use:   "gencodedoc",
	Short: "Project-local snapshot versioning",
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize version tracking for the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		preset, _ := cmd.Flags().GetString("preset")

		cfg := config.NewConfig(projectPath())
		cfg.Ignore = config.DetectIgnore(projectPath())
		if preset != "" {
			if err := config.ApplyPreset(cfg, preset); err != nil {
				return err
			}
		}
		if err := config.Save(cfg); err != nil {
			return err
		}

		p, err := openProject()
		if err != nil {
			return err
		}
		defer p.Close()

		fmt.Printf("Initialized project at %s\n", p.Config.ProjectPath)
		fmt.Printf("Config: %s\nStorage: %s\n", p.Config.ConfigPath(), p.Config.StorageDir())
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Create a snapshot of the working tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		tag, _ := cmd.Flags().GetString("tag")

		p, err := openProject()
		if err != nil {
			return err
		}
		defer p.Close()

		snap, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Message: message, Tag: tag})
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot ID: %d (%d files, %d bytes)\n",
			snap.Metadata.ID, snap.Metadata.FilesCount, snap.Metadata.TotalSize)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots newest-first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		all, _ := cmd.Flags().GetBool("all")

		p, err := openProject()
		if err != nil {
			return err
		}
		defer p.Close()

		metas, err := p.Manager.ListSnapshots(limit, all)
		if err != nil {
			return err
		}
		for _, meta := range metas {
			label := fmt.Sprintf("#%d", meta.ID)
			if meta.Tag != "" {
				label += " [" + meta.Tag + "]"
			}
			fmt.Printf("%s %s %d files %s %s\n",
				label, meta.CreatedAt.Format("2006-01-02 15:04:05"),
				meta.FilesCount, meta.TriggerType, meta.Message)
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <snapshot-ref>",
	Short: "Restore a snapshot into the working tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		filters, _ := cmd.Flags().GetStringSlice("filter")

		p, err := openProject()
		if err != nil {
			return err
		}
		defer p.Close()

		report, err := p.Manager.Restore(args[0], "", force, filters)
		if err != nil {
			return err
		}
		fmt.Printf("Restored %d of %d file(s), skipped %d\n",
			report.Restored, report.Total, report.Skipped)
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <from-ref> [to-ref]",
	Short: "Compare two snapshots, or a snapshot against the working tree",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		p, err := openProject()
		if err != nil {
			return err
		}
		defer p.Close()

		toRef := gcd.CurrentRef
		if len(args) == 2 {
			toRef = args[1]
		}
		diff, err := p.Manager.Diff(args[0], toRef, nil)
		if err != nil {
			return err
		}
		if format == "" {
			format = p.Config.Diff.Default
		}
		text, err := p.Manager.RenderDiff(diff, format, p.Config.Diff.UnifiedContext)
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve line-delimited JSON-RPC requests on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := app.NewLogger(os.Stderr)
		registry := app.NewRegistry(logger, gcd.RealClock{})
		r := router.New(registry, projectPath(), logger)
		defer r.Shutdown()

		return r.Serve(os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectFlag, "project", "", "project directory (default: working directory)")

	initCmd.Flags().String("preset", "", "ignore preset (python, nodejs, web, go)")
	snapshotCmd.Flags().StringP("message", "m", "", "snapshot message")
	snapshotCmd.Flags().StringP("tag", "t", "", "snapshot tag")
	listCmd.Flags().Int("limit", 0, "maximum snapshots to list")
	listCmd.Flags().Bool("all", true, "include autosave snapshots")
	restoreCmd.Flags().Bool("force", false, "overwrite existing files")
	restoreCmd.Flags().StringSlice("filter", nil, "restore only matching files")
	diffCmd.Flags().String("format", "", "diff format (unified, json, markdown)")

	rootCmd.AddCommand(initCmd, snapshotCmd, listCmd, restoreCmd, diffCmd, serveCmd)
}
