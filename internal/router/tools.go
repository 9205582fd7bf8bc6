package router

import (
	"fmt"
	"strings"

	"gencodedoc/internal/config"
	"gencodedoc/internal/gcd"
	"gencodedoc/internal/model"
)

// modifiedPaths extracts just the paths from modified diff entries.
func modifiedPaths(entries []model.DiffEntry) []string {
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	return paths
}

// tool pairs a handler with its descriptor for tools/list.
type tool struct {
	description string
	inputSchema map[string]any
	handler     func(r *Router, args map[string]any) (map[string]any, error)
}

// toolTable is the static dispatch table: every operation the router
// exposes, keyed by tool name.
func toolTable() map[string]tool {
	return map[string]tool{
		"init_project": {
			description: "Initialize version tracking for a project",
			inputSchema: schema(map[string]string{
				"project_path": "string", "preset": "string",
			}, "project_path"),
			handler: handleInitProject,
		},
		"get_project_status": {
			description: "Report whether the project is initialized and its snapshot counts",
			inputSchema: schema(map[string]string{"project_path": "string"}),
			handler:     handleProjectStatus,
		},
		"create_snapshot": {
			description: "Create a snapshot of the working tree",
			inputSchema: schema(map[string]string{
				"message": "string", "tag": "string", "include_paths": "array",
			}),
			handler: handleCreateSnapshot,
		},
		"list_snapshots": {
			description: "List snapshots newest-first",
			inputSchema: schema(map[string]string{
				"limit": "number", "include_autosave": "boolean",
			}),
			handler: handleListSnapshots,
		},
		"get_snapshot_details": {
			description: "Show a snapshot's metadata and file list",
			inputSchema: schema(map[string]string{"snapshot_ref": "string"}, "snapshot_ref"),
			handler:     handleSnapshotDetails,
		},
		"restore_snapshot": {
			description: "Restore a snapshot into the working tree",
			inputSchema: schema(map[string]string{
				"snapshot_ref": "string", "force": "boolean", "file_filters": "array",
			}, "snapshot_ref"),
			handler: handleRestoreSnapshot,
		},
		"restore_files": {
			description: "Restore selected files from a snapshot",
			inputSchema: schema(map[string]string{
				"snapshot_ref": "string", "file_filters": "array", "force": "boolean",
			}, "snapshot_ref", "file_filters"),
			handler: handleRestoreFiles,
		},
		"delete_snapshot": {
			description: "Delete a snapshot",
			inputSchema: schema(map[string]string{"snapshot_ref": "string"}, "snapshot_ref"),
			handler:     handleDeleteSnapshot,
		},
		"diff_versions": {
			description: "Compare two snapshots, or a snapshot against the working tree",
			inputSchema: schema(map[string]string{
				"from_ref": "string", "to_ref": "string", "format": "string", "file_filters": "array",
			}, "from_ref"),
			handler: handleDiffVersions,
		},
		"get_file_at_version": {
			description: "Read one file's content as recorded in a snapshot",
			inputSchema: schema(map[string]string{
				"snapshot_ref": "string", "file_path": "string",
			}, "snapshot_ref", "file_path"),
			handler: handleFileAtVersion,
		},
		"list_files_at_version": {
			description: "List the files recorded in a snapshot",
			inputSchema: schema(map[string]string{
				"snapshot_ref": "string", "pattern": "string",
			}, "snapshot_ref"),
			handler: handleListFilesAtVersion,
		},
		"export_snapshot": {
			description: "Export a snapshot to a folder or a tar.gz archive",
			inputSchema: schema(map[string]string{
				"snapshot_ref": "string", "output_path": "string", "archive": "boolean", "file_filters": "array",
			}, "snapshot_ref", "output_path"),
			handler: handleExportSnapshot,
		},
		"cleanup_orphaned_contents": {
			description: "Delete content blobs no snapshot references",
			inputSchema: schema(map[string]string{}),
			handler:     handleCleanupOrphaned,
		},
		"get_file_history": {
			description: "Show how one file evolved across snapshots",
			inputSchema: schema(map[string]string{"file_path": "string"}, "file_path"),
			handler:     handleFileHistory,
		},
		"search_snapshots": {
			description: "Search snapshot content for a string",
			inputSchema: schema(map[string]string{
				"query": "string", "file_filter": "string", "snapshot_ref": "string", "case_sensitive": "boolean",
			}, "query"),
			handler: handleSearchSnapshots,
		},
		"generate_changelog": {
			description: "Render the changes between two snapshots as Markdown",
			inputSchema: schema(map[string]string{
				"from_ref": "string", "to_ref": "string",
			}, "from_ref"),
			handler: handleGenerateChangelog,
		},
		"get_config": {
			description: "Show the project configuration",
			inputSchema: schema(map[string]string{"project_path": "string"}),
			handler:     handleGetConfig,
		},
		"set_config_value": {
			description: "Set one configuration option",
			inputSchema: schema(map[string]string{
				"key": "string", "value": "string",
			}, "key", "value"),
			handler: handleSetConfigValue,
		},
		"apply_preset": {
			description: "Extend the ignore rules with a built-in preset",
			inputSchema: schema(map[string]string{"preset": "string"}, "preset"),
			handler:     handleApplyPreset,
		},
		"manage_ignore_rules": {
			description: "Add or remove ignore rules",
			inputSchema: schema(map[string]string{
				"action": "string", "rule_type": "string", "values": "array",
			}, "action", "rule_type", "values"),
			handler: handleManageIgnoreRules,
		},
		"start_autosave": {
			description: "Start the autosave controller for a project",
			inputSchema: schema(map[string]string{
				"project_path": "string", "mode": "string",
			}, "project_path"),
			handler: handleStartAutosave,
		},
		"stop_autosave": {
			description: "Stop the autosave controller for a project",
			inputSchema: schema(map[string]string{"project_path": "string"}, "project_path"),
			handler:     handleStopAutosave,
		},
		"get_autosave_status": {
			description: "List the running autosave controllers",
			inputSchema: schema(map[string]string{}),
			handler:     handleAutosaveStatus,
		},
	}
}

// toolDescriptors renders the static tools/list payload.
func (r *Router) toolDescriptors() []map[string]any {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	// Stable order for clients and tests.
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}

	descriptors := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		descriptors = append(descriptors, map[string]any{
			"name":        name,
			"description": t.description,
			"inputSchema": t.inputSchema,
		})
	}
	return descriptors
}

// schema builds a minimal JSON schema for a tool's arguments.
func schema(props map[string]string, required ...string) map[string]any {
	properties := make(map[string]any, len(props))
	for name, typ := range props {
		properties[name] = map[string]any{"type": typ}
	}
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// Project and config tools

func handleInitProject(r *Router, args map[string]any) (map[string]any, error) {
	projectPath, ok := argString(args, "project_path")
	if !ok {
		return nil, fmt.Errorf("%w: project_path is required", gcd.ErrInvalid)
	}

	cfg := config.NewConfig(projectPath)
	cfg.Ignore = config.DetectIgnore(projectPath)
	if preset, ok := argString(args, "preset"); ok {
		if err := config.ApplyPreset(cfg, preset); err != nil {
			return nil, fmt.Errorf("%w: %v", gcd.ErrInvalid, err)
		}
	}
	if err := config.Save(cfg); err != nil {
		return nil, err
	}

	// Open the project to create the storage directory and the store.
	p, err := r.registry.Project(projectPath)
	if err != nil {
		return nil, err
	}

	return result(
		fmt.Sprintf("Project initialized.\nConfig: %s\nStorage: %s", p.Config.ConfigPath(), p.Config.StorageDir()),
		map[string]any{
			"config_path":  p.Config.ConfigPath(),
			"storage_path": p.Config.StorageDir(),
		}), nil
}

func handleProjectStatus(r *Router, args map[string]any) (map[string]any, error) {
	projectPath := r.projectPath(args, true)

	initialized := config.Exists(projectPath)
	if !initialized {
		return result("Project is not initialized.", map[string]any{
			"initialized": false,
		}), nil
	}

	p, err := r.registry.Project(projectPath)
	if err != nil {
		return nil, err
	}

	total, err := p.Manager.CountSnapshots(true)
	if err != nil {
		return nil, err
	}
	manual, err := p.Manager.CountSnapshots(false)
	if err != nil {
		return nil, err
	}
	running := r.registry.AutosaveRunning(projectPath)

	text := fmt.Sprintf("Project: %s\nSnapshots: %d (%d manual, %d autosave)\nAutosave running: %v",
		p.Config.ProjectName, total, manual, total-manual, running)
	return result(text, map[string]any{
		"initialized":      true,
		"project_name":     p.Config.ProjectName,
		"snapshots_total":  total,
		"snapshots_manual": manual,
		"autosave_running": running,
	}), nil
}

// Snapshot tools

func handleCreateSnapshot(r *Router, args map[string]any) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}

	message, _ := argString(args, "message")
	tag, _ := argString(args, "tag")

	snap, err := p.Manager.CreateSnapshot(gcd.CreateOptions{
		Message:      message,
		Tag:          tag,
		IncludePaths: argStringList(args, "include_paths"),
		ExcludePaths: argStringList(args, "exclude_paths"),
	})
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Snapshot created.\nSnapshot ID: %d\nFiles: %d\nTotal size: %d bytes",
		snap.Metadata.ID, snap.Metadata.FilesCount, snap.Metadata.TotalSize)
	if tag != "" {
		text += fmt.Sprintf("\nTag: %s", tag)
	}
	return result(text, map[string]any{
		"snapshot_id": snap.Metadata.ID,
		"files_count": snap.Metadata.FilesCount,
		"total_size":  snap.Metadata.TotalSize,
		"tag":         snap.Metadata.Tag,
	}), nil
}

func handleListSnapshots(r *Router, args map[string]any) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}

	limit := argInt(args, "limit", 0)
	includeAutosave := argBool(args, "include_autosave", true)

	metas, err := p.Manager.ListSnapshots(limit, includeAutosave)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d snapshot(s):\n", len(metas))
	snapshots := make([]map[string]any, 0, len(metas))
	for _, meta := range metas {
		label := fmt.Sprintf("#%d", meta.ID)
		if meta.Tag != "" {
			label += " [" + meta.Tag + "]"
		}
		fmt.Fprintf(&b, "%s %s — %d files, %s\n",
			label, meta.CreatedAt.Format("2006-01-02 15:04:05"), meta.FilesCount, meta.TriggerType)
		snapshots = append(snapshots, map[string]any{
			"id":          meta.ID,
			"tag":         meta.Tag,
			"message":     meta.Message,
			"created_at":  meta.CreatedAt,
			"is_autosave": meta.IsAutosave,
			"files_count": meta.FilesCount,
			"total_size":  meta.TotalSize,
		})
	}
	return result(b.String(), map[string]any{"snapshots": snapshots}), nil
}

func handleSnapshotDetails(r *Router, args map[string]any) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}
	ref, ok := argString(args, "snapshot_ref")
	if !ok {
		return nil, fmt.Errorf("%w: snapshot_ref is required", gcd.ErrInvalid)
	}

	snap, err := p.Manager.GetSnapshot(ref)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %q", gcd.ErrSnapshotNotFound, ref)
	}

	meta := snap.Metadata
	var b strings.Builder
	fmt.Fprintf(&b, "Snapshot #%d\n", meta.ID)
	if meta.Tag != "" {
		fmt.Fprintf(&b, "Tag: %s\n", meta.Tag)
	}
	if meta.Message != "" {
		fmt.Fprintf(&b, "Message: %s\n", meta.Message)
	}
	fmt.Fprintf(&b, "Created: %s\nTrigger: %s\nFiles: %d\nTotal size: %d bytes\nNew storage: %d bytes\n",
		meta.CreatedAt.Format("2006-01-02 15:04:05"), meta.TriggerType,
		meta.FilesCount, meta.TotalSize, meta.CompressedSize)

	const preview = 20
	for i, f := range snap.Files {
		if i == preview {
			fmt.Fprintf(&b, "... and %d more\n", len(snap.Files)-preview)
			break
		}
		fmt.Fprintf(&b, "  %s (%d bytes)\n", f.Path, f.Size)
	}

	files := make([]map[string]any, 0, len(snap.Files))
	for _, f := range snap.Files {
		files = append(files, map[string]any{
			"path": f.Path, "hash": f.Hash, "size": f.Size, "mode": f.Mode,
		})
	}
	return result(b.String(), map[string]any{
		"id":          meta.ID,
		"hash":        meta.Hash,
		"tag":         meta.Tag,
		"message":     meta.Message,
		"created_at":  meta.CreatedAt,
		"parent_id":   meta.ParentID,
		"is_autosave": meta.IsAutosave,
		"files":       files,
	}), nil
}

func handleRestoreSnapshot(r *Router, args map[string]any) (map[string]any, error) {
	return restoreCommon(r, args, false)
}

func handleRestoreFiles(r *Router, args map[string]any) (map[string]any, error) {
	return restoreCommon(r, args, true)
}

func restoreCommon(r *Router, args map[string]any, filtersRequired bool) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}
	ref, ok := argString(args, "snapshot_ref")
	if !ok {
		return nil, fmt.Errorf("%w: snapshot_ref is required", gcd.ErrInvalid)
	}

	filters := argStringList(args, "file_filters")
	if filtersRequired && len(filters) == 0 {
		return nil, fmt.Errorf("%w: file_filters is required", gcd.ErrInvalid)
	}
	force := argBool(args, "force", false)
	targetDir, _ := argString(args, "target_dir")

	report, err := p.Manager.Restore(ref, targetDir, force, filters)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Restored %d of %d file(s), skipped %d.",
		report.Restored, report.Total, report.Skipped)
	if report.Skipped > 0 && !force {
		text += " Use force to overwrite existing files."
	}
	return result(text, map[string]any{
		"restored":       report.Restored,
		"skipped":        report.Skipped,
		"total":          report.Total,
		"files_restored": report.FilesRestored,
		"files_skipped":  report.FilesSkipped,
	}), nil
}

func handleDeleteSnapshot(r *Router, args map[string]any) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}
	ref, ok := argString(args, "snapshot_ref")
	if !ok {
		return nil, fmt.Errorf("%w: snapshot_ref is required", gcd.ErrInvalid)
	}

	if err := p.Manager.DeleteSnapshot(ref); err != nil {
		return nil, err
	}
	return result(fmt.Sprintf("Snapshot %q deleted.", ref), map[string]any{"success": true}), nil
}

// Diff, history, search, changelog

func handleDiffVersions(r *Router, args map[string]any) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}
	fromRef, ok := argString(args, "from_ref")
	if !ok {
		return nil, fmt.Errorf("%w: from_ref is required", gcd.ErrInvalid)
	}
	toRef, _ := argString(args, "to_ref")

	diff, err := p.Manager.Diff(fromRef, toRef, argStringList(args, "file_filters"))
	if err != nil {
		return nil, err
	}

	format, _ := argString(args, "format")
	if format == "" {
		format = p.Config.Diff.Default
	}
	text, err := p.Manager.RenderDiff(diff, format, p.Config.Diff.UnifiedContext)
	if err != nil {
		return nil, err
	}

	return result(text, map[string]any{
		"files_added":        diff.FilesAdded,
		"files_removed":      diff.FilesRemoved,
		"files_modified":     modifiedPaths(diff.FilesModified),
		"total_changes":      diff.TotalChanges,
		"significance_score": diff.Significance,
	}), nil
}

func handleFileAtVersion(r *Router, args map[string]any) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}
	ref, ok := argString(args, "snapshot_ref")
	if !ok {
		return nil, fmt.Errorf("%w: snapshot_ref is required", gcd.ErrInvalid)
	}
	filePath, ok := argString(args, "file_path")
	if !ok {
		return nil, fmt.Errorf("%w: file_path is required", gcd.ErrInvalid)
	}

	data, text, isText, err := p.Manager.GetFileAtVersion(ref, filePath)
	if err != nil {
		return nil, err
	}

	if !isText {
		return result(
			fmt.Sprintf("%s @ %s: binary content, %d bytes.", filePath, ref, len(data)),
			map[string]any{"path": filePath, "binary": true, "size": len(data)},
		), nil
	}
	return result(text, map[string]any{
		"path": filePath, "binary": false, "size": len(data), "content": text,
	}), nil
}

func handleListFilesAtVersion(r *Router, args map[string]any) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}
	ref, ok := argString(args, "snapshot_ref")
	if !ok {
		return nil, fmt.Errorf("%w: snapshot_ref is required", gcd.ErrInvalid)
	}
	pattern, _ := argString(args, "pattern")

	files, err := p.Manager.ListFilesAtVersion(ref, pattern)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d file(s) in snapshot %s:\n", len(files), ref)
	list := make([]map[string]any, 0, len(files))
	for _, f := range files {
		fmt.Fprintf(&b, "  %s (%d bytes)\n", f.Path, f.Size)
		list = append(list, map[string]any{
			"path": f.Path, "size": f.Size, "hash": f.Hash, "mode": f.Mode,
		})
	}
	return result(b.String(), map[string]any{"files": list}), nil
}

func handleExportSnapshot(r *Router, args map[string]any) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}
	ref, ok := argString(args, "snapshot_ref")
	if !ok {
		return nil, fmt.Errorf("%w: snapshot_ref is required", gcd.ErrInvalid)
	}
	outputPath, ok := argString(args, "output_path")
	if !ok {
		return nil, fmt.Errorf("%w: output_path is required", gcd.ErrInvalid)
	}

	report, err := p.Manager.Export(ref, outputPath, argBool(args, "archive", false), argStringList(args, "file_filters"))
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Exported snapshot %s as %s to %s (%d file(s), %d failed).",
		report.Snapshot, report.Format, report.OutputPath, report.ExportedCount, report.FailedCount)
	if report.Format == "tar.gz" {
		text += fmt.Sprintf(" Archive size: %d bytes.", report.ArchiveSize)
	}
	return result(text, map[string]any{
		"snapshot":       report.Snapshot,
		"format":         report.Format,
		"output_path":    report.OutputPath,
		"exported_count": report.ExportedCount,
		"failed_count":   report.FailedCount,
		"archive_size":   report.ArchiveSize,
		"files_exported": report.FilesExported,
		"files_failed":   report.FilesFailed,
	}), nil
}

func handleCleanupOrphaned(r *Router, args map[string]any) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}

	n, err := p.Manager.CleanupOrphanedContents()
	if err != nil {
		return nil, err
	}
	return result(fmt.Sprintf("Deleted %d orphaned content blob(s).", n), map[string]any{"deleted": n}), nil
}

func handleFileHistory(r *Router, args map[string]any) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}
	filePath, ok := argString(args, "file_path")
	if !ok {
		return nil, fmt.Errorf("%w: file_path is required", gcd.ErrInvalid)
	}

	history, err := p.Manager.FileHistory(filePath)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "History of %s (%d entr(ies)):\n", filePath, len(history))
	entries := make([]map[string]any, 0, len(history))
	for _, h := range history {
		fmt.Fprintf(&b, "  #%d %s %s\n",
			h.Snapshot.ID, h.Snapshot.CreatedAt.Format("2006-01-02 15:04:05"), h.Status)
		entries = append(entries, map[string]any{
			"snapshot_id": h.Snapshot.ID,
			"created_at":  h.Snapshot.CreatedAt,
			"status":      h.Status,
			"hash":        h.Hash,
			"size":        h.Size,
		})
	}
	return result(b.String(), map[string]any{"history": entries}), nil
}

func handleSearchSnapshots(r *Router, args map[string]any) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}
	query, ok := argString(args, "query")
	if !ok {
		return nil, fmt.Errorf("%w: query is required", gcd.ErrInvalid)
	}

	fileFilter, _ := argString(args, "file_filter")
	snapshotRef, _ := argString(args, "snapshot_ref")
	results, err := p.Manager.Search(query, gcd.SearchOptions{
		FileFilter:    fileFilter,
		SnapshotRef:   snapshotRef,
		CaseSensitive: argBool(args, "case_sensitive", false),
	})
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d file(s) matched %q:\n", len(results), query)
	hits := make([]map[string]any, 0, len(results))
	for _, res := range results {
		fmt.Fprintf(&b, "#%d %s (%d hit(s))\n", res.SnapshotID, res.Path, res.TotalHits)
		matches := make([]map[string]any, 0, len(res.Matches))
		for _, match := range res.Matches {
			fmt.Fprintf(&b, "  %d: %s\n", match.LineNumber, match.Line)
			matches = append(matches, map[string]any{
				"line_number": match.LineNumber, "line": match.Line,
			})
		}
		hits = append(hits, map[string]any{
			"snapshot_id": res.SnapshotID,
			"path":        res.Path,
			"total_hits":  res.TotalHits,
			"matches":     matches,
		})
	}
	return result(b.String(), map[string]any{"results": hits}), nil
}

func handleGenerateChangelog(r *Router, args map[string]any) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}
	fromRef, ok := argString(args, "from_ref")
	if !ok {
		return nil, fmt.Errorf("%w: from_ref is required", gcd.ErrInvalid)
	}
	toRef, _ := argString(args, "to_ref")

	markdown, err := p.Manager.Changelog(fromRef, toRef)
	if err != nil {
		return nil, err
	}
	return result(markdown, map[string]any{"changelog": markdown}), nil
}

// Configuration tools

func handleGetConfig(r *Router, args map[string]any) (map[string]any, error) {
	p, err := r.registry.Project(r.projectPath(args, true))
	if err != nil {
		return nil, err
	}
	cfg := p.Config

	text := fmt.Sprintf(
		"Project: %s\nStorage: %s\nCompression: %v (level %d)\nAutosave: %v (mode %s)\nIgnore dirs: %v\nIgnore files: %v\nIgnore extensions: %v\nIgnore patterns: %v",
		cfg.ProjectName, cfg.StoragePath, cfg.CompressionEnabled, cfg.CompressionLevel,
		cfg.Autosave.Enabled, cfg.Autosave.Mode,
		cfg.Ignore.Dirs, cfg.Ignore.Files, cfg.Ignore.Extensions, cfg.Ignore.Patterns)
	return result(text, map[string]any{
		"project_name":        cfg.ProjectName,
		"storage_path":        cfg.StoragePath,
		"compression_enabled": cfg.CompressionEnabled,
		"compression_level":   cfg.CompressionLevel,
		"autosave_enabled":    cfg.Autosave.Enabled,
		"autosave_mode":       cfg.Autosave.Mode,
		"ignore": map[string]any{
			"dirs":       cfg.Ignore.Dirs,
			"files":      cfg.Ignore.Files,
			"extensions": cfg.Ignore.Extensions,
			"patterns":   cfg.Ignore.Patterns,
		},
	}), nil
}

func handleSetConfigValue(r *Router, args map[string]any) (map[string]any, error) {
	projectPath := r.projectPath(args, true)
	p, err := r.registry.Project(projectPath)
	if err != nil {
		return nil, err
	}
	key, ok := argString(args, "key")
	if !ok {
		return nil, fmt.Errorf("%w: key is required", gcd.ErrInvalid)
	}
	value, exists := args["value"]
	if !exists {
		return nil, fmt.Errorf("%w: value is required", gcd.ErrInvalid)
	}

	cfg := p.Config
	if err := setConfigKey(cfg, key, value); err != nil {
		return nil, err
	}
	if err := config.Save(cfg); err != nil {
		return nil, err
	}

	// The cached wiring was built from the old values.
	r.registry.Invalidate(projectPath)

	return result(fmt.Sprintf("Set %s = %v.", key, value), map[string]any{
		"key": key, "value": value,
	}), nil
}

// setConfigKey applies one dotted-path option to the config.
func setConfigKey(cfg *config.Config, key string, value any) error {
	switch key {
	case "project_name":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s expects a string", gcd.ErrInvalid, key)
		}
		cfg.ProjectName = s
	case "storage_path":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s expects a string", gcd.ErrInvalid, key)
		}
		cfg.StoragePath = s
	case "compression_enabled":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s expects a boolean", gcd.ErrInvalid, key)
		}
		cfg.CompressionEnabled = b
	case "compression_level":
		n, ok := value.(float64)
		if !ok || n < 1 || n > 22 {
			return fmt.Errorf("%w: %s expects a number in [1, 22]", gcd.ErrInvalid, key)
		}
		cfg.CompressionLevel = int(n)
	case "autosave.enabled":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s expects a boolean", gcd.ErrInvalid, key)
		}
		cfg.Autosave.Enabled = b
	case "autosave.mode":
		s, ok := value.(string)
		if !ok || (s != "timer" && s != "diff" && s != "hybrid") {
			return fmt.Errorf("%w: %s expects timer, diff or hybrid", gcd.ErrInvalid, key)
		}
		cfg.Autosave.Mode = s
	case "autosave.timer.interval":
		n, ok := value.(float64)
		if !ok || n <= 0 {
			return fmt.Errorf("%w: %s expects a positive number", gcd.ErrInvalid, key)
		}
		cfg.Autosave.Timer.IntervalSeconds = int(n)
	case "autosave.retention.max_autosaves":
		n, ok := value.(float64)
		if !ok || n <= 0 {
			return fmt.Errorf("%w: %s expects a positive number", gcd.ErrInvalid, key)
		}
		cfg.Autosave.Retention.MaxAutosaves = int(n)
	case "autosave.retention.delete_after_days":
		n, ok := value.(float64)
		if !ok || n < 0 {
			return fmt.Errorf("%w: %s expects a non-negative number", gcd.ErrInvalid, key)
		}
		cfg.Autosave.Retention.DeleteAfterDays = int(n)
	case "diff_format.default":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s expects a string", gcd.ErrInvalid, key)
		}
		switch s {
		case gcd.FormatUnified, gcd.FormatJSON, gcd.FormatMarkdown, gcd.FormatAST:
		default:
			return fmt.Errorf("%w: unknown diff format %q", gcd.ErrInvalid, s)
		}
		cfg.Diff.Default = s
	case "diff_format.unified_context":
		n, ok := value.(float64)
		if !ok || n < 0 {
			return fmt.Errorf("%w: %s expects a non-negative number", gcd.ErrInvalid, key)
		}
		cfg.Diff.UnifiedContext = int(n)
	default:
		return fmt.Errorf("%w: unknown config key %q", gcd.ErrInvalid, key)
	}
	return nil
}

func handleApplyPreset(r *Router, args map[string]any) (map[string]any, error) {
	projectPath := r.projectPath(args, true)
	p, err := r.registry.Project(projectPath)
	if err != nil {
		return nil, err
	}
	preset, ok := argString(args, "preset")
	if !ok {
		return nil, fmt.Errorf("%w: preset is required", gcd.ErrInvalid)
	}

	cfg := p.Config
	if err := config.ApplyPreset(cfg, preset); err != nil {
		return nil, fmt.Errorf("%w: %v", gcd.ErrInvalid, err)
	}
	if err := config.Save(cfg); err != nil {
		return nil, err
	}
	r.registry.Invalidate(projectPath)

	return result(fmt.Sprintf("Applied preset %q.", preset), map[string]any{
		"preset": preset,
		"ignore": map[string]any{
			"dirs":       cfg.Ignore.Dirs,
			"files":      cfg.Ignore.Files,
			"extensions": cfg.Ignore.Extensions,
		},
	}), nil
}

func handleManageIgnoreRules(r *Router, args map[string]any) (map[string]any, error) {
	projectPath := r.projectPath(args, true)
	p, err := r.registry.Project(projectPath)
	if err != nil {
		return nil, err
	}
	action, _ := argString(args, "action")
	ruleType, _ := argString(args, "rule_type")
	values := argStringList(args, "values")
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: values is required", gcd.ErrInvalid)
	}

	cfg := p.Config
	var list *[]string
	switch ruleType {
	case "dirs":
		list = &cfg.Ignore.Dirs
	case "files":
		list = &cfg.Ignore.Files
	case "extensions":
		list = &cfg.Ignore.Extensions
	case "patterns":
		list = &cfg.Ignore.Patterns
	default:
		return nil, fmt.Errorf("%w: rule_type must be dirs, files, extensions or patterns", gcd.ErrInvalid)
	}

	switch action {
	case "add":
		*list = append(*list, values...)
	case "remove":
		drop := make(map[string]struct{}, len(values))
		for _, v := range values {
			drop[v] = struct{}{}
		}
		kept := (*list)[:0]
		for _, v := range *list {
			if _, ok := drop[v]; !ok {
				kept = append(kept, v)
			}
		}
		*list = kept
	default:
		return nil, fmt.Errorf("%w: action must be add or remove", gcd.ErrInvalid)
	}

	if err := config.Save(cfg); err != nil {
		return nil, err
	}
	r.registry.Invalidate(projectPath)

	verb := "Added"
	if action == "remove" {
		verb = "Removed"
	}
	return result(fmt.Sprintf("%s %d %s rule(s).", verb, len(values), ruleType), map[string]any{
		"action": action, "rule_type": ruleType, "values": values, "rules": *list,
	}), nil
}

// Autosave tools

func handleStartAutosave(r *Router, args map[string]any) (map[string]any, error) {
	projectPath, ok := argString(args, "project_path")
	if !ok {
		return nil, fmt.Errorf("%w: project_path is required", gcd.ErrInvalid)
	}
	mode, _ := argString(args, "mode")

	controller, err := r.registry.StartAutosave(projectPath, mode)
	if err != nil {
		return nil, err
	}
	return result(
		fmt.Sprintf("Autosave started for %s in %s mode.", projectPath, controller.Mode()),
		map[string]any{"project_path": projectPath, "mode": controller.Mode(), "running": true},
	), nil
}

func handleStopAutosave(r *Router, args map[string]any) (map[string]any, error) {
	projectPath, ok := argString(args, "project_path")
	if !ok {
		return nil, fmt.Errorf("%w: project_path is required", gcd.ErrInvalid)
	}

	stopped := r.registry.StopAutosave(projectPath)
	text := "No autosave was running for " + projectPath + "."
	if stopped {
		text = "Autosave stopped for " + projectPath + "."
	}
	return result(text, map[string]any{"project_path": projectPath, "stopped": stopped}), nil
}

func handleAutosaveStatus(r *Router, args map[string]any) (map[string]any, error) {
	status := r.registry.AutosaveStatus()

	var b strings.Builder
	fmt.Fprintf(&b, "%d autosave controller(s) running.\n", len(status))
	list := make([]map[string]any, 0, len(status))
	for path, mode := range status {
		fmt.Fprintf(&b, "  %s (%s)\n", path, mode)
		list = append(list, map[string]any{"project_path": path, "mode": mode})
	}
	return result(b.String(), map[string]any{"controllers": list}), nil
}

// Argument helpers

func result(text string, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["text"] = text
	return out
}

func argString(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func argBool(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

func argInt(args map[string]any, key string, fallback int) int {
	if v, ok := args[key]; ok {
		if n, ok := v.(float64); ok {
			return int(n)
		}
	}
	return fallback
}

func argStringList(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		var out []string
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if list == "" {
			return nil
		}
		return []string{list}
	}
	return nil
}
