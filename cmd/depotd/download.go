package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
	"github.com/modeldepot/depot/pkg/depot/download"
	"github.com/modeldepot/depot/pkg/depot/identifier"
)

// awaitDownload polls mgr for modelID's terminal status, printing
// progress as it changes. The CLI has no persistent daemon behind it
// like the HTTP server does (each invocation is its own process via
// buildDeps), so unlike the manager's own Download/Resume it cannot
// just return once the session is registered: nothing would be left
// running to finish the transfer once the process exits.
func awaitDownload(mgr *download.Manager, modelID string) error {
	var lastFile string
	for {
		status, ok := mgr.Status(modelID)
		if !ok {
			return apperrors.NotFoundf("lost track of download session for %q", modelID)
		}
		if progress, ok := mgr.Progress(modelID); ok && progress.CurrentFileName != lastFile {
			lastFile = progress.CurrentFileName
			if lastFile != "" {
				fmt.Printf("downloading %s (%d/%d bytes)\n", lastFile, progress.BytesDownloaded, progress.TotalBytes)
			}
		}
		if status.Terminal() {
			switch status {
			case download.StatusCompleted:
				fmt.Printf("download complete for %s\n", modelID)
				return nil
			case download.StatusCancelled:
				return apperrors.Cancelled(modelID)
			default:
				progress, _ := mgr.Progress(modelID)
				return apperrors.New(apperrors.KindModelLoadFailure, fmt.Sprintf("download failed for %s: %s", modelID, progress.ErrorMessage))
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func newDownloadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Manage model downloads",
	}
	cmd.AddCommand(newDownloadStartCommand())
	cmd.AddCommand(newDownloadPauseCommand())
	cmd.AddCommand(newDownloadResumeCommand())
	cmd.AddCommand(newDownloadCancelCommand())
	cmd.AddCommand(newDownloadStatusCommand())
	cmd.AddCommand(newDownloadListCommand())
	return cmd
}

func newDownloadStartCommand() *cobra.Command {
	var repoID, targetDir, modelType string
	cmd := &cobra.Command{
		Use:   "start <modelId>",
		Short: "Start downloading a model from the hub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(nil)
			if err != nil {
				return err
			}
			t, err := parseType(modelType)
			if err != nil {
				return err
			}
			info, err := d.manager.Download(context.Background(), args[0], repoID, targetDir, t, nil)
			if err != nil {
				return err
			}
			fmt.Printf("download started for %s\n", info.ModelID)
			return awaitDownload(d.manager, info.ModelID)
		},
	}
	cmd.Flags().StringVar(&repoID, "repo-id", "", "hub repository id, e.g. acme/widget")
	cmd.Flags().StringVar(&targetDir, "target-dir", "", "local directory to download into")
	cmd.Flags().StringVar(&modelType, "type", string(identifier.TextGeneration), "model type: TextGeneration or Embedding")
	cmd.MarkFlagRequired("repo-id")
	cmd.MarkFlagRequired("target-dir")
	return cmd
}

func newDownloadPauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <modelId>",
		Short: "Pause an in-progress download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(nil)
			if err != nil {
				return err
			}
			if !d.manager.Pause(args[0]) {
				return apperrors.NotFoundf("no active download for %q", args[0])
			}
			fmt.Println("paused")
			return nil
		},
	}
}

func newDownloadResumeCommand() *cobra.Command {
	var repoID, targetDir, modelType string
	cmd := &cobra.Command{
		Use:   "resume <modelId>",
		Short: "Resume a paused download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(nil)
			if err != nil {
				return err
			}
			t, err := parseType(modelType)
			if err != nil {
				return err
			}
			info, err := d.manager.Resume(context.Background(), args[0], repoID, targetDir, t, nil)
			if err != nil {
				return err
			}
			fmt.Printf("resumed %s\n", info.ModelID)
			return awaitDownload(d.manager, info.ModelID)
		},
	}
	cmd.Flags().StringVar(&repoID, "repo-id", "", "hub repository id, e.g. acme/widget")
	cmd.Flags().StringVar(&targetDir, "target-dir", "", "local directory to download into")
	cmd.Flags().StringVar(&modelType, "type", string(identifier.TextGeneration), "model type: TextGeneration or Embedding")
	cmd.MarkFlagRequired("repo-id")
	cmd.MarkFlagRequired("target-dir")
	return cmd
}

func newDownloadCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <modelId>",
		Short: "Cancel an in-progress or paused download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(nil)
			if err != nil {
				return err
			}
			if !d.manager.Cancel(args[0]) {
				return apperrors.NotFoundf("no active download for %q", args[0])
			}
			fmt.Println("cancelled")
			return nil
		},
	}
}

func newDownloadStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <modelId>",
		Short: "Show a download's status and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(nil)
			if err != nil {
				return err
			}
			status, ok := d.manager.Status(args[0])
			if !ok {
				return apperrors.NotFoundf("no download session for %q", args[0])
			}
			progress, _ := d.manager.Progress(args[0])
			fmt.Printf("status: %s\n", status)
			fmt.Printf("progress: %d/%d bytes (%.1f KB/s)\n", progress.BytesDownloaded, progress.TotalBytes, progress.BytesPerSecond/1024)
			return nil
		},
	}
}

func newDownloadListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all known download sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(nil)
			if err != nil {
				return err
			}
			for _, info := range d.manager.ListAll() {
				fmt.Printf("%s\t%s\t%d/%d\n", info.ModelID, info.Status, info.Progress.BytesDownloaded, info.Progress.TotalBytes)
			}
			return nil
		},
	}
}

func parseType(s string) (identifier.ModelType, error) {
	switch s {
	case string(identifier.TextGeneration):
		return identifier.TextGeneration, nil
	case string(identifier.Embedding):
		return identifier.Embedding, nil
	default:
		return "", apperrors.InvalidRequestf("unknown model type %q", s)
	}
}
