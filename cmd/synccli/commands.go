package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device id, record count and last sync time",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		status := a.engine.Status(ctx)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Device:     %s\n", a.devices.GetOrCreate(ctx))
		fmt.Fprintf(out, "Records:    %d\n", len(a.store.GetAll(ctx)))
		fmt.Fprintf(out, "Remote:     %s\n", configuredLabel(status.Configured))
		if status.LastSyncAt != nil {
			fmt.Fprintf(out, "Last sync:  %s\n", status.LastSyncAt.Local().Format(time.RFC1123))
		} else {
			fmt.Fprintf(out, "Last sync:  never\n")
		}
		return nil
	},
}

var pullFirst bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push the local snapshot to the remote store",
	Long: `Push the full local snapshot to the remote store and report the outcome.

With --pull, startup reconciliation runs first: the remote snapshot is pulled
and merged record by record, keeping the most recently updated side.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if pullFirst {
			merged := a.engine.Initialize(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Reconciled %d records\n", len(merged))
		}

		result := a.engine.ManualSync(ctx)
		if !result.Success {
			return errors.New(result.Error)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Synced at %s\n", result.SyncedAt.Local().Format(time.RFC1123))
		return nil
	},
}

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the local snapshot as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		var w io.Writer = cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		return a.engine.Export(cmd.Context(), w)
	},
}

var importYes bool

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the local snapshot with an exported document",
	Long: `Replace ALL local records with the contents of an exported document.

The document is validated first; nothing changes unless --yes is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := a.engine.Import(cmd.Context(), f, importYes)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records\n", n)
		if a.client.IsConfigured() {
			result := a.engine.ManualSync(cmd.Context())
			if !result.Success {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: import not pushed: %s\n", result.Error)
			}
		}
		return nil
	},
}

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every local record",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			return errors.New("refusing to delete all records without --yes")
		}
		a, err := openApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All local records deleted")
		return nil
	},
}

var resetDeviceCmd = &cobra.Command{
	Use:   "reset-device",
	Short: "Discard the device id and generate a new one",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintln(cmd.OutOrStdout(), a.devices.Reset(cmd.Context()))
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&pullFirst, "pull", false, "pull and merge the remote snapshot before pushing")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
	importCmd.Flags().BoolVar(&importYes, "yes", false, "confirm replacing all local records")
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm deleting all local records")
}

func configuredLabel(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured (local only)"
}
