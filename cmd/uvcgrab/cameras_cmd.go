// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvrtools/uvcgrab/internal/log"
	"github.com/nvrtools/uvcgrab/internal/uvc"
)

// newCamerasCmd lists the controller's camera catalog so operators can copy
// exact display names into --cameras.
func newCamerasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cameras",
		Short: "List cameras known to the controller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := mergedSettings(cmd)
			if err != nil {
				return err
			}
			configureLogging(settings)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := uvc.New(uvc.Options{
				BaseURL:        settings.BaseURL(),
				Username:       settings.Username,
				Password:       settings.Password,
				TLSVerify:      settings.TLSVerify,
				RequestTimeout: settings.RequestTimeout,
				UserAgent:      "uvcgrab/" + version,
			})
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Login(ctx); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settings.RequestTimeout)
				defer cancel()
				if err := client.Logout(ctx); err != nil {
					logger := log.WithComponent("cli")
					logger.Warn().Err(err).Msg("session.logout_failed")
				}
			}()

			catalog, err := client.Bootstrap(ctx)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}

			cams := make([]uvc.Camera, 0, len(catalog))
			for _, cam := range catalog {
				cams = append(cams, cam)
			}
			sort.Slice(cams, func(i, j int) bool {
				if cams[i].Name != cams[j].Name {
					return cams[i].Name < cams[j].Name
				}
				return cams[i].ID < cams[j].ID
			})

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tHOST\tRTSP")
			for _, cam := range cams {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cam.ID, cam.Name, cam.Host, cam.RTSPURI)
			}
			return w.Flush()
		},
	}
}
