package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/duoapp/duo/internal/dashboard"
	"github.com/duoapp/duo/internal/preview"
	"github.com/duoapp/duo/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "items",
	Short:   "Serve the item API, live updates and markdown preview over HTTP",
	Long: `Start the browser surface.

Routes:
  GET    /api/items          list items
  POST   /api/items          add {"name": "..."}
  PUT    /api/items/{id}     rename {"name": "..."}
  DELETE /api/items/{id}     remove
  POST   /api/items/reload   reload from the database
  GET    /api/commands       which actions are currently available
  GET    /preview            live markdown preview of --watch FILE
  GET    /ws                 WebSocket feed
  GET    /health             health check

WebSocket messages:
  collection_changed, selection_changed, error, preview_update, stats

If the database cannot be initialized the error is reported once and the
server keeps running with the item API answering 503.

Example usage:
  duo serve                         # port from server.port (default 8080)
  duo serve --port 9000 --watch README.md`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		watchPath, _ := cmd.Flags().GetString("watch")

		ctx, cancel := signalContext()
		defer cancel()

		srvCfg := &dashboard.Config{
			Port:   port,
			Logger: logger.Named("dashboard"),
			Driver: cfg.Database.Driver,
		}

		gw, ctrl, err := openController(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s Could not initialize the database: %v\n", ui.RenderWarn("⚠"), err)
			fmt.Fprintln(os.Stderr, "  The item API is disabled; the preview keeps working.")
			srvCfg.Unavailable = err
		} else {
			defer gw.Close()
			srvCfg.Controller = ctrl
		}

		server := dashboard.NewServer(srvCfg)

		var watcher *preview.Watcher
		if watchPath != "" {
			watcher, err = startPreviewWatcher(server, watchPath)
			if err != nil {
				exitf("%v", err)
			}
		}

		if err := server.Start(); err != nil {
			if watcher != nil {
				_ = watcher.Stop()
			}
			exitf("failed to start server: %v", err)
		}

		addr := server.GetAddr()
		fmt.Printf("%s Serving on http://%s\n", ui.RenderAccent("🚀"), addr)
		fmt.Printf("  WebSocket endpoint: ws://%s/ws\n", addr)
		if watchPath != "" {
			fmt.Printf("  Preview of %s: http://%s/preview\n", watchPath, addr)
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		if watcher != nil {
			if err := watcher.Stop(); err != nil {
				logger.Warn("failed to stop watcher", zap.Error(err))
			}
		}
		if err := server.Stop(); err != nil {
			exitf("error during shutdown: %v", err)
		}
		fmt.Printf("%s Stopped\n", ui.RenderPass("✓"))
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on (overrides server.port)")
	serveCmd.Flags().StringP("watch", "w", "", "markdown file to preview live")

	rootCmd.AddCommand(serveCmd)
}

// startPreviewWatcher publishes the file's current text and then every saved
// version to the server.
func startPreviewWatcher(server *dashboard.Server, path string) (*preview.Watcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	server.PublishPreview(preview.Update{Path: path, Text: string(data)})

	watcher, err := preview.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(path); err != nil {
		_ = watcher.Stop()
		return nil, err
	}

	log := logger.Named("preview")
	go func() {
		updates, errs := watcher.Updates(), watcher.Errors()
		for updates != nil || errs != nil {
			select {
			case u, ok := <-updates:
				if !ok {
					updates = nil
					continue
				}
				log.Debug("preview updated", zap.String("path", u.Path), zap.Int("bytes", len(u.Text)))
				server.PublishPreview(u)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				log.Warn("preview watcher error", zap.Error(err))
			}
		}
	}()
	return watcher, nil
}
