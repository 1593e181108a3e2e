package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Will-Jameson/portfolio-website/internal/auth"
	"github.com/Will-Jameson/portfolio-website/internal/blog"
	"github.com/Will-Jameson/portfolio-website/internal/clock"
	"github.com/Will-Jameson/portfolio-website/internal/config"
	"github.com/Will-Jameson/portfolio-website/internal/db"
	"github.com/Will-Jameson/portfolio-website/internal/handlers"
)

type app struct {
	cfg     config.Config
	durable db.Backend
	store   *blog.Store
	gate    *auth.Gate
}

func openApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	durable, err := db.Open(ctx, cfg.DatabaseURL, cfg.StorageQuota)
	if err != nil {
		return nil, err
	}
	clk := clock.System{}
	return &app{
		cfg:     cfg,
		durable: durable,
		store:   blog.NewStore(durable, clk, blog.NewSeeder(cfg.SeedSource)),
		gate:    auth.NewGate(db.NewMemory(cfg.StorageQuota), durable, []byte(cfg.SessionSecret), clk),
	}, nil
}

func (a *app) Close() {
	a.durable.Close()
}

func main() {
	root := &cobra.Command{
		Use:           "portfolio",
		Short:         "Blog backend for the portfolio site",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := serveCmd()
	root.RunE = serve.RunE
	root.AddCommand(serve, exportCmd(), importCmd(), statsCmd(), passwdCmd(), seedCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return fmt.Errorf("db connect failed: %w", err)
			}
			defer a.Close()

			if a.gate.IsAuthenticated(ctx) {
				a.gate.SetupAutoExtend(ctx)
			}

			srv := &http.Server{
				Addr: ":" + a.cfg.Port,
				Handler: handlers.NewRouter(ctx, handlers.RouterConfig{
					Store:              a.store,
					Gate:               a.gate,
					Clock:              clock.System{},
					LoginURL:           a.cfg.LoginURL,
					CorsAllowedOrigins: a.cfg.CorsAllowedOrigins,
					CookieSecure:       a.cfg.CookieSecure,
				}),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			go func() {
				log.Printf("listening on :%s", a.cfg.Port)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("server error: %v", err)
				}
			}()

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("shutdown error: %v", err)
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every post to a JSON export file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.store.ExportToJSON(cmd.Context())
			if err != nil {
				return err
			}
			if output == "-" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), doc)
				return err
			}
			if output == "" {
				output = blog.ExportFilename(time.Now())
			}
			if err := os.WriteFile(output, []byte(doc), 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default blog-export-<timestamp>.json)")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace all posts with the contents of an export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.store.ImportFromJSON(cmd.Context(), string(data))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d posts\n", n)
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show post counts and storage use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			stats := a.store.GetStorageStats(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "posts:     %d (%d published, %d drafts)\n", stats.TotalPosts, stats.PublishedPosts, stats.DraftPosts)
			fmt.Fprintf(out, "storage:   %s of %s (%.2f%%)\n",
				humanize.IBytes(uint64(stats.SizeInBytes)), humanize.IBytes(db.DefaultQuota), stats.PercentUsed)
			return nil
		},
	}
}

func passwdCmd() *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Set or change the admin password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if !a.gate.IsCredentialSet(ctx) {
				if err := a.gate.SetCredential(ctx, next); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "password set")
				return nil
			}
			if err := a.gate.ChangeCredential(ctx, current, next); err != nil {
				return err
			}
			a.gate.Logout(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "password changed, existing sessions ended")
			return nil
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "current password")
	cmd.Flags().StringVar(&next, "new", "", "new password")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the seed posts into an empty store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			posts := a.store.LoadFromFallback(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%d posts in store\n", len(posts))
			return nil
		},
	}
}
