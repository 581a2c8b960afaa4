package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/loopwidget/planscope/internal/server"
	"github.com/loopwidget/planscope/internal/utils"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the subscription widget API",
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")
		useDB, _ := cmd.Flags().GetBool("db")
		fromPage, _ := cmd.Flags().GetBool("page")
		dev, _ := cmd.Flags().GetBool("dev")

		fetcher, closeCache, err := newFetcher(cmd)
		if err != nil {
			return err
		}
		defer closeCache()

		var db *storage.DB
		if useDB {
			dbPath, err := resolveDBPath(cmd)
			if err != nil {
				return err
			}
			db, err = storage.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
		}

		// Sources are cached per store so every widget of a store shares them.
		var mu sync.Mutex
		type pair struct {
			inline sources.InlineSource
			remote sources.RemoteSource
		}
		perStore := map[string]pair{}
		factory := func(store string) (sources.InlineSource, sources.RemoteSource) {
			mu.Lock()
			defer mu.Unlock()
			p, ok := perStore[store]
			if !ok {
				p.inline, p.remote = newSources(fetcher, store, fromPage)
				perStore[store] = p
			}
			return p.inline, p.remote
		}
		if dev {
			src := devCatalogue()
			factory = func(string) (sources.InlineSource, sources.RemoteSource) { return src, src }
		}

		srv := server.New(server.Config{
			DB:          db,
			Sources:     factory,
			Engine:      newEngine(),
			Formatter:   newFormatter(),
			DefaultMode: defaultMode(),
			Username:    viper.GetString("server.username"),
			Password:    viper.GetString("server.password"),
			Log:         utils.Log,
		})
		defer srv.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(listenAddr) }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			utils.Log.Info("Shutting down")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Bool("db", false, "Expose stored plans and changes from the database")
	serveCmd.Flags().Bool("page", false, "Read plans embedded in product pages instead of product JSON documents")
	serveCmd.Flags().Bool("dev", false, "Serve the built-in demo catalogue instead of real stores")
}
