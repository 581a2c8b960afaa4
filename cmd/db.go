package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/loopwidget/planscope/internal/utils"
	"github.com/loopwidget/planscope/pkg/storage"
	"github.com/spf13/cobra"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the planscope database",
}

// openExistingDB opens the database at --dbpath, failing when it does not exist yet.
func openExistingDB(cmd *cobra.Command) (*storage.DB, string, error) {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, dbPath, fmt.Errorf("database file not found: %s", dbPath)
	}
	db, err := storage.Open(dbPath)
	return db, dbPath, err
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return err
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		// Print schema first
		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about the stores, products and plans in the database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openExistingDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(context.Background())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(stats) == 0 {
			fmt.Fprintln(out, "No data in the database to generate stats.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "STORE\tPRODUCTS\tPLANS\t")

		var totalProducts, totalPlans int
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%s\t%s\t\n", s.Store, humanize.Comma(int64(s.ProductCount)), humanize.Comma(int64(s.PlanCount)))
			totalProducts += s.ProductCount
			totalPlans += s.PlanCount
		}

		fmt.Fprintln(w, " \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%s\t%s\t\n", humanize.Comma(int64(totalProducts)), humanize.Comma(int64(totalPlans)))

		return w.Flush()
	},
}

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List the products tracked in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openExistingDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		products, err := db.ListProducts(context.Background())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "PRODUCT\tPLANS\tLAST SEEN\t")
		for _, p := range products {
			fmt.Fprintf(w, "%s/products/%s\t%d\t%s\t\n", p.StoreURL, p.Handle, p.PlanCount, humanize.Time(p.LastSeenAt))
		}
		return w.Flush()
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <store> <handle>",
	Short: "Stop tracking a product and delete its stored plans",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, dbPath, err := openExistingDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		lock, err := utils.NewSnapshotLock(dbPath, "removal of "+args[0]+"/"+args[1])
		if err != nil {
			return err
		}
		if err := lock.Lock(cmd.Context()); err != nil {
			return err
		}
		defer lock.Unlock()

		changes, err := db.RemoveProduct(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		if err := db.LogChanges(context.Background(), changes); err != nil {
			return err
		}
		printChanges(cmd.OutOrStdout(), changes)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
	dbCmd.AddCommand(productsCmd)
	dbCmd.AddCommand(removeCmd)
}
