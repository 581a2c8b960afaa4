package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/loopwidget/planscope/internal/utils"
	"github.com/loopwidget/planscope/pkg/money"
	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/polling"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// plansCmd implements: planscope plans [product...]
//
// A product is a product page URL or handle[:productID[:secondaryProductID]]
// relative to --store.
var plansCmd = &cobra.Command{
	Use:   "plans [product...]",
	Short: "Resolve and price the subscription plans of products",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		refs, err := productRefs(cmd, args)
		if err != nil {
			return err
		}

		fetcher, closeCache, err := newFetcher(cmd)
		if err != nil {
			return err
		}
		defer closeCache()

		fromPage, _ := cmd.Flags().GetBool("page")
		// Sources are bound to a store, so products are grouped per store.
		var groups []storeGroup
		index := map[string]int{}
		for _, ref := range refs {
			i, ok := index[ref.Store]
			if !ok {
				inline, remote := newSources(fetcher, ref.Store, fromPage)
				groups = append(groups, storeGroup{inline: inline, remote: remote})
				i = len(groups) - 1
				index[ref.Store] = i
			}
			groups[i].refs = append(groups[i].refs, ref)
		}

		return runPlans(cmd, groups)
	},
}

type storeGroup struct {
	inline sources.InlineSource
	remote sources.RemoteSource
	refs   []sources.ProductRef
}

func init() {
	rootCmd.AddCommand(plansCmd)

	// Make common flags persistent so subcommands inherit them
	plansCmd.PersistentFlags().Bool("db", false, "Save results to the database and print changes")
	plansCmd.PersistentFlags().Bool("allow-wipe", false, "Let a product that resolved to zero plans remove its stored plans (requires --db)")
	plansCmd.PersistentFlags().Int("concurrency", 5, "Number of concurrent product resolutions")
	plansCmd.PersistentFlags().String("variant", "", "Variant id to resolve plans for (applies to every product)")
	plansCmd.PersistentFlags().StringP("output", "o", "nfpsu", "Output flags. Supported: i (plan id), n (name), f (frequency), p (price), s (savings), q (quantity), u (product URL). Can be combined. Example: -o nps")
	plansCmd.PersistentFlags().StringP("delimiter", "d", " ", "Delimiter character to use for txt output format")
	plansCmd.PersistentFlags().String("format", "txt", "Output format: txt, json or yaml")
	plansCmd.Flags().Bool("page", false, "Read plans embedded in the product page instead of the product JSON document")
}

func productRefs(cmd *cobra.Command, args []string) ([]sources.ProductRef, error) {
	return productRefsForStore(cmd, storeURL(cmd), args)
}

// planOutput is one priced plan in json/yaml output.
type planOutput struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Frequency  string `json:"frequency" yaml:"frequency"`
	Billing    string `json:"billing" yaml:"billing"`
	Price      string `json:"price" yaml:"price"`
	BasePrice  string `json:"base_price" yaml:"base_price"`
	TotalPrice string `json:"total_price" yaml:"total_price"`
	Savings    int    `json:"savings_percent" yaml:"savings_percent"`
	Quantity   int    `json:"quantity" yaml:"quantity"`
}

type productOutput struct {
	Store     string       `json:"store" yaml:"store"`
	Handle    string       `json:"handle" yaml:"handle"`
	ProductID string       `json:"product_id,omitempty" yaml:"product_id,omitempty"`
	Status    string       `json:"status" yaml:"status"`
	Error     string       `json:"error,omitempty" yaml:"error,omitempty"`
	Plans     []planOutput `json:"plans" yaml:"plans"`
}

// lockPurpose names the products a run writes, for processes waiting on the
// snapshot lock.
func lockPurpose(groups []storeGroup) string {
	var handles []string
	for _, g := range groups {
		for _, ref := range g.refs {
			handles = append(handles, strings.TrimPrefix(strings.TrimPrefix(ref.Store, "https://"), "http://")+"/"+ref.Handle)
		}
	}
	return "plans for " + strings.Join(handles, ", ")
}

// runPlans executes the polling flow for every store group.
func runPlans(cmd *cobra.Command, groups []storeGroup) error {
	useDB, _ := cmd.Flags().GetBool("db")
	allowWipe, _ := cmd.Flags().GetBool("allow-wipe")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	format, _ := cmd.Flags().GetString("format")
	outputFlags, _ := cmd.Flags().GetString("output")
	delimiter, _ := cmd.Flags().GetString("delimiter")

	switch format {
	case "txt", "json", "yaml":
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	var db *storage.DB
	if useDB {
		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return err
		}
		lock, err := utils.NewSnapshotLock(dbPath, lockPurpose(groups))
		if err != nil {
			return err
		}
		if err := lock.Lock(cmd.Context()); err != nil {
			return err
		}
		defer lock.Unlock()

		db, err = storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	engine := newEngine()
	formatter := newFormatter()
	out := cmd.OutOrStdout()

	var printMu sync.Mutex
	var collected []productOutput
	for _, g := range groups {
		cfg := polling.Config{
			Products:    g.refs,
			Inline:      g.inline,
			Remote:      g.remote,
			Engine:      engine,
			DB:          db,
			Concurrency: concurrency,
			AllowWipe:   allowWipe,
			Log:         utils.Log,
			OnProductDone: func(res polling.ProductResult) {
				if format != "txt" {
					return
				}
				printMu.Lock()
				defer printMu.Unlock()
				if useDB {
					if res.IsFirstRun && len(res.Changes) > 0 {
						fmt.Fprintf(out, "First poll for %s, populating database...\n", productURL(res.Ref))
						return
					}
					printChanges(out, res.Changes)
					return
				}
				if err := plans.PrintRows(out, rowsFor(res, formatter), outputFlags, delimiter); err != nil {
					utils.Log.Error(err)
				}
			},
		}

		result, err := polling.PollProducts(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		for _, res := range result.Products {
			collected = append(collected, outputFor(res, formatter))
		}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(collected)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(collected)
	}
	return nil
}

func productURL(ref sources.ProductRef) string {
	return sources.StoreURL(ref.Store, "/products/"+ref.Handle)
}

func rowsFor(res polling.ProductResult, f money.Formatter) []plans.Row {
	rows := make([]plans.Row, 0, len(res.Snapshot.Plans))
	for i, p := range res.Snapshot.Plans {
		q := res.Quotes[i]
		rows = append(rows, plans.Row{
			Plan:       p,
			Price:      f.Format(q.UnitDisplayPrice),
			Savings:    q.SavingsPercent,
			Quantity:   q.Quantity,
			ProductURL: productURL(res.Ref),
		})
	}
	return rows
}

func outputFor(res polling.ProductResult, f money.Formatter) productOutput {
	po := productOutput{
		Store:     res.Ref.Store,
		Handle:    res.Ref.Handle,
		ProductID: res.Ref.ProductID,
		Status:    res.Snapshot.State.String(),
		Plans:     []planOutput{},
	}
	if res.Err != nil {
		po.Error = res.Err.Error()
	}
	for i, p := range res.Snapshot.Plans {
		q := res.Quotes[i]
		po.Plans = append(po.Plans, planOutput{
			ID:         p.ID,
			Name:       p.Name,
			Frequency:  plans.FrequencyText(p, q.Quantity),
			Billing:    plans.BillingText(p, f.Format(q.TotalBilledPrice)),
			Price:      f.Format(q.UnitDisplayPrice),
			BasePrice:  f.Format(q.BasePrice),
			TotalPrice: f.Format(q.TotalBilledPrice),
			Savings:    q.SavingsPercent,
			Quantity:   q.Quantity,
		})
	}
	return po
}

func printChanges(w io.Writer, changes []storage.Change) {
	for _, c := range changes {
		var emoji string
		switch c.ChangeType {
		case "added":
			emoji = "🆕"
		case "removed":
			emoji = "❌"
		case "updated":
			emoji = "🔄"
		}

		detail := ""
		if c.Detail != "" {
			detail = "  (" + c.Detail + ")"
		}
		fmt.Fprintf(w, "%s  %s/products/%s  %s  %s%s\n", emoji, c.StoreURL, c.Handle, c.PlanID, c.PlanName, detail)
	}
}
