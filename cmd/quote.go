package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loopwidget/planscope/pkg/money"
	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// quoteCmd prices one ad hoc plan without touching the network.
var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a single plan offline",
	Example: `  planscope quote --price 65 --percent 15
  planscope quote --price 65.00 --fixed 10 --interval month --count 3 --format json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		priceStr, _ := cmd.Flags().GetString("price")
		percentStr, _ := cmd.Flags().GetString("percent")
		fixedStr, _ := cmd.Flags().GetString("fixed")
		intervalStr, _ := cmd.Flags().GetString("interval")
		count, _ := cmd.Flags().GetInt("count")
		name, _ := cmd.Flags().GetString("name")
		format, _ := cmd.Flags().GetString("format")

		price, err := money.ParseMajor(priceStr)
		if err != nil {
			return fmt.Errorf("invalid --price: %w", err)
		}
		interval, err := plans.ParseInterval(intervalStr)
		if err != nil {
			return err
		}

		adj := plans.NoAdjustment()
		switch {
		case percentStr != "" && fixedStr != "":
			return errors.New("--percent and --fixed are mutually exclusive")
		case percentStr != "":
			v, err := money.ParseMajor(percentStr)
			if err != nil {
				return fmt.Errorf("invalid --percent: %w", err)
			}
			adj = plans.Percentage(v)
		case fixedStr != "":
			v, err := money.ParseMajor(fixedStr)
			if err != nil {
				return fmt.Errorf("invalid --fixed: %w", err)
			}
			adj = plans.FixedAmount(v)
		}

		p := plans.SubscriptionPlan{
			ID:            "quote",
			Name:          name,
			Interval:      interval,
			IntervalCount: count,
			BasePrice:     money.MinorUnits(price),
			Adjustment:    adj,
		}
		// An out-of-range adjustment is priced at base, not refused.
		shape := p
		shape.Adjustment = plans.NoAdjustment()
		if err := shape.Validate(); err != nil {
			return err
		}

		f := newFormatter()
		q := newEngine().Quote(p)
		out := cmd.OutOrStdout()
		switch format {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(q)
		case "yaml":
			return yaml.NewEncoder(out).Encode(q)
		case "txt":
		default:
			return fmt.Errorf("unsupported format %q", format)
		}

		if q.AdjustmentRejected {
			fmt.Fprintln(out, "Adjustment out of range, priced at base.")
		}
		fmt.Fprintf(out, "Price:     %s (was %s)\n", f.Format(q.UnitDisplayPrice), f.Format(q.BasePrice))
		fmt.Fprintf(out, "Savings:   %d%%\n", q.SavingsPercent)
		fmt.Fprintf(out, "Frequency: %s\n", plans.FrequencyText(p, q.Quantity))
		fmt.Fprintf(out, "Billing:   %s\n", plans.BillingText(p, f.Format(q.TotalBilledPrice)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.Flags().String("price", "", "One-time price in major units, e.g. 65.00")
	quoteCmd.Flags().String("percent", "", "Percentage discount, e.g. 15")
	quoteCmd.Flags().String("fixed", "", "Fixed amount off in major units, e.g. 10")
	quoteCmd.Flags().String("interval", "MONTH", "Billing interval: day, week, month or year")
	quoteCmd.Flags().Int("count", 1, "Number of intervals between deliveries")
	quoteCmd.Flags().String("name", "Subscription", "Plan name (used by the bundle heuristic)")
	quoteCmd.Flags().String("format", "txt", "Output format: txt, json or yaml")
	_ = quoteCmd.MarkFlagRequired("price")
}
