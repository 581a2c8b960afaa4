package cmd

import (
	"github.com/loopwidget/planscope/pkg/plans"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/sources/static"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const devStore = "https://demo.planscope.dev"

// plans dev: built-in demo catalogue, no network
var plansDevCmd = &cobra.Command{
	Use:   "dev [handle...]",
	Short: "Resolve plans from the built-in demo catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		src := devCatalogue()
		if len(args) == 0 {
			args = []string{"akk:100:101", "tea:200"}
		}
		refs, err := productRefsForStore(cmd, devStore, args)
		if err != nil {
			return err
		}
		return runPlans(cmd, []storeGroup{{inline: src, remote: src, refs: refs}})
	},
}

func init() {
	plansCmd.AddCommand(plansDevCmd)
}

func productRefsForStore(cmd *cobra.Command, store string, args []string) ([]sources.ProductRef, error) {
	variant, _ := cmd.Flags().GetString("variant")
	refs := make([]sources.ProductRef, 0, len(args))
	for _, a := range args {
		ref, err := parseProductArg(store, a)
		if err != nil {
			return nil, err
		}
		if variant != "" {
			ref.VariantID = variant
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// devCatalogue serves "akk" through the remote query (a primary product and
// its bundle SKU) and "tea" inline.
func devCatalogue() *static.Source {
	src := static.New()
	src.ByProduct["100"] = []plans.SubscriptionPlan{{
		ID: "123", Name: "Deliver every month", Interval: plans.Month, IntervalCount: 1,
		ProductID: "100", VariantID: "10", BasePrice: 6500,
		Adjustment: plans.Percentage(decimal.NewFromInt(15)),
	}}
	src.ByProduct["101"] = []plans.SubscriptionPlan{{
		ID: "124", Name: "Deliver every 3 months", Interval: plans.Month, IntervalCount: 3,
		ProductID: "101", VariantID: "11", BasePrice: 6500,
		Adjustment: plans.FixedAmount(decimal.NewFromInt(10)),
	}}
	src.ByHandle["tea"] = []plans.SubscriptionPlan{
		{
			ID: "201", Name: "Every 2 weeks", Interval: plans.Week, IntervalCount: 2,
			ProductID: "200", VariantID: "20", BasePrice: 2400,
			Adjustment: plans.Percentage(decimal.NewFromInt(10)),
		},
		{
			ID: "202", Name: "Every month", Interval: plans.Month, IntervalCount: 1,
			ProductID: "200", VariantID: "20", BasePrice: 2400,
			Adjustment: plans.Percentage(decimal.NewFromFloat(12.5)),
		},
	}
	return src
}
