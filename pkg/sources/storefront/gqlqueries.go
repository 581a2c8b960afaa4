package storefront

var productSellingPlansQuery = `
query ProductSellingPlans($id: ID!) {
  product(id: $id) {
    id
    variants(first: 100) {
      edges {
        node {
          id
          price {
            amount
          }
        }
      }
    }
    sellingPlanGroups(first: 10) {
      edges {
        node {
          name
          sellingPlans(first: 20) {
            edges {
              node {
                id
                name
                description
                billingPolicy {
                  ... on SellingPlanRecurringBillingPolicy {
                    interval
                    intervalCount
                  }
                }
                pricingPolicies {
                  ... on SellingPlanFixedPricingPolicy {
                    adjustmentType
                    adjustmentValue {
                      ... on SellingPlanPricingPolicyPercentageValue {
                        percentage
                      }
                      ... on SellingPlanPricingPolicyFixedValue {
                        fixedValue {
                          amount
                        }
                      }
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}
`
