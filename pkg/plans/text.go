package plans

import (
	"fmt"
	"strings"
)

// ApproxDays converts an interval to days the way the storefront labels
// deliveries: a month is 30 days and a week is 7.
func ApproxDays(p SubscriptionPlan) int {
	count := p.IntervalCount
	if count < 1 {
		count = 1
	}
	switch p.Interval {
	case Week:
		return count * 7
	case Month:
		return count * 30
	case Year:
		return count * 365
	default:
		return count
	}
}

// FrequencyText is the option title, e.g. "Delivery Every 90 Days (3 units)".
func FrequencyText(p SubscriptionPlan, quantity int) string {
	text := fmt.Sprintf("Delivery Every %d Days", ApproxDays(p))
	if quantity > 1 {
		text += fmt.Sprintf(" (%d units)", quantity)
	}
	return text
}

// BillingText describes the charge cadence under an option.
func BillingText(p SubscriptionPlan, formattedPrice string) string {
	count := p.IntervalCount
	if count < 1 {
		count = 1
	}
	unit := strings.ToLower(string(p.Interval))
	if unit == "" {
		unit = "month"
	}

	if count == 1 {
		switch unit {
		case "month":
			return "Billed monthly."
		case "week":
			return "Billed weekly."
		case "day":
			return "Billed daily."
		default:
			return "Billed " + unit + "ly."
		}
	}

	if count == 3 && p.Interval == Month {
		return formattedPrice + " billed every 90 days."
	}

	return fmt.Sprintf("%s billed every %d %ss.", formattedPrice, count, unit)
}
