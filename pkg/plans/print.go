package plans

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Row is one printable plan with its computed display values.
type Row struct {
	Plan       SubscriptionPlan
	Price      string
	Savings    int
	Quantity   int
	ProductURL string
}

// PrintRows writes one line per row to w. Each character of outputFlags
// selects a column:
//
//	i plan id, n name, f frequency, p price, s savings, q quantity, u product URL
func PrintRows(w io.Writer, rows []Row, outputFlags string, delimiter string) error {
	for _, r := range rows {
		line, err := createLine(r, outputFlags, delimiter)
		if err != nil {
			return err
		}
		if len(line) > 0 {
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

func createLine(r Row, outputFlags, delimiter string) (string, error) {
	var line string
	for _, f := range outputFlags {
		switch f {
		case 'i':
			line += r.Plan.ID + delimiter
		case 'n':
			line += r.Plan.Name + delimiter
		case 'f':
			line += FrequencyText(r.Plan, r.Quantity) + delimiter
		case 'p':
			line += r.Price + delimiter
		case 's':
			line += strconv.Itoa(r.Savings) + "%" + delimiter
		case 'q':
			line += strconv.Itoa(r.Quantity) + delimiter
		case 'u':
			line += r.ProductURL + delimiter
		default:
			return "", fmt.Errorf("invalid print flag %q", f)
		}
	}
	return strings.TrimSuffix(line, delimiter), nil
}
