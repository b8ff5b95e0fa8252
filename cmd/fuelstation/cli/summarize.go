package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/fuelstation/backoffice/internal/daysummary"
)

// DaySummarizer builds the day report of a date.
type DaySummarizer interface {
	SummarizeDay(ctx context.Context, date time.Time) (daysummary.DaySummary, error)
}

// SummarizeOptions defines available flags for the summarize command.
type SummarizeOptions struct {
	Date       string
	Location   *time.Location
	Language   language.Tag
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// SummarizeCLI prints the day summary of a date.
type SummarizeCLI struct {
	service DaySummarizer
	now     func() time.Time
}

// NewSummarizeCLI constructs the summarize command.
func NewSummarizeCLI(service DaySummarizer) (*SummarizeCLI, error) {
	if service == nil {
		return nil, errors.New("summarize: service required")
	}
	return &SummarizeCLI{service: service, now: time.Now}, nil
}

// Run executes the command and returns the process exit code. A day whose
// cash is short after adjustments exits with 10 so scripts can flag it.
func (c *SummarizeCLI) Run(ctx context.Context, opts SummarizeOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	date, err := c.resolveDate(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "summarize: invalid date %q (expected YYYY-MM-DD, today or yesterday)\n", opts.Date)
		return 1
	}
	summary, err := c.service.SummarizeDay(ctx, date)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "summarize: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "summarize: encode json: %v\n", err)
			return 1
		}
	} else {
		tag := opts.Language
		if tag == language.Und {
			tag = language.English
		}
		renderSummaryHuman(message.NewPrinter(tag), opts.Stdout, summary)
	}
	if summary.Settlement.CashDifference.IsPositive() {
		return 10
	}
	return 0
}

func (c *SummarizeCLI) resolveDate(opts SummarizeOptions) (time.Time, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	today := c.now().In(loc)
	switch raw := strings.ToLower(strings.TrimSpace(opts.Date)); raw {
	case "", "today":
		return time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC), nil
	case "yesterday":
		y := today.AddDate(0, 0, -1)
		return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Parse(time.DateOnly, raw)
	}
}

func amount(d decimal.Decimal) number.Formatter {
	return number.Decimal(d.InexactFloat64(), number.Scale(2))
}

func volume(d decimal.Decimal) number.Formatter {
	return number.Decimal(d.InexactFloat64(), number.Scale(3))
}

func renderSummaryHuman(p *message.Printer, out io.Writer, s daysummary.DaySummary) {
	_, _ = p.Fprintf(out, "Day summary %s: %d finalized shift(s)\n", s.Date.Format(time.DateOnly), len(s.Shifts))
	for _, sh := range s.Shifts {
		_, _ = p.Fprintf(out, "  shift %d  no.%d pump %d employee %d  sale %v  shortage %v\n",
			sh.ShiftID, sh.Assignment.ShiftNo, sh.Assignment.PumpID, sh.Assignment.EmployeeID,
			amount(sh.Totals.TotalSale), amount(sh.Shortage.Overall))
	}
	_, _ = p.Fprintln(out, "Products:")
	for _, pr := range s.Products {
		_, _ = p.Fprintf(out, "  %-12s rate %v  sold %v  amount %v  book %v", pr.ProductName,
			amount(pr.Rate), volume(pr.MeterSales), amount(pr.SaleAmount), volume(pr.BookClosing))
		if pr.VariationVolume != nil {
			_, _ = p.Fprintf(out, "  dip %v  variation %v (%v)", volume(*pr.DipClosing), volume(*pr.VariationVolume), amount(*pr.VariationAmount))
		}
		_, _ = p.Fprintln(out)
	}
	st := s.Settlement
	_, _ = p.Fprintln(out, "Settlement:")
	rows := []struct {
		label string
		value decimal.Decimal
	}{
		{"liquid sale", st.LiquidSale},
		{"lube cash", st.LubeCash},
		{"lube credit", st.LubeCredit},
		{"recovery", st.Recovery},
		{"credit", st.Credit},
		{"swipe", st.Swipe},
		{"net expense", st.NetExpense},
		{"cash in hand", st.CashInHand},
		{"handed over", st.HandedOver},
		{"adjustments", st.Adjustments},
		{"cash difference", st.CashDifference},
	}
	for _, row := range rows {
		_, _ = p.Fprintf(out, "  %-16s %v\n", row.label, amount(row.value))
	}
}
