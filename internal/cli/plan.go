package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/cruciblehq/kiln/internal/engine"
	"github.com/gookit/color"
)

// Represents the 'kiln plan' command.
type PlanCmd struct {
	Target string `arg:"" help:"Recipe to plan."`

	RecipeFlags `embed:""`
	EngineFlags `embed:""`
}

// Executes the plan command.
//
// Prints the resolved build order with the version, cache status, and
// install directory of every recipe. Nothing is fetched or built.
func (c *PlanCmd) Run(ctx context.Context) error {
	catalog, err := c.load(ctx)
	if err != nil {
		return err
	}
	eng, err := engine.New(c.config())
	if err != nil {
		return err
	}

	entries, err := eng.Plan(c.Target, catalog)
	if err != nil {
		return err
	}

	var paint painter
	if isatty(os.Stdout) {
		paint = paintStatus
	}
	return printPlan(os.Stdout, entries, paint)
}

// Decorates a status cell; nil leaves cells as they are.
type painter func(status string, cached bool) string

func paintStatus(status string, cached bool) string {
	if cached {
		return color.Green.Render(status)
	}
	return color.Yellow.Render(status)
}

// Writes entries as an aligned table. Status cells are painted after
// alignment so escape sequences do not count toward column widths.
func printPlan(out io.Writer, entries []engine.PlanEntry, paint painter) error {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RECIPE\tVERSION\tSTATUS\tINSTALL DIR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Version, planStatus(e), e.InstallDir)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	lines := strings.SplitAfter(buf.String(), "\n")
	col := utf8.RuneCountInString(lines[0][:strings.Index(lines[0], "STATUS")])
	for i, line := range lines {
		if paint != nil && i > 0 && i <= len(entries) {
			line = paintCell(line, col, entries[i-1], paint)
		}
		if _, err := io.WriteString(out, line); err != nil {
			return err
		}
	}
	return nil
}

func planStatus(e engine.PlanEntry) string {
	if e.Cached {
		return "cached"
	}
	return "build"
}

// Paints the status word starting at rune offset col of line.
func paintCell(line string, col int, e engine.PlanEntry, paint painter) string {
	runes := []rune(line)
	end := col + len(planStatus(e))
	if end > len(runes) {
		return line
	}
	return string(runes[:col]) + paint(string(runes[col:end]), e.Cached) + string(runes[end:])
}
