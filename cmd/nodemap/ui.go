package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/signalsfoundry/nodemap/model"
)

var (
	Brand  = color.New(color.FgHiGreen, color.Bold)
	Subtle = color.New(color.FgHiBlack)
	Warn   = color.New(color.FgYellow)
	Good   = color.New(color.FgGreen)
	Bad    = color.New(color.FgRed)
)

func statusPrinter(s model.Status) *color.Color {
	switch s {
	case model.StatusRunning:
		return Good
	case model.StatusSyncing:
		return Warn
	case model.StatusError:
		return Bad
	default:
		return Subtle
	}
}

// printLegend writes one line per status with its node count.
func printLegend(w io.Writer, counts map[model.Status]int) {
	for _, s := range model.Statuses {
		fmt.Fprintf(w, "  %s %-8s %d\n", statusPrinter(s).Sprint("●"), s, counts[s])
	}
}
