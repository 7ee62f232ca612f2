package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"aeroport/internal/airline"
	"aeroport/internal/config"
	"aeroport/internal/model"
)

const (
	statusEnabled  = "enabled"
	statusDisabled = "disabled"
)

func enabledLabel(on bool) string {
	if on {
		return statusEnabled
	}
	return statusDisabled
}

// FormatAirlines formats the registered airlines with their origins.
func FormatAirlines(reg *airline.Registry, settings *config.Settings) string {
	airlines := reg.Airlines()
	if len(airlines) == 0 {
		return "No airlines registered."
	}
	var b strings.Builder
	b.WriteString("Airlines:\n")
	for _, a := range airlines {
		as := settings.Airlines[a.Name]
		fmt.Fprintf(&b, "\n%s (%s) [%s]\n", a.Name, a.Title, enabledLabel(as.Enabled))
		for _, o := range a.Origins() {
			fmt.Fprintf(&b, "   %s: %s\n", o.Name, o.Title)
		}
	}
	return b.String()
}

// FormatOrigins formats one airline's origins with destination and schedule.
func FormatOrigins(a *airline.Airline, settings *config.Settings) string {
	as := settings.Airlines[a.Name]
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) [%s]\n", a.Name, a.Title, enabledLabel(as.Enabled))
	for _, o := range a.Origins() {
		on := as.Enabled && as.Origins[o.Name].IsEnabled()
		fmt.Fprintf(&b, "\n%s: %s [%s]\n", o.Name, o.Title, enabledLabel(on))
		fmt.Fprintf(&b, "   destination: %s\n", settings.DestinationFor(a.Name, "", o.DefaultDestination))
		for _, e := range as.Schedule[o.Name] {
			fmt.Fprintf(&b, "   schedule: %s\n", e.Crontab)
		}
	}
	return b.String()
}

// FormatFlightList formats flights one per line in the given order.
func FormatFlightList(title string, flights []model.Flight, now time.Time) string {
	if len(flights) == 0 {
		return "No flights."
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for _, f := range flights {
		fmt.Fprintf(&b, "\n%s %s/%s [%s] %s items, %s\n",
			f.UUID, f.Airline, f.Origin, statusLabel(f.Status),
			humanize.Comma(f.NumProcessed), startedLabel(f, now))
	}
	return b.String()
}

// FormatFlight formats the details of a single flight.
func FormatFlight(f *model.Flight, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Flight %s\n", f.UUID)
	fmt.Fprintf(&b, "Route: %s/%s\n", f.Airline, f.Origin)
	fmt.Fprintf(&b, "Status: %s\n", statusLabel(f.Status))
	fmt.Fprintf(&b, "Processed: %s items\n", humanize.Comma(f.NumProcessed))
	if f.StartedAt != nil {
		fmt.Fprintf(&b, "Started: %s (%s)\n", f.StartedAt.UTC().Format("2006-01-02 15:04 UTC"), startedLabel(*f, now))
	}
	if f.StartedAt != nil && f.FinishedAt != nil {
		fmt.Fprintf(&b, "Duration: %s\n", f.FinishedAt.Sub(*f.StartedAt).Round(time.Second))
	}
	return b.String()
}

func startedLabel(f model.Flight, now time.Time) string {
	if f.StartedAt == nil {
		return "not started"
	}
	return "started " + humanize.RelTime(*f.StartedAt, now, "ago", "from now")
}

func statusLabel(s model.FlightStatus) string {
	switch s {
	case model.FlightInAir:
		return "in the air"
	case model.FlightLanded:
		return "landed"
	default:
		return "on the ground"
	}
}
