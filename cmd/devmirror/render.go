package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"devmirror/internal/daemonctl"
	"devmirror/internal/ipc"
)

const (
	checkLabelWidth = 20
	checkIndent     = "  "
)

type column struct {
	title string
	right bool
}

type severityStyle struct {
	label  string
	colors text.Colors
}

var severityStyles = map[string]severityStyle{
	"ok":    {label: "OK", colors: text.Colors{text.FgGreen}},
	"warn":  {label: "WARN", colors: text.Colors{text.FgYellow}},
	"error": {label: "ERROR", colors: text.Colors{text.FgRed}},
	"info":  {label: "INFO", colors: text.Colors{text.FgBlue}},
}

func styleFor(severity string) severityStyle {
	if style, ok := severityStyles[severity]; ok {
		return style
	}
	return severityStyles["info"]
}

func newTable(columns []column) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault
	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		align := text.AlignLeft
		if col.right {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)
	return tw
}

// renderDeviceTable lists tracked devices with their mirror state. Devices
// whose mirror is down are highlighted when colorize is set.
func renderDeviceTable(devices []ipc.Device, colorize bool) string {
	tw := newTable([]column{{title: "Device"}, {title: "Mirroring"}, {title: "PID", right: true}, {title: "Uptime", right: true}})
	mirroring := 0
	for _, dev := range devices {
		pid, since := "-", "-"
		state := yesNo(dev.Mirroring)
		if dev.Mirroring {
			mirroring++
			pid = strconv.Itoa(dev.PID)
			if !dev.Since.IsZero() {
				since = formatAge(time.Since(dev.Since))
			}
		}
		if colorize {
			if dev.Mirroring {
				state = text.FgGreen.Sprint(state)
			} else {
				state = text.FgRed.Sprint(state)
			}
		}
		tw.AppendRow(table.Row{dev.ID, state, pid, since})
	}
	tw.AppendFooter(table.Row{fmt.Sprintf("%d attached", len(devices)), fmt.Sprintf("%d mirroring", mirroring), "", ""})
	return tw.Render()
}

func renderEventTable(events []ipc.Event) string {
	tw := newTable([]column{{title: "#", right: true}, {title: "Time"}, {title: "Device"}, {title: "Event"}, {title: "Detail"}})
	for _, ev := range events {
		tw.AppendRow(table.Row{ev.Seq, ev.At.Local().Format(time.TimeOnly), ev.Device, ev.Kind, ev.Detail})
	}
	return tw.Render()
}

func renderDependencyTable(dependencies []daemonctl.DependencyStatus, colorize bool) string {
	tw := newTable([]column{{title: "Name"}, {title: "Command"}, {title: "State"}, {title: "Purpose"}})
	for _, dep := range dependencies {
		state := "available"
		if !dep.Available {
			state = dep.Detail
		}
		if colorize {
			state = styleFor(dep.Severity).colors.Sprint(state)
		}
		command := dep.Command
		if dep.Path != "" && dep.Path != dep.Command {
			command = dep.Command + " (" + dep.Path + ")"
		}
		tw.AppendRow(table.Row{dep.Name, command, state, dep.Description})
	}
	return tw.Render()
}

// renderCheck formats one "label: [SEVERITY] detail" line of devmirror status.
func renderCheck(label, severity, detail string, colorize bool) string {
	style := styleFor(severity)
	status := "[" + style.label + "]"
	if detail != "" {
		status += " " + detail
	}
	line := fmt.Sprintf("%s%-*s %s", checkIndent, checkLabelWidth, label+":", status)
	if colorize {
		return style.colors.Sprint(line)
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		return []string{text.FgBlue.Sprint(line), text.FgBlue.Sprint(rule)}
	}
	return []string{line, rule}
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatAge(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return d.String()
	}
	return d.Truncate(time.Minute).String()
}
