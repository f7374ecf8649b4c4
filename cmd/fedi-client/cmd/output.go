package cmd

import (
	"fmt"
	"html"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alexjbarnes/fedi-client/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"

	contentWidth = 72
)

// printer renders command results as tables or YAML.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (printer, error) {
	switch format {
	case formatTable, formatYAML:
		return printer{w: w, format: format}, nil
	default:
		return printer{}, fmt.Errorf("unsupported output format: %q (valid: table, yaml)", format)
	}
}

func (p printer) yaml(v any) error {
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}

	return enc.Close()
}

// table creates a new table with standard styling.
func (p printer) table(headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.w)
	t.SetStyle(table.StyleRounded)

	row := make(table.Row, len(headers))
	for i, h := range headers {
		row[i] = text.FgHiCyan.Sprint(h)
	}

	t.AppendHeader(row)

	return t
}

func (p printer) empty(message string) {
	fmt.Fprintln(p.w, text.FgYellow.Sprint(message))
}

func (p printer) success(format string, args ...any) {
	fmt.Fprintln(p.w, text.FgGreen.Sprint(fmt.Sprintf(format, args...)))
}

func (p printer) statuses(statuses []models.Status) error {
	if p.format == formatYAML {
		return p.yaml(statuses)
	}

	if len(statuses) == 0 {
		p.empty("No statuses found")
		return nil
	}

	t := p.table("ID", "AUTHOR", "CREATED", "CONTENT")
	for _, st := range statuses {
		t.AppendRow(table.Row{
			st.ID,
			"@" + st.Account.Acct,
			formatTime(st.CreatedAt),
			truncate(plainText(st.Content), contentWidth),
		})
	}

	t.Render()

	return nil
}

func (p printer) accounts(accounts []models.Account) error {
	if p.format == formatYAML {
		return p.yaml(accounts)
	}

	if len(accounts) == 0 {
		p.empty("No accounts found")
		return nil
	}

	t := p.table("ID", "ACCOUNT", "NAME", "FOLLOWERS", "STATUSES")
	for _, a := range accounts {
		t.AppendRow(table.Row{a.ID, "@" + a.Acct, a.DisplayName, a.FollowersCount, a.StatusesCount})
	}

	t.Render()

	return nil
}

func (p printer) account(a *models.Account) error {
	if p.format == formatYAML {
		return p.yaml(a)
	}

	t := p.table("KEY", "VALUE")
	t.AppendRows([]table.Row{
		{"id", a.ID},
		{"account", "@" + a.Acct},
		{"name", a.DisplayName},
		{"url", a.URL},
		{"followers", a.FollowersCount},
		{"following", a.FollowingCount},
		{"statuses", a.StatusesCount},
		{"created", formatTime(a.CreatedAt)},
		{"note", truncate(plainText(a.Note), contentWidth)},
	})
	t.Render()

	return nil
}

func (p printer) application(app *models.Application) error {
	if p.format == formatYAML {
		// The client secret stays out of scripted output.
		cp := *app
		cp.ClientSecret = ""

		return p.yaml(cp)
	}

	t := p.table("KEY", "VALUE")
	t.AppendRows([]table.Row{
		{"name", app.Name},
		{"website", app.Website},
		{"scope", app.Scope},
		{"vapid_key", app.VapidKey},
	})
	t.Render()

	return nil
}

func (p printer) lines(label string, items []string) error {
	if p.format == formatYAML {
		return p.yaml(map[string][]string{label: items})
	}

	if len(items) == 0 {
		p.empty("No " + label + " found")
		return nil
	}

	for i, item := range items {
		fmt.Fprintf(p.w, "%s %s\n", text.FgHiBlue.Sprintf("%2d.", i+1), item)
	}

	return nil
}

func (p printer) event(ev models.StreamEvent) error {
	if p.format == formatYAML {
		fmt.Fprintln(p.w, "---")
		return p.yaml(ev)
	}

	fmt.Fprintf(p.w, "%s %s %s\n",
		text.FgHiBlack.Sprint(time.Now().Format(time.TimeOnly)),
		text.FgHiCyan.Sprint(ev.Event),
		truncate(ev.Payload, contentWidth),
	)

	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Local().Format(time.DateTime)
}

// plainText reduces status HTML to a single line of text.
func plainText(s string) string {
	var b strings.Builder

	inTag := false

	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false

			b.WriteByte(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(html.UnescapeString(b.String())), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	r := []rune(s)

	return string(r[:n-1]) + "…"
}
