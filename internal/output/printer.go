package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"

	"reinfer-cli/internal/client"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// TimeLayout is used for every timestamp column. Times are shown in UTC.
const TimeLayout = "2006-01-02 15:04:05"

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q, expected table or json", s)
	}
}

type Printer struct {
	out    io.Writer
	format Format
	color  bool
}

func NewPrinter(out io.Writer, format Format) *Printer {
	p := &Printer{out: out, format: format}
	if f, ok := out.(*os.File); ok {
		p.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return p
}

func (p *Printer) Format() Format { return p.format }

// Print writes a resource list. Values without a table layout are always
// printed as JSON lines.
func (p *Printer) Print(v any) error {
	if p.format == FormatTable {
		if t, ok := tableOf(v); ok {
			return p.writeTable(t)
		}
	}
	return WriteJSONLines(p.out, v)
}

// WriteJSONLines writes one compact JSON document per line. Slices are
// expanded, anything else is written as a single line.
func WriteJSONLines(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	items, ok := toSlice(v)
	if !ok {
		items = []any{v}
	}
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("could not serialise resource: %w", err)
		}
	}
	return nil
}

// Table writes an ad hoc table, whatever the configured format.
func (p *Printer) Table(headers []string, rows [][]string) error {
	return p.writeTable(table{headers: headers, rows: rows})
}

type table struct {
	headers []string
	rows    [][]string
}

func (p *Printer) writeTable(t table) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.headers, "\t"))
	for _, row := range t.rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	text := buf.String()
	if p.color {
		header, rest, _ := strings.Cut(text, "\n")
		text = "\x1b[1;32m" + header + "\x1b[0m\n" + rest
	}
	_, err := io.WriteString(p.out, text)
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func tableOf(v any) (table, bool) {
	switch items := v.(type) {
	case []client.Source:
		t := table{headers: []string{"Name", "ID", "Updated (UTC)", "Kind", "Title"}}
		for _, s := range items {
			t.rows = append(t.rows, []string{s.FullName().String(), s.ID, formatTime(s.UpdatedAt), string(s.Kind), s.Title})
		}
		return t, true
	case []client.Dataset:
		t := table{headers: []string{"Name", "ID", "Updated (UTC)", "Title"}}
		for _, d := range items {
			t.rows = append(t.rows, []string{d.FullName().String(), d.ID, formatTime(d.UpdatedAt), d.Title})
		}
		return t, true
	case []client.Bucket:
		t := table{headers: []string{"Name", "ID", "Created (UTC)", "Updated (UTC)", "Transform Tag"}}
		for _, b := range items {
			tag := "missing"
			if b.TransformTag != nil {
				tag = *b.TransformTag
			}
			t.rows = append(t.rows, []string{b.FullName().String(), b.ID, formatTime(b.CreatedAt), formatTime(b.UpdatedAt), tag})
		}
		return t, true
	case []client.Project:
		t := table{headers: []string{"Name", "ID", "Title"}}
		for _, p := range items {
			id := p.ID
			if id == "" {
				id = "unknown"
			}
			t.rows = append(t.rows, []string{p.Name, id, p.Title})
		}
		return t, true
	case []client.Stream:
		t := table{headers: []string{"Name", "ID", "Updated (UTC)", "Title"}}
		for _, s := range items {
			t.rows = append(t.rows, []string{s.Name, s.ID, formatTime(s.UpdatedAt), s.Title})
		}
		return t, true
	case []client.User:
		t := table{headers: []string{"Name", "Email", "ID", "Created (UTC)"}}
		for _, u := range items {
			t.rows = append(t.rows, []string{u.Username, u.Email, u.ID, formatTime(u.CreatedAt)})
		}
		return t, true
	case []client.Quota:
		t := table{headers: []string{"Kind", "Hard Limit", "Usage", "Usage %"}}
		for _, q := range items {
			pct := "-"
			if q.HardLimit > 0 {
				pct = strconv.FormatFloat(float64(q.CurrentMaxUsage)*100/float64(q.HardLimit), 'f', 1, 64)
			}
			t.rows = append(t.rows, []string{q.Kind, strconv.FormatInt(q.HardLimit, 10), strconv.FormatInt(q.CurrentMaxUsage, 10), pct})
		}
		return t, true
	case []client.Integration:
		t := table{headers: []string{"Name", "ID", "Type", "Enabled", "Updated (UTC)", "Title"}}
		for _, i := range items {
			t.rows = append(t.rows, []string{i.FullName().String(), i.ID, i.Type, strconv.FormatBool(i.Enabled), formatTime(i.UpdatedAt), i.Title})
		}
		return t, true
	case []client.Alert:
		t := table{headers: []string{"Name", "ID", "Updated (UTC)", "Title"}}
		for _, a := range items {
			t.rows = append(t.rows, []string{a.FullName().String(), a.ID, formatTime(a.UpdatedAt), a.Title})
		}
		return t, true
	case []client.KeyedSyncState:
		t := table{headers: []string{"Mailbox", "Folder", "Status", "Synced Until (UTC)", "Last Synced (UTC)"}}
		for _, k := range items {
			t.rows = append(t.rows, []string{
				k.MailboxName,
				strings.Join(k.FolderPath, "/"),
				k.Status,
				formatOptionalTime(k.SyncedUntil),
				formatOptionalTime(k.LastSyncedAt),
			})
		}
		return t, true
	case []client.PrintableAuditEvent:
		t := table{headers: []string{"Timestamp (UTC)", "Event", "Actor", "Tenant", "Datasets", "Projects"}}
		for _, e := range items {
			t.rows = append(t.rows, []string{
				formatTime(e.Timestamp),
				e.EventType,
				e.ActorEmail,
				e.ActorTenantName,
				strings.Join(e.DatasetNames, ","),
				strings.Join(e.ProjectNames, ","),
			})
		}
		return t, true
	}
	return table{}, false
}

func toSlice(v any) ([]any, bool) {
	switch items := v.(type) {
	case []client.Source:
		return anySlice(items), true
	case []client.Dataset:
		return anySlice(items), true
	case []client.Bucket:
		return anySlice(items), true
	case []client.Project:
		return anySlice(items), true
	case []client.Stream:
		return anySlice(items), true
	case []client.User:
		return anySlice(items), true
	case []client.Quota:
		return anySlice(items), true
	case []client.Integration:
		return anySlice(items), true
	case []client.Alert:
		return anySlice(items), true
	case []client.PrintableAuditEvent:
		return anySlice(items), true
	case []client.KeyedSyncState:
		return anySlice(items), true
	case []client.Email:
		return anySlice(items), true
	case []client.Comment:
		return anySlice(items), true
	case []client.AnnotatedComment:
		return anySlice(items), true
	case []any:
		return items, true
	}
	return nil, false
}

func anySlice[T any](items []T) []any {
	out := make([]any, len(items))
	for i := range items {
		out[i] = items[i]
	}
	return out
}
