package cli

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	bwerrors "github.com/NamanBalaji/bitwire/internal/errors"
	"github.com/NamanBalaji/bitwire/internal/repository"
	"github.com/NamanBalaji/bitwire/pkg/bencode"
)

// maxBytesShown caps how much of a binary string is printed as hex.
const maxBytesShown = 32

const indent = "  "

// RenderValue pretty-prints a bencode tree, one scalar or container
// header per line.
func RenderValue(v bencode.Value) string {
	var sb strings.Builder
	renderValue(&sb, v, 0)

	return strings.TrimRight(sb.String(), "\n")
}

func renderValue(sb *strings.Builder, v bencode.Value, depth int) {
	switch v.Kind() {
	case bencode.KindInt:
		n, _ := v.Int()
		sb.WriteString(IntStyle.Render(strconv.FormatInt(n, 10)))
		sb.WriteByte('\n')
	case bencode.KindBytes:
		b, _ := v.Bytes()
		sb.WriteString(renderBytes(b))
		sb.WriteByte('\n')
	case bencode.KindList:
		l, _ := v.List()
		sb.WriteString(KindStyle.Render(fmt.Sprintf("list (%d)", l.Len())))
		sb.WriteByte('\n')

		for i, item := range bencode.Items(l) {
			sb.WriteString(strings.Repeat(indent, depth+1))
			sb.WriteString(KeyStyle.Render(fmt.Sprintf("[%d]", i)))
			sb.WriteString(" ")
			renderValue(sb, item, depth+1)
		}
	case bencode.KindDict:
		d, _ := v.Dict()
		sb.WriteString(KindStyle.Render(fmt.Sprintf("dict (%d)", d.Len())))
		sb.WriteByte('\n')

		d.Range(func(k []byte, item bencode.Value) bool {
			sb.WriteString(strings.Repeat(indent, depth+1))
			sb.WriteString(KeyStyle.Render(renderKey(k) + ":"))
			sb.WriteString(" ")
			renderValue(sb, item, depth+1)

			return true
		})
	}
}

func renderKey(k []byte) string {
	if utf8.Valid(k) {
		return string(k)
	}

	return "0x" + hex.EncodeToString(k)
}

func renderBytes(b []byte) string {
	if utf8.Valid(b) && isPrintable(string(b)) {
		return StringStyle.Render(strconv.Quote(string(b)))
	}

	shown := b
	suffix := ""

	if len(shown) > maxBytesShown {
		shown = shown[:maxBytesShown]
		suffix = "..."
	}

	return BytesStyle.Render(fmt.Sprintf("<%d bytes> %s%s", len(b), hex.EncodeToString(shown), suffix))
}

func isPrintable(s string) bool {
	for _, r := range s {
		if !strconv.IsPrint(r) && r != '\n' && r != '\t' {
			return false
		}
	}

	return true
}

// Field is one label/value line of a record view.
type Field struct {
	Label string
	Value string
}

// RenderFields lays fields out as aligned label/value lines.
func RenderFields(fields []Field) string {
	width := 0
	for _, f := range fields {
		width = max(width, lipgloss.Width(f.Label))
	}

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		label := LabelStyle.Width(width + 1).Render(f.Label + ":")
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, label, " ", ValueStyle.Render(f.Value)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RenderPeers renders peer records as a table, most recent last.
func RenderPeers(records []*repository.PeerRecord) string {
	rows := make([][]string, 0, len(records))

	for _, r := range records {
		rows = append(rows, []string{
			r.Addr,
			r.Role.String(),
			orDash(r.Client),
			orDash(strings.Join(r.Extensions, ",")),
			shortHash(r.InfoHash.String()),
			r.ConnectedAt.Format(time.DateTime),
			status(r),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(BorderStyle).
		Headers("ADDR", "ROLE", "CLIENT", "EXTENSIONS", "INFOHASH", "CONNECTED", "STATUS").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle
			}

			return CellStyle
		}).
		String()
}

func status(r *repository.PeerRecord) string {
	if r.Open() {
		return StatusOpen.Render("open")
	}

	reason := r.CloseReason
	if reason == "" {
		reason = "closed"
	}

	if bwerrors.IsFatalCategory(r.CloseCategory) {
		return StatusFailed.Render(reason)
	}

	return StatusClosed.Render(reason)
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}

	return h[:12]
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
