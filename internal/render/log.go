package render

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/brood-run/brood/internal/config"
	"github.com/brood-run/brood/internal/fanout"
	"github.com/brood-run/brood/internal/message"
)

// Defaults for RendererConfig fields left unset, matching
// original_source/brood/config.py's LogRendererConfig.
const (
	defaultPrefix              = "{timestamp} {tag} "
	defaultInternalPrefix      = "{timestamp} "
	defaultInternalPrefixStyle = "dim"
	timestampLayout            = "15:04:05"
)

// Log prints internal and command messages to stdout, one line per message,
// with a configurable colorized prefix (spec.md §6 renderer "log" type;
// original_source/brood/renderer.py's LogRenderer).
type Log struct {
	base
	cfg config.RendererConfig
	min message.Verbosity
}

func NewLog(messages *fanout.Fanout[message.Message], cfg config.RendererConfig) *Log {
	min := message.Info
	if v, err := message.ParseVerbosity(cfg.MinVerbosity); err == nil {
		min = v
	}
	return &Log{base: newBase(messages), cfg: cfg, min: min}
}

func (l *Log) AvailableProcessWidth(cfg config.CommandConfig) int {
	prefix, style := cfg.EffectivePrefix(l.effectivePrefix(), l.effectivePrefixStyle())
	tag := cfg.Tag
	if tag == "" {
		tag = cfg.Name
	}
	rendered := renderPrefix(prefix, style, tag, time.Now())
	width := terminalWidth() - len([]rune(rendered))
	if width < 1 {
		width = 1
	}
	return width
}

func (l *Log) effectivePrefix() string {
	if l.cfg.Prefix != "" {
		return l.cfg.Prefix
	}
	return defaultPrefix
}

func (l *Log) effectivePrefixStyle() string {
	return l.cfg.PrefixStyle
}

func (l *Log) effectiveInternalPrefix() string {
	if l.cfg.InternalPrefix != "" {
		return l.cfg.InternalPrefix
	}
	return defaultInternalPrefix
}

func (l *Log) effectiveInternalPrefixStyle() string {
	if l.cfg.InternalPrefixStyle != "" {
		return l.cfg.InternalPrefixStyle
	}
	return defaultInternalPrefixStyle
}

func (l *Log) Mount(ctx context.Context) error { return nil }
func (l *Log) Unmount()                        {}

func (l *Log) Run(ctx context.Context, drain bool) error {
	return l.base.run(ctx, drain, l.handle)
}

func (l *Log) handle(m message.Message) {
	switch v := m.(type) {
	case message.InternalMessage:
		if v.Verbosity < l.min {
			return
		}
		prefix := renderPrefix(l.effectiveInternalPrefix(), l.effectiveInternalPrefixStyle(), "", v.At)
		fmt.Fprintln(os.Stdout, prefix+v.Text())
	case message.CommandMessage:
		prefix, style := v.CommandConfig.EffectivePrefix(l.effectivePrefix(), l.effectivePrefixStyle())
		tag := v.CommandConfig.Tag
		if tag == "" {
			tag = v.CommandConfig.Name
		}
		fmt.Fprintln(os.Stdout, renderPrefix(prefix, style, tag, v.At)+v.Text())
	}
}

// renderPrefix substitutes {tag}/{timestamp} into template and applies style
// (a space-separated list of fatih/color attribute names, e.g. "bold cyan").
func renderPrefix(template, style, tag string, at time.Time) string {
	replaced := strings.NewReplacer(
		"{tag}", tag,
		"{timestamp}", at.Format(timestampLayout),
	).Replace(template)

	c := parseStyle(style)
	if c == nil {
		return replaced
	}
	return c.Sprint(replaced)
}

func parseStyle(style string) *color.Color {
	if style == "" {
		return nil
	}
	attrs := make([]color.Attribute, 0, 2)
	for _, word := range strings.Fields(style) {
		switch strings.ToLower(word) {
		case "bold":
			attrs = append(attrs, color.Bold)
		case "dim", "faint":
			attrs = append(attrs, color.Faint)
		case "underline":
			attrs = append(attrs, color.Underline)
		case "italic":
			attrs = append(attrs, color.Italic)
		case "black":
			attrs = append(attrs, color.FgBlack)
		case "red":
			attrs = append(attrs, color.FgRed)
		case "green":
			attrs = append(attrs, color.FgGreen)
		case "yellow":
			attrs = append(attrs, color.FgYellow)
		case "blue":
			attrs = append(attrs, color.FgBlue)
		case "magenta":
			attrs = append(attrs, color.FgMagenta)
		case "cyan":
			attrs = append(attrs, color.FgCyan)
		case "white":
			attrs = append(attrs, color.FgWhite)
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return color.New(attrs...)
}

func terminalWidth() int {
	if w, _, err := term.GetSize(0); err == nil && w > 0 {
		return w
	}
	return 80
}
