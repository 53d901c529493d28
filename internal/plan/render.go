package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by Render.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

type view struct {
	Archive     string   `json:"archive" yaml:"archive"`
	Source      string   `json:"source" yaml:"source"`
	RemotePath  string   `json:"remote_path" yaml:"remote_path"`
	LocalPath   string   `json:"local_path" yaml:"local_path"`
	RestoreRoot string   `json:"restore_root" yaml:"restore_root"`
	SafetyDir   string   `json:"safety_dir" yaml:"safety_dir"`
	Items       []string `json:"items" yaml:"items"`
	Actions     []Action `json:"actions" yaml:"actions"`
}

func (p *Plan) view() view {
	return view{
		Archive:     p.Descriptor.Name,
		Source:      string(p.Descriptor.Source),
		RemotePath:  p.Descriptor.RemotePath,
		LocalPath:   p.Descriptor.LocalPath,
		RestoreRoot: p.RestoreRoot,
		SafetyDir:   p.SafetyDir,
		Items:       append([]string(nil), p.Items...),
		Actions:     append([]Action(nil), p.Actions...),
	}
}

// Render writes p to w in format (text when empty).
func Render(w io.Writer, p *Plan, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return renderText(w, p)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p.view())
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(p.view()); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func renderText(w io.Writer, p *Plan) error {
	title := cases.Title(language.English)
	var b strings.Builder
	fmt.Fprintf(&b, "Restore plan\n")
	fmt.Fprintf(&b, "  Archive:      %s (%s)\n", p.Descriptor.Name, p.Descriptor.Source)
	fmt.Fprintf(&b, "  Remote:       %s\n", p.Descriptor.RemotePath)
	fmt.Fprintf(&b, "  Download to:  %s\n", p.Descriptor.LocalPath)
	fmt.Fprintf(&b, "  Restore root: %s\n", p.RestoreRoot)
	fmt.Fprintf(&b, "\nRestore items (%d):\n", len(p.Items))
	for _, item := range p.Items {
		fmt.Fprintf(&b, "  - %s\n", item)
	}
	fmt.Fprintf(&b, "\nActions:\n")
	for i, a := range p.Actions {
		suffix := ""
		if a.Conditional {
			suffix = " (if present)"
		}
		fmt.Fprintf(&b, "  %2d. %-13s %s%s\n", i+1, title.String(string(a.Kind)), a.Description, suffix)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
