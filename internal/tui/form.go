package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ppiankov/vulnrecon/internal/models"
)

type formField struct {
	label    string
	required bool
	input    textinput.Model
}

// detailForm collects the operator-entered record for a new group.
type detailForm struct {
	title  string
	fields []formField
	focus  int
	err    string
}

func newDetailForm(title, name string) detailForm {
	specs := []struct {
		label    string
		required bool
	}{
		{"Name", true},
		{"Risk", true},
		{"CVE", false},
		{"CVSS", false},
		{"Observation", true},
		{"Impact", true},
		{"Recommendation", true},
		{"Reference", false},
	}

	f := detailForm{title: title}
	for _, s := range specs {
		ti := textinput.New()
		ti.CharLimit = 4096
		if s.required {
			ti.Placeholder = "required"
		}
		f.fields = append(f.fields, formField{label: s.label, required: s.required, input: ti})
	}
	f.fields[0].input.SetValue(name)
	f.fields[0].input.Focus()
	return f
}

// details returns the form contents, trimmed.
func (f detailForm) details() models.Details {
	v := func(i int) string { return strings.TrimSpace(f.fields[i].input.Value()) }
	return models.Details{
		Name:           v(0),
		Risk:           v(1),
		CVE:            v(2),
		CVSS:           v(3),
		Observation:    v(4),
		Impact:         v(5),
		Recommendation: v(6),
		Reference:      v(7),
	}
}

func (f *detailForm) move(delta int) {
	f.fields[f.focus].input.Blur()
	f.focus = (f.focus + delta + len(f.fields)) % len(f.fields)
	f.fields[f.focus].input.Focus()
}

// update handles one message. submit is true when the operator confirmed a
// complete form; cancel when they backed out.
func (f detailForm) update(msg tea.Msg) (form detailForm, submit, cancel bool, cmd tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "esc":
			return f, false, true, nil
		case "tab", "down":
			f.move(1)
			return f, false, false, nil
		case "shift+tab", "up":
			f.move(-1)
			return f, false, false, nil
		case "enter", "ctrl+s":
			if k.String() == "enter" && f.focus < len(f.fields)-1 {
				f.move(1)
				return f, false, false, nil
			}
			if missing := f.details().MissingFields(); len(missing) > 0 {
				f.err = fmt.Sprintf("missing: %s", strings.Join(missing, ", "))
				return f, false, false, nil
			}
			f.err = ""
			return f, true, false, nil
		}
	}

	f.fields[f.focus].input, cmd = f.fields[f.focus].input.Update(msg)
	return f, false, false, cmd
}

func (f detailForm) view() string {
	var b strings.Builder
	b.WriteString(stylePaneTitleActive.Render(f.title))
	b.WriteString("\n")
	for i, field := range f.fields {
		cursor := "  "
		if i == f.focus {
			cursor = "> "
		}
		label := field.label
		if field.required {
			label += " *"
		}
		b.WriteString(cursor + styleFormLabel.Render(label) + field.input.View() + "\n")
	}
	if f.err != "" {
		b.WriteString(styleError.Render(f.err) + "\n")
	}
	b.WriteString("tab/enter: next  ctrl+s: save  esc: cancel")
	return b.String()
}
