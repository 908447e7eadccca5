// File: internal/agent/context.go
package agent

import (
	"fmt"
	"strings"

	"github.com/voyantlabs/pagepilot/api/schemas"
)

// FormatPageContext renders a page snapshot as the compact plain-text block
// folded into the conversation. Plain text keeps the token cost predictable
// compared to raw JSON.
func FormatPageContext(pc *schemas.PageContext) string {
	var b strings.Builder

	b.WriteString("CURRENT PAGE\n")
	fmt.Fprintf(&b, "URL: %s\n", pc.Metadata.URL)
	if pc.Metadata.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", pc.Metadata.Title)
	}
	if pc.Metadata.ReadyState != "" {
		fmt.Fprintf(&b, "Ready state: %s\n", pc.Metadata.ReadyState)
	}

	if len(pc.InteractiveElements) > 0 {
		fmt.Fprintf(&b, "\nINTERACTIVE ELEMENTS (%d)\n", len(pc.InteractiveElements))
		for _, el := range pc.InteractiveElements {
			fmt.Fprintf(&b, "- %s", el.Selector)
			var attrs []string
			if el.Type != "" {
				attrs = append(attrs, "type="+el.Type)
			}
			if el.Name != "" {
				attrs = append(attrs, "name="+el.Name)
			}
			if el.Role != "" {
				attrs = append(attrs, "role="+el.Role)
			}
			if el.AriaLabel != "" {
				attrs = append(attrs, "aria-label="+el.AriaLabel)
			}
			if len(attrs) > 0 {
				fmt.Fprintf(&b, " [%s]", strings.Join(attrs, " "))
			}
			if el.Text != "" {
				fmt.Fprintf(&b, " %q", el.Text)
			}
			b.WriteString("\n")
		}
	}

	if len(pc.ConsoleLogs) > 0 {
		fmt.Fprintf(&b, "\nCONSOLE (%d)\n", len(pc.ConsoleLogs))
		for _, entry := range pc.ConsoleLogs {
			fmt.Fprintf(&b, "- [%s] %s\n", entry.Level, entry.Text)
		}
	}

	if len(pc.NetworkActivity) > 0 {
		fmt.Fprintf(&b, "\nNETWORK (%d)\n", len(pc.NetworkActivity))
		for _, entry := range pc.NetworkActivity {
			fmt.Fprintf(&b, "- %s %s\n", entry.Method, entry.URL)
		}
	}

	return b.String()
}

// FormatRecordingContext renders a recorded demonstration as numbered,
// human-readable steps. The agent treats the recording as a worked example of
// the workflow, not a script to replay verbatim.
func FormatRecordingContext(session *schemas.RecordingSession) string {
	var b strings.Builder

	fmt.Fprintf(&b, "RECORDED DEMONSTRATION: %s\n", session.Name)
	if session.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", session.Description)
	}
	if session.URL != "" {
		fmt.Fprintf(&b, "Starting URL: %s\n", session.URL)
	}
	fmt.Fprintf(&b, "Steps (%d):\n", len(session.Actions))

	for i, action := range session.Actions {
		fmt.Fprintf(&b, "%d. %s", i+1, describeAction(action))
		if action.Effects != nil && action.Effects.Summary != "" {
			fmt.Fprintf(&b, " -> %s", action.Effects.Summary)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// describeAction renders one recorded action as a single sentence.
func describeAction(action schemas.RecordedAction) string {
	target := describeTarget(action.Target)
	switch action.Type {
	case schemas.ActionClick:
		return fmt.Sprintf("Click %s", target)
	case schemas.ActionInput:
		return fmt.Sprintf("Type %q into %s", action.Value.Text, target)
	case schemas.ActionCheckbox:
		return fmt.Sprintf("Set checkbox %s to %t", target, action.Value.Checked)
	case schemas.ActionRadio:
		return fmt.Sprintf("Select radio %s", target)
	case schemas.ActionSelect:
		return fmt.Sprintf("Select option %q in %s", action.Value.Option, target)
	case schemas.ActionSubmit:
		return fmt.Sprintf("Submit form %s", target)
	case schemas.ActionKeypress:
		if action.Metadata.Shortcut != "" {
			return fmt.Sprintf("Press %s", action.Metadata.Shortcut)
		}
		return fmt.Sprintf("Press %s", action.Value.Key)
	case schemas.ActionNavigate:
		return fmt.Sprintf("Navigate to %s", action.Value.URL)
	case schemas.ActionTabSwitch:
		return fmt.Sprintf("Switch to tab %d (%s)", action.TabID, action.TabURL)
	case schemas.ActionFileUpload:
		return fmt.Sprintf("Upload %d file(s) to %s", len(action.Value.Files), target)
	default:
		return fmt.Sprintf("%s on %s", action.Type, target)
	}
}

func describeTarget(target *schemas.ElementTarget) string {
	if target == nil {
		return "the page"
	}
	if len(target.Selectors) > 0 {
		return target.Selectors[0].Selector
	}
	if target.Text != "" {
		return fmt.Sprintf("%s %q", target.TagName, target.Text)
	}
	if target.AriaLabel != "" {
		return fmt.Sprintf("%s [aria-label=%s]", target.TagName, target.AriaLabel)
	}
	if target.TagName != "" {
		return target.TagName
	}
	return "element"
}
