// File: cmd/helpers.go
package cmd

import (
	"github.com/voyantlabs/pagepilot/api/schemas"
)

// effectSummary renders the one-line side-effect description of a finalized
// action for live logging.
func effectSummary(action schemas.RecordedAction) string {
	if action.Effects == nil {
		return ""
	}
	return action.Effects.Summary
}
