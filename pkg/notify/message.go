package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

var verdictEmoji = map[string]string{
	"pause":  ":hourglass:",
	"reject": ":x:",
}

var verdictLabel = map[string]string{
	"pause":  "Agent Paused",
	"reject": "Agent Rejected",
}

func identityURL(dashboardURL, identityID string) string {
	return fmt.Sprintf("%s/identities/%s", dashboardURL, identityID)
}

// BuildVerdictMessage creates Block Kit blocks for a pause/reject verdict.
// proceed/guide verdicts never reach this: callers only notify on the two
// severe bands.
func BuildVerdictMessage(identityID, label, verdict, phase, reason string, phi float64, dashboardURL string) []goslack.Block {
	emoji := verdictEmoji[verdict]
	if emoji == "" {
		emoji = ":question:"
	}
	vlabel := verdictLabel[verdict]
	if vlabel == "" {
		vlabel = "Agent " + verdict
	}

	headerText := fmt.Sprintf("%s *%s*: `%s`", emoji, vlabel, label)
	detailText := fmt.Sprintf("phase: `%s`  phi: `%.3f`", phase, phi)
	if reason != "" {
		detailText += fmt.Sprintf("\n%s", truncate(reason))
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false), nil, nil),
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, detailText, false, false), nil, nil),
	}

	if dashboardURL != "" {
		btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Identity", false, false))
		btn.URL = identityURL(dashboardURL, identityID)
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	return blocks
}

// BuildDialecticMessage creates Block Kit blocks for a dialectic review
// outcome (resolved or failed).
func BuildDialecticMessage(sessionID, topic, outcome, summary string, dashboardURL string) []goslack.Block {
	emoji := ":handshake:"
	label := "Dialectic Resolved"
	if outcome == "failed" {
		emoji = ":warning:"
		label = "Dialectic Failed"
	}

	headerText := fmt.Sprintf("%s *%s*: `%s`", emoji, label, topic)
	blocks := []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false), nil, nil),
	}
	if summary != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncate(summary), false, false), nil, nil,
		))
	}

	if dashboardURL != "" {
		url := fmt.Sprintf("%s/dialectic/%s", dashboardURL, sessionID)
		btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Session", false, false))
		btn.URL = url
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	return blocks
}

func truncate(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
