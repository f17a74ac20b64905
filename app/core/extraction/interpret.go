package extraction

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"auratask/app/pkg/types"
)

// Reply kinds produced by Interpret.
const (
	ReplyQuestion     = "question"
	ReplyConfirmation = "confirmation"
	ReplyMalformed    = "malformed"
)

// ApologyText is the static fallback when the model output matches no
// recognized shape. Never escalated: a bad model turn must not crash the chat.
const ApologyText = "Sorry, I had trouble understanding that. Could you rephrase your request?"

// Reply is the normalized interpretation of one raw model output.
type Reply struct {
	Kind     string
	Text     string
	TaskData *types.TaskDraft
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Interpret classifies raw model text as a clarifying question, a confirmation
// carrying a complete TaskDraft, or malformed output. The model's adherence to
// the prompt contract is unreliable, so parsing is tried in a fixed order:
//
//  1. strip fence markers, trim, parse the whole remaining text
//  2. parse only the first fenced block
//  3. no recoverable JSON: the text is a plain clarifying question
//
// JSON that is recovered but broken, a confirmation missing an essential, or a
// confirmation without its restatement text all degrade to ReplyMalformed.
func Interpret(raw string) Reply {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return malformedReply()
	}

	clean := stripFences(trimmed)
	if strings.HasPrefix(clean, "{") {
		return classifyJSON(clean)
	}

	if m := fencedBlock.FindStringSubmatch(trimmed); m != nil {
		block := strings.TrimSpace(m[1])
		if strings.HasPrefix(block, "{") {
			return classifyJSON(block)
		}
	}

	return Reply{Kind: ReplyQuestion, Text: trimmed}
}

func classifyJSON(payload string) Reply {
	if !gjson.Valid(payload) {
		return malformedReply()
	}
	root := gjson.Parse(payload)

	if root.Get("type").String() != "confirmation" {
		// Valid JSON without the contract marker. A bare text field still
		// reads as a question; anything else is unusable.
		if text := strings.TrimSpace(root.Get("text").String()); text != "" {
			return Reply{Kind: ReplyQuestion, Text: text}
		}
		return malformedReply()
	}

	td := root.Get("taskData")
	draft := types.TaskDraft{
		Title:    strings.TrimSpace(td.Get("title").String()),
		Date:     strings.TrimSpace(td.Get("date").String()),
		Time:     strings.TrimSpace(td.Get("time").String()),
		Duration: strings.TrimSpace(td.Get("duration").String()),
		Priority: td.Get("priority").Bool(),
		Notes:    strings.TrimSpace(td.Get("notes").String()),
		Project:  strings.TrimSpace(td.Get("project").String()),
	}
	if !draft.Complete() {
		return malformedReply()
	}

	// The restatement text is required by contract; a confirmation without it
	// would render a blank bubble.
	text := strings.TrimSpace(root.Get("text").String())
	if text == "" {
		return malformedReply()
	}

	return Reply{Kind: ReplyConfirmation, Text: text, TaskData: &draft}
}

func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

func malformedReply() Reply {
	return Reply{Kind: ReplyMalformed, Text: ApologyText}
}
