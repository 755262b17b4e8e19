package query

import (
	"fmt"
	"strings"

	"github.com/BaSui01/skillflow/types"
)

// 历史与上下文摘要的单项截断长度（rune）
const summaryRunes = 200

func analysisSystemPrompt(locale string) string {
	var b strings.Builder
	b.WriteString("You analyze a user query for a retrieval-augmented assistant.\n")
	b.WriteString("Resolve pronouns and references using the chat history, then reply with a single JSON object:\n")
	b.WriteString(`{"optimizedQuery": string, "rewrittenQueries": [string], "mentionedEntityIds": [string]}`)
	b.WriteString("\n- optimizedQuery: a self-contained version of the query.\n")
	b.WriteString("- rewrittenQueries: up to 3 alternative phrasings useful for search.\n")
	b.WriteString("- mentionedEntityIds: ids of the listed context items the query refers to; empty when none are specific.\n")
	if locale != "" && locale != types.DefaultLocale {
		fmt.Fprintf(&b, "Write optimizedQuery in the same language as the query (user locale %s).\n", locale)
	}
	b.WriteString("Reply with JSON only.")
	return b.String()
}

func analysisUserPrompt(q string, history []types.Message, bundle *types.Context) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("## Chat history\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, clip(m.Content))
		}
		b.WriteString("\n")
	}
	if items := bundle.Items(); len(items) > 0 {
		b.WriteString("## Context items\n")
		for _, item := range items {
			fmt.Fprintf(&b, "- id=%s kind=%s title=%q\n", item.EntityID, item.Kind, item.Title)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Query\n")
	b.WriteString(q)
	return b.String()
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= summaryRunes {
		return s
	}
	return string(r[:summaryRunes]) + "..."
}
