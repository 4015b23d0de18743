package ollama

import "fmt"

func buildKnowledgePrompt(topic, category string) string {
	return fmt.Sprintf(`You write one or two neutral sentences of general guidance for a customer support assistant.
Do not invent prices, dates, policies, order numbers or contact details.
Return strict JSON object with keys:
known (boolean, false when no safe generic guidance exists), answer (string).
No markdown, no extra keys.

Topic: %s
Category: %s
`, topic, category)
}
