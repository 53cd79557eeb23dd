package composer

import (
	"strings"

	"github.com/kalambet/folio/internal/proxy"
)

// Compose drops every client-supplied system message and prepends the
// authoritative system prompt. The input slice is not modified.
func Compose(msgs []proxy.Message, systemPrompt string) []proxy.Message {
	out := make([]proxy.Message, 0, len(msgs)+1)
	out = append(out, proxy.Message{Role: "system", Content: systemPrompt})
	for _, m := range msgs {
		if strings.EqualFold(strings.TrimSpace(m.Role), "system") {
			continue
		}
		out = append(out, m)
	}
	return out
}
