// Package composer renders the assistant's system prompt from portfolio
// content and assembles the message list sent upstream.
package composer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/folio/internal/content"
	"github.com/kalambet/folio/internal/cvtext"
)

// MaxPromptChars bounds the synthesized prompt, closing instruction included.
const MaxPromptChars = 60000

// NotAvailable replaces any empty list-valued field.
const NotAvailable = "[Not available]"

const closingInstruction = `## How to respond
Answer questions about this person's background, work and projects in a friendly, professional tone. Keep answers concise and grounded in the information above. If something is not covered here, say so and suggest reaching out directly instead of guessing.`

// FallbackPrompt is used whenever the prompt cannot be synthesized from
// content. It must stand on its own.
const FallbackPrompt = `You are the AI assistant on a personal portfolio website. You help visitors learn about the site owner's professional background, skills and projects.

Detailed portfolio information is temporarily unavailable. Be honest that you cannot see the full details right now, answer general questions politely, and invite visitors to get in touch through the contact section of the website for anything specific.`

// Synthesize renders the system prompt in a fixed section order. Empty lists
// render NotAvailable and sentinel CV text is left out.
func Synthesize(p content.Profile, exps []content.Experience, projects []content.Project, cvText string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are the AI assistant on %s's portfolio website. You answer visitors' questions about %s on their behalf.\n\n", p.Name, p.Name)

	sb.WriteString("## About\n")
	fmt.Fprintf(&sb, "Name: %s\n", p.Name)
	if p.Tagline != "" {
		fmt.Fprintf(&sb, "Tagline: %s\n", p.Tagline)
	}
	sb.WriteString("Bio: " + orNotAvailable(p.Bio) + "\n\n")

	sb.WriteString("## Contact\n")
	sb.WriteString(contactLine(p) + "\n\n")

	sb.WriteString("## Current role\n")
	sb.WriteString(currentRole(p) + "\n\n")

	sb.WriteString("## Skills\n")
	sb.WriteString(joinOrNotAvailable(p.Skills) + "\n\n")

	sb.WriteString("## Work experience\n")
	if len(exps) == 0 {
		sb.WriteString(NotAvailable + "\n")
	}
	for _, e := range exps {
		fmt.Fprintf(&sb, "- %s at %s", orNotAvailable(e.Role), orNotAvailable(e.Company))
		if e.Period != "" {
			fmt.Fprintf(&sb, " (%s)", e.Period)
		}
		sb.WriteString("\n")
		if e.Description != "" {
			sb.WriteString(indent(e.Description) + "\n")
		}
	}
	sb.WriteString("\n")

	work := content.OfKind(projects, content.KindWork)
	sb.WriteString("## Featured projects\n")
	if len(work) == 0 {
		sb.WriteString(NotAvailable + "\n")
	}
	for _, pr := range work {
		sb.WriteString(projectHeader(pr))
		fmt.Fprintf(&sb, "  Technologies: %s\n", joinOrNotAvailable(pr.Technologies))
		var highlights []string
		if pr.Work != nil {
			highlights = pr.Work.Highlights
		}
		fmt.Fprintf(&sb, "  Highlights: %s\n", joinOrNotAvailable(highlights))
	}
	sb.WriteString("\n")

	personal := content.OfKind(projects, content.KindPersonal)
	sb.WriteString("## Personal projects\n")
	if len(personal) == 0 {
		sb.WriteString(NotAvailable + "\n")
	}
	for _, pr := range personal {
		sb.WriteString(projectHeader(pr))
		fmt.Fprintf(&sb, "  Technologies: %s\n", joinOrNotAvailable(pr.Technologies))
	}
	sb.WriteString("\n")

	cvText = strings.TrimSpace(cvText)
	if cvText != "" && !cvtext.IsSentinel(cvText) {
		sb.WriteString("## CV details\n")
		sb.WriteString(cvText + "\n\n")
	}

	return bound(sb.String(), closingInstruction, MaxPromptChars)
}

// bound cuts body so that body plus closing fits in max characters.
func bound(body, closing string, max int) string {
	limit := max - utf8.RuneCountInString(closing)
	if utf8.RuneCountInString(body) > limit {
		marker := "\n" + cvtext.TruncationMarker + "\n\n"
		keep := limit - utf8.RuneCountInString(marker)
		body = string([]rune(body)[:keep]) + marker
	}
	return body + closing
}

func contactLine(p content.Profile) string {
	var parts []string
	add := func(label, v string) {
		if v != "" {
			parts = append(parts, label+": "+v)
		}
	}
	add("Email", p.Email)
	add("Website", p.Website)
	add("LinkedIn", p.LinkedIn)
	add("GitHub", p.GitHub)
	if len(parts) == 0 {
		return NotAvailable
	}
	return strings.Join(parts, " | ")
}

func currentRole(p content.Profile) string {
	switch {
	case p.Title != "" && p.Company != "":
		return p.Title + " at " + p.Company
	case p.Title != "":
		return p.Title
	case p.Company != "":
		return p.Company
	}
	return NotAvailable
}

func projectHeader(pr content.Project) string {
	line := "- " + orNotAvailable(pr.Title)
	if pr.Work != nil {
		var meta []string
		for _, v := range []string{pr.Work.Role, pr.Work.Company, pr.Work.Year} {
			if v != "" {
				meta = append(meta, v)
			}
		}
		if len(meta) > 0 {
			line += " (" + strings.Join(meta, ", ") + ")"
		}
	}
	if pr.Description != "" {
		line += ": " + strings.ReplaceAll(pr.Description, "\n\n", " ")
	}
	return line + "\n"
}

func joinOrNotAvailable(items []string) string {
	var kept []string
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return NotAvailable
	}
	return strings.Join(kept, ", ")
}

func orNotAvailable(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return s
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
