package config

import (
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Prompts holds the system prompt for each assistant target. Each prompt is
// read from AGENT_PROMPT_<NAME>, or from the file named by
// AGENT_PROMPT_<NAME>_PATH, and prefixed with AGENT_PROMPT_BASE when that is
// set. Literal \n sequences in env values are unescaped.
type Prompts struct {
	byTarget map[string]string
}

func LoadPrompts(targets []string) (*Prompts, error) {
	base := normalizePromptText(os.Getenv("AGENT_PROMPT_BASE"))

	out := &Prompts{byTarget: make(map[string]string, len(targets))}
	for _, target := range targets {
		key := "AGENT_PROMPT_" + promptEnvSuffix(target)

		text := normalizePromptText(os.Getenv(key))
		if text == "" {
			if path := strings.TrimSpace(os.Getenv(key + "_PATH")); path != "" {
				b, err := os.ReadFile(path)
				if err != nil {
					return nil, fmt.Errorf("read prompt file for %s: %w", target, err)
				}
				text = strings.TrimSpace(string(b))
			}
		}
		if text == "" {
			continue
		}
		if base != "" {
			text = base + "\n\n" + text
		}
		out.byTarget[target] = text
	}
	return out, nil
}

// For returns the configured prompt for a target and whether one exists.
func (p *Prompts) For(target string) (string, bool) {
	text, ok := p.byTarget[target]
	return text, ok
}

// promptEnvSuffix maps a target name to its env-var suffix. Camel-case words
// split on upper-case boundaries, with consecutive capitals kept as one word.
// typeX keeps its historical single-word form.
func promptEnvSuffix(target string) string {
	if target == "typeX" {
		return "TYPEX"
	}

	var words []string
	var cur strings.Builder
	runes := []rune(target)
	for i, r := range runes {
		if unicode.IsUpper(r) && cur.Len() > 0 {
			prevUpper := unicode.IsUpper(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if !prevUpper || nextLower {
				words = append(words, cur.String())
				cur.Reset()
			}
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return strings.ToUpper(strings.Join(words, "_"))
}

func normalizePromptText(v string) string {
	v = strings.TrimSpace(v)
	return strings.ReplaceAll(v, `\n`, "\n")
}
