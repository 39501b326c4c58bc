package agent

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Skill is a reusable block of expert instructions stored as markdown with
// an optional YAML front matter.
type Skill struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Body        string `yaml:"-"`
}

// LoadSkill reads a SKILL.md file.
func LoadSkill(path string) (*Skill, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from run configuration
	if err != nil {
		return nil, fmt.Errorf("load skill: %w", err)
	}
	return ParseSkill(raw)
}

// ParseSkill parses skill markdown. Front matter is delimited by "---" lines.
func ParseSkill(raw []byte) (*Skill, error) {
	s := &Skill{}

	text := strings.TrimLeft(string(bytes.TrimPrefix(raw, []byte("\ufeff"))), "\r\n")
	if rest, ok := strings.CutPrefix(text, "---"); ok {
		head, body, found := strings.Cut(rest, "\n---")
		if !found {
			return nil, fmt.Errorf("parse skill: unterminated front matter")
		}
		if err := yaml.Unmarshal([]byte(head), s); err != nil {
			return nil, fmt.Errorf("parse skill: front matter: %w", err)
		}
		text = body
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		} else {
			text = ""
		}
	}

	s.Body = strings.TrimSpace(text)
	if s.Body == "" {
		return nil, fmt.Errorf("parse skill: empty body")
	}

	return s, nil
}
