// Package review provides the document review capabilities offered to the
// reviewer agents: section extraction plus lightweight structural checks of
// the architecture and cost sections of a statement of work.
package review

import (
	"regexp"
	"strings"

	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/tool"
)

// Tool names.
const (
	ExtractSectionName       = "extract_section"
	ValidateArchitectureName = "validate_architecture"
	ValidateCostSectionName  = "validate_cost_section"
	FetchCalculatorDataName  = "fetch_calculator_data"
)

var (
	calculatorLinkRe = regexp.MustCompile(`https?://calculator\.aws[^\s)]+`)
	estimateIDRe     = regexp.MustCompile(`/estimate/([a-zA-Z0-9]+)`)
)

// ExtractSection returns the lines following the first markdown heading whose
// text contains name (case-insensitive) up to the next non-matching heading,
// trimmed. Headings are lines starting with '#'; further matching headings are
// skipped but do not end the section. It returns "" when no heading matches.
func ExtractSection(document, name string) string {
	needle := strings.ToLower(name)

	var (
		out       []string
		inSection bool
	)

	for _, line := range strings.Split(document, "\n") {
		heading := strings.HasPrefix(line, "#")
		switch {
		case heading && strings.Contains(strings.ToLower(line), needle):
			inSection = true
		case heading && inSection:
			return strings.TrimSpace(strings.Join(out, "\n"))
		case inSection:
			out = append(out, line)
		}
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// ArchitectureCheck is the result of ValidateArchitecture.
type ArchitectureCheck struct {
	HasDiagram    bool     `json:"has_diagram"`
	HasComponents bool     `json:"has_components"`
	Valid         bool     `json:"valid"`
	Issues        []string `json:"issues"`
}

// ValidateArchitecture checks that an architecture section references a
// diagram and names its components.
func ValidateArchitecture(content string) ArchitectureCheck {
	lower := strings.ToLower(content)
	c := ArchitectureCheck{
		HasDiagram:    containsAny(lower, "diagram", "architecture", "figure", "!["),
		HasComponents: containsAny(lower, "component", "service", "layer", "tier"),
		Issues:        []string{},
	}
	c.Valid = c.HasDiagram && c.HasComponents
	if !c.Valid {
		c.Issues = append(c.Issues, "Missing architecture diagram or component details")
	}
	return c
}

// CostCheck is the result of ValidateCostSection.
type CostCheck struct {
	HasCalculatorRef bool     `json:"has_calculator_ref"`
	HasEstimates     bool     `json:"has_estimates"`
	CalculatorLinks  []string `json:"calculator_links"`
	Valid            bool     `json:"valid"`
	Issues           []string `json:"issues"`
}

// ValidateCostSection checks that a cost section references a pricing
// calculator and carries concrete estimates.
func ValidateCostSection(content string) CostCheck {
	lower := strings.ToLower(content)
	c := CostCheck{
		HasCalculatorRef: containsAny(lower, "calculator", "pricing"),
		HasEstimates:     containsAny(content, "$", "€", "£") || strings.Contains(lower, "cost"),
		CalculatorLinks:  calculatorLinkRe.FindAllString(content, -1),
		Issues:           []string{},
	}
	if c.CalculatorLinks == nil {
		c.CalculatorLinks = []string{}
	}
	c.Valid = c.HasCalculatorRef && c.HasEstimates
	if !c.Valid {
		c.Issues = append(c.Issues, "Missing cost calculator reference or estimates")
	}
	return c
}

// CalculatorEstimateID extracts the estimate identifier from a pricing
// calculator share link.
func CalculatorEstimateID(url string) (string, bool) {
	m := estimateIDRe.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FetchCalculatorData describes what can be learned from a calculator link.
// The calculator requires authentication, so the estimate itself is not
// downloaded; the agent is pointed at the pricing tools instead.
func FetchCalculatorData(url string) string {
	id, ok := CalculatorEstimateID(url)
	if !ok {
		return "Invalid calculator URL format"
	}
	return "Calculator estimate ID: " + id + ". Use the pricing tools to validate services and costs."
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

type extractSectionArgs struct {
	Document    string `json:"document" description:"Full document text"`
	SectionName string `json:"section_name" description:"Heading text to look for, case-insensitive"`
}

type contentArgs struct {
	Content string `json:"content" description:"Section text to check"`
}

type calculatorArgs struct {
	CalculatorURL string `json:"calculator_url" description:"Pricing calculator share link"`
}

// NewExtractSectionTool exposes ExtractSection.
func NewExtractSectionTool() tool.Tool {
	return tool.NewFunctionToolFromStruct(
		ExtractSectionName,
		"Extract a specific section from the document by (partial) heading name.",
		extractSectionArgs{},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return ExtractSection(tool.StringArg(args, "document"), tool.StringArg(args, "section_name")), nil
		},
	)
}

// NewValidateArchitectureTool exposes ValidateArchitecture.
func NewValidateArchitectureTool() tool.Tool {
	return tool.NewFunctionToolFromStruct(
		ValidateArchitectureName,
		"Validate an architecture section for diagrams and technical component details.",
		contentArgs{},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return ValidateArchitecture(tool.StringArg(args, "content")), nil
		},
	)
}

// NewValidateCostSectionTool exposes ValidateCostSection.
func NewValidateCostSectionTool() tool.Tool {
	return tool.NewFunctionToolFromStruct(
		ValidateCostSectionName,
		"Validate a cost section for calculator references and estimates, and extract calculator links.",
		contentArgs{},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return ValidateCostSection(tool.StringArg(args, "content")), nil
		},
	)
}

// NewFetchCalculatorDataTool exposes FetchCalculatorData.
func NewFetchCalculatorDataTool() tool.Tool {
	return tool.NewFunctionToolFromStruct(
		FetchCalculatorDataName,
		"Extract the estimate identifier from a pricing calculator link.",
		calculatorArgs{},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return FetchCalculatorData(tool.StringArg(args, "calculator_url")), nil
		},
	)
}

// Tools returns every review capability.
func Tools() []tool.Tool {
	return []tool.Tool{
		NewExtractSectionTool(),
		NewValidateArchitectureTool(),
		NewValidateCostSectionTool(),
		NewFetchCalculatorDataTool(),
	}
}
