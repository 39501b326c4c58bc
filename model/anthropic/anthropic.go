// Package anthropic implements model.Model on the Anthropic Messages API,
// either directly or through Amazon Bedrock.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/internal/util"
	"github.com/hupe1980/reviewswarm/model"
)

// BedrockHaiku is the Bedrock model id of Claude 3 Haiku.
const BedrockHaiku = "anthropic.claude-3-haiku-20240307-v1:0"

// Options configure the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	// Provider is reported by Info; defaults to "anthropic".
	Provider string
}

// Model wraps the Messages API behind model.Model.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a model talking to the Anthropic API.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var reqOpts []option.RequestOption
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(reqOpts...)

	return &Model{client: &client, opts: opts}
}

// NewBedrockModel creates a model served by Amazon Bedrock. Credentials come
// from the shared AWS configuration of the given profile; an empty profile
// uses the default chain. A profile that cannot be loaded is an error.
func NewBedrockModel(ctx context.Context, region, profile string, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	opts.Model = anthropic.Model(BedrockHaiku)
	opts.Provider = "bedrock"
	for _, fn := range optFns {
		fn(&opts)
	}

	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	if profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := anthropic.NewClient(bedrock.WithConfig(awsCfg))

	return &Model{client: &client, opts: opts}, nil
}

// NewModelFromClient creates a model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.Model("claude-3-haiku-20240307"),
		Temperature: 0.2,
		MaxTokens:   4096,
		Provider:    "anthropic",
	}
}

// Generate implements model.Model. Responses are never streamed; a streaming
// request receives a single final response.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			Messages:    toMessages(req.Contents),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
			Tools:       toTools(req.Tools),
		}
		if req.Instructions != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
		}
		for _, c := range req.Contents {
			if c.Role == "system" && c.Text() != "" {
				params.System = append(params.System, anthropic.TextBlockParam{Text: c.Text()})
			}
		}

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api: %w", err)
			return
		}

		parts := make([]core.Part, 0, len(resp.Content))
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				if t := block.AsText().Text; t != "" {
					parts = append(parts, core.TextPart{Text: t})
				}
			case "tool_use":
				use := block.AsToolUse()
				args, err := json.Marshal(use.Input)
				if err != nil {
					errCh <- fmt.Errorf("%w: tool_use %s input: %v", core.ErrMalformedResponse, use.Name, err)
					return
				}
				parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
					ID:        use.ID,
					Name:      use.Name,
					Arguments: string(args),
				}})
			}
		}

		finish := "stop"
		if resp.StopReason != "" {
			finish = string(resp.StopReason)
		}

		out <- model.Response{
			ID:           resp.ID,
			Content:      core.Content{Role: "assistant", Parts: parts},
			FinishReason: finish,
			Usage: &model.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
		}
	}()

	return out, errCh
}

// toMessages converts contents into alternating user/assistant messages.
// Tool results travel in a user message right after the assistant turn that
// requested them; adjacent messages of the same role are merged.
func toMessages(contents []core.Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	push := func(role anthropic.MessageParamRole, blocks []anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, blocks...)
			return
		}
		messages = append(messages, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, c := range contents {
		var blocks []anthropic.ContentBlockParamUnion

		switch c.Role {
		case "system":
			continue
		case "assistant":
			for _, p := range c.Parts {
				switch part := p.(type) {
				case core.TextPart:
					if part.Text != "" {
						blocks = append(blocks, anthropic.NewTextBlock(part.Text))
					}
				case core.FunctionCallPart:
					var input any = map[string]any{}
					if part.FunctionCall.Arguments != "" {
						_ = json.Unmarshal([]byte(part.FunctionCall.Arguments), &input)
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(part.FunctionCall.ID, input, part.FunctionCall.Name))
				}
			}
			push(anthropic.MessageParamRoleAssistant, blocks)
		case "tool":
			for _, p := range c.Parts {
				if fr, ok := p.(core.FunctionResponsePart); ok {
					r := fr.FunctionResponse
					if r.Error != "" {
						blocks = append(blocks, anthropic.NewToolResultBlock(r.ID, r.Error, true))
						continue
					}
					blocks = append(blocks, anthropic.NewToolResultBlock(r.ID, fmt.Sprintf("%v", r.Response), false))
				}
			}
			push(anthropic.MessageParamRoleUser, blocks)
		default:
			if t := c.Text(); t != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t))
			}
			push(anthropic.MessageParamRoleUser, blocks)
		}
	}

	return messages
}

func toTools(defs []model.ToolDefinition) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if props, ok := def.Function.Parameters["properties"]; ok {
			schema.Properties = props
		}
		schema.Required = util.Required(def.Function.Parameters)

		t := anthropic.ToolUnionParamOfTool(schema, def.Function.Name)
		if t.OfTool != nil && def.Function.Description != "" {
			t.OfTool.Description = anthropic.String(def.Function.Description)
		}
		tools = append(tools, t)
	}

	return tools
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: m.opts.Provider, SupportsTools: true}
}
