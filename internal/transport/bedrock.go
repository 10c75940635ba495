package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/haasonsaas/claudekit/internal/apierror"
	"github.com/haasonsaas/claudekit/pkg/models"
)

const bedrockMessagesPath = "/v1/messages"

// BedrockConfig configures the Gateway-A adapter. Credentials are
// resolved via the AWS SDK's default chain unless AccessKeyID is set,
// grounded on internal/agent/providers/bedrock.go's NewBedrockProvider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	DefaultVersionSuffix string // appended when a bare model id carries no version, e.g. "-v1:0"
}

var bedrockVersionSuffix = regexp.MustCompile(`-v\d+:\d+$`)

// Bedrock is the Gateway-A adapter from spec.md §4.4: it translates a
// MessageRequest into Bedrock's Converse/ConverseStream calls and
// re-renders the result as Anthropic wire format, so the resource layer
// (C5) and streaming parser (C6) stay provider-agnostic. Only the
// messages endpoint is supported; any other path fails with invalid_url.
type Bedrock struct {
	client       *bedrockruntime.Client
	region       string
	defaultModel string
	versionSuffix string
}

// NewBedrock resolves AWS credentials and returns a ready Gateway-A adapter.
func NewBedrock(ctx context.Context, cfg BedrockConfig) (*Bedrock, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-3-5-sonnet-20241022"
	}
	if cfg.DefaultVersionSuffix == "" {
		cfg.DefaultVersionSuffix = "-v1:0"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apierror.New(apierror.KindMissingConfig, "bedrock: failed to load AWS config: "+err.Error())
	}

	return &Bedrock{
		client:        bedrockruntime.NewFromConfig(awsCfg),
		region:        cfg.Region,
		defaultModel:  cfg.DefaultModel,
		versionSuffix: cfg.DefaultVersionSuffix,
	}, nil
}

func (b *Bedrock) Name() string       { return "bedrock" }
func (b *Bedrock) SupportsBeta() bool { return false }
func (b *Bedrock) BaseURL() string    { return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", b.region) }
func (b *Bedrock) Unwrap() any        { return b }

func (b *Bedrock) NewRequest(method, path string) *RequestBuilder {
	return NewRequestBuilder(method, path)
}

// normalizeModelID implements spec.md §4.4's model-id normalization: a
// vendor prefix is prepended if absent, and a default version suffix is
// appended if the id carries none. The donor never does this — bedrock.go
// always takes a fully-qualified Bedrock model id as input.
func (b *Bedrock) normalizeModelID(model string) string {
	if model == "" {
		model = b.defaultModel
	}
	if !strings.Contains(model, ".") {
		model = "anthropic." + model
	}
	if !bedrockVersionSuffix.MatchString(model) {
		model += b.versionSuffix
	}
	return model
}

func (b *Bedrock) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	req, err := b.decodeRequest(path, body)
	if err != nil {
		return nil, err
	}

	converseIn, err := b.toConverseInput(req)
	if err != nil {
		return nil, err
	}

	out, err := b.client.Converse(ctx, converseIn)
	if err != nil {
		return nil, wrapBedrockErr(err, req.Model)
	}

	msg, err := fromConverseOutput(out, b.normalizeModelID(req.Model))
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindResponseValidation, err)
	}
	return &Response{Status: http.StatusOK, Header: http.Header{}, Body: data}, nil
}

func (b *Bedrock) DoStreaming(ctx context.Context, method, path string, body any) (*StreamResponse, error) {
	req, err := b.decodeRequest(path, body)
	if err != nil {
		return nil, err
	}

	converseIn, err := b.toConverseStreamInput(req)
	if err != nil {
		return nil, err
	}

	out, err := b.client.ConverseStream(ctx, converseIn)
	if err != nil {
		return nil, wrapBedrockErr(err, req.Model)
	}

	pr, pw := io.Pipe()
	go translateBedrockStream(out, pw, b.normalizeModelID(req.Model))
	return &StreamResponse{Status: http.StatusOK, Header: http.Header{}, Body: pr}, nil
}

func (b *Bedrock) decodeRequest(path string, body any) (*models.MessageRequest, error) {
	if strings.TrimRight(path, "/") != bedrockMessagesPath {
		return nil, apierror.New(apierror.KindInvalidURL, "bedrock gateway only supports "+bedrockMessagesPath)
	}
	switch v := body.(type) {
	case *models.MessageRequest:
		return v, nil
	case models.MessageRequest:
		return &v, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindInvalidRequest, err)
		}
		var req models.MessageRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, apierror.Wrap(apierror.KindInvalidRequest, err)
		}
		return &req, nil
	}
}

func (b *Bedrock) toConverseInput(req *models.MessageRequest) (*bedrockruntime.ConverseInput, error) {
	base, err := b.toCommonConverse(req)
	if err != nil {
		return nil, err
	}
	return &bedrockruntime.ConverseInput{
		ModelId:         awssdk.String(b.normalizeModelID(req.Model)),
		Messages:        base.messages,
		System:          base.system,
		InferenceConfig: base.inference,
		ToolConfig:      base.tools,
	}, nil
}

func (b *Bedrock) toConverseStreamInput(req *models.MessageRequest) (*bedrockruntime.ConverseStreamInput, error) {
	base, err := b.toCommonConverse(req)
	if err != nil {
		return nil, err
	}
	return &bedrockruntime.ConverseStreamInput{
		ModelId:         awssdk.String(b.normalizeModelID(req.Model)),
		Messages:        base.messages,
		System:          base.system,
		InferenceConfig: base.inference,
		ToolConfig:      base.tools,
	}, nil
}

type commonConverse struct {
	messages  []bedrocktypes.Message
	system    []bedrocktypes.SystemContentBlock
	inference *bedrocktypes.InferenceConfiguration
	tools     *bedrocktypes.ToolConfiguration
}

func (b *Bedrock) toCommonConverse(req *models.MessageRequest) (*commonConverse, error) {
	messages, err := convertMessagesToBedrock(req.Messages)
	if err != nil {
		return nil, err
	}

	out := &commonConverse{messages: messages}

	if req.System != "" {
		out.system = append(out.system, &bedrocktypes.SystemContentBlockMemberText{Value: req.System})
	}
	for _, sys := range req.SystemBlocks {
		out.system = append(out.system, &bedrocktypes.SystemContentBlockMemberText{Value: sys.Text})
	}

	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		if maxTokens > 1<<20 {
			maxTokens = 1 << 20
		}
		// #nosec G115 -- bounded above
		out.inference = &bedrocktypes.InferenceConfiguration{MaxTokens: awssdk.Int32(int32(maxTokens))}
	}

	if len(req.Tools) > 0 {
		out.tools = convertToolsToBedrock(req.Tools)
	}

	return out, nil
}

func convertToolsToBedrock(tools []models.ToolDescriptor) *bedrocktypes.ToolConfiguration {
	bedrockTools := make([]bedrocktypes.Tool, len(tools))
	for i, tool := range tools {
		var schema any
		if len(tool.InputSchema) > 0 {
			if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
		} else {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		bedrockTools[i] = &bedrocktypes.ToolMemberToolSpec{
			Value: bedrocktypes.ToolSpecification{
				Name:        awssdk.String(tool.Name),
				Description: awssdk.String(tool.Description),
				InputSchema: &bedrocktypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		}
	}
	return &bedrocktypes.ToolConfiguration{Tools: bedrockTools}
}

func convertMessagesToBedrock(messages []models.RequestMessage) ([]bedrocktypes.Message, error) {
	result := make([]bedrocktypes.Message, 0, len(messages))
	for _, msg := range messages {
		var content []bedrocktypes.ContentBlock
		for _, block := range msg.Content {
			switch block.Type {
			case models.ContentText:
				content = append(content, &bedrocktypes.ContentBlockMemberText{Value: block.Text})
			case models.ContentToolResult:
				text, _ := block.Content.(string)
				content = append(content, &bedrocktypes.ContentBlockMemberToolResult{
					Value: bedrocktypes.ToolResultBlock{
						ToolUseId: awssdk.String(block.ToolUseID),
						Content:   []bedrocktypes.ToolResultContentBlock{&bedrocktypes.ToolResultContentBlockMemberText{Value: text}},
						Status:    toolResultStatus(block.IsError),
					},
				})
			case models.ContentToolUse:
				var input any
				if len(block.Input) > 0 {
					if err := json.Unmarshal(block.Input, &input); err != nil {
						return nil, apierror.Wrap(apierror.KindInvalidRequest, err)
					}
				}
				content = append(content, &bedrocktypes.ContentBlockMemberToolUse{
					Value: bedrocktypes.ToolUseBlock{
						ToolUseId: awssdk.String(block.ID),
						Name:      awssdk.String(block.Name),
						Input:     document.NewLazyDocument(input),
					},
				})
			}
		}
		if len(content) == 0 {
			continue
		}
		role := bedrocktypes.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = bedrocktypes.ConversationRoleAssistant
		}
		result = append(result, bedrocktypes.Message{Role: role, Content: content})
	}
	return result, nil
}

func toolResultStatus(isError bool) bedrocktypes.ToolResultStatus {
	if isError {
		return bedrocktypes.ToolResultStatusError
	}
	return bedrocktypes.ToolResultStatusSuccess
}

func fromConverseOutput(out *bedrockruntime.ConverseOutput, model string) (*models.Message, error) {
	msg := &models.Message{Model: model, Role: models.RoleAssistant}

	if out.Usage != nil {
		msg.Usage = models.Usage{
			InputTokens:  int(awssdk.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(awssdk.ToInt32(out.Usage.OutputTokens)),
		}
	}
	if out.StopReason != "" {
		msg.StopReason = bedrockStopReason(out.StopReason)
	}

	converseMsg, ok := out.Output.(*bedrocktypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, apierror.New(apierror.KindResponseValidation, "bedrock: unexpected converse output shape")
	}
	for _, block := range converseMsg.Value.Content {
		switch v := block.(type) {
		case *bedrocktypes.ContentBlockMemberText:
			msg.Content = append(msg.Content, models.NewTextBlock(v.Value))
		case *bedrocktypes.ContentBlockMemberToolUse:
			inputJSON, err := json.Marshal(bedrockDocumentToAny(v.Value.Input))
			if err != nil {
				return nil, apierror.Wrap(apierror.KindResponseValidation, err)
			}
			msg.Content = append(msg.Content, models.NewToolUseBlock(
				awssdk.ToString(v.Value.ToolUseId), awssdk.ToString(v.Value.Name), inputJSON,
			))
		}
	}
	return msg, nil
}

func bedrockDocumentToAny(doc bedrocktypes.Document) any {
	if doc == nil {
		return map[string]any{}
	}
	var v any
	_ = doc.UnmarshalSmithyDocument(&v)
	return v
}

func bedrockStopReason(r bedrocktypes.StopReason) models.StopReason {
	switch r {
	case bedrocktypes.StopReasonToolUse:
		return models.StopToolUse
	case bedrocktypes.StopReasonMaxTokens:
		return models.StopMaxTokens
	case bedrocktypes.StopReasonStopSequence:
		return models.StopSequence
	default:
		return models.StopEndTurn
	}
}

// translateBedrockStream re-renders Bedrock's ConverseStream events as
// Anthropic-shaped SSE bytes, so internal/sse.Reader can consume this
// adapter's output identically to Direct's. Grounded on bedrock.go's
// processStream event switch.
func translateBedrockStream(out *bedrockruntime.ConverseStreamOutput, w *io.PipeWriter, model string) {
	es := out.GetStream()
	defer es.Close()

	writeEvent := func(name string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
		return err
	}

	msg := &models.Message{Model: model, Role: models.RoleAssistant}
	if err := writeEvent("message_start", map[string]any{"message": msg}); err != nil {
		w.CloseWithError(err)
		return
	}

	var inputBuilder strings.Builder
	var toolIndex int

	for event := range es.Events() {
		switch ev := event.(type) {
		case *bedrocktypes.ConverseStreamOutputMemberContentBlockStart:
			if toolUse, ok := ev.Value.Start.(*bedrocktypes.ContentBlockStartMemberToolUse); ok {
				inputBuilder.Reset()
				block := models.NewToolUseBlock(awssdk.ToString(toolUse.Value.ToolUseId), awssdk.ToString(toolUse.Value.Name), nil)
				if err := writeEvent("content_block_start", map[string]any{"index": ev.Value.ContentBlockIndex, "content_block": block}); err != nil {
					w.CloseWithError(err)
					return
				}
			}
		case *bedrocktypes.ConverseStreamOutputMemberContentBlockDelta:
			switch delta := ev.Value.Delta.(type) {
			case *bedrocktypes.ContentBlockDeltaMemberText:
				if err := writeEvent("content_block_delta", map[string]any{
					"index": ev.Value.ContentBlockIndex,
					"delta": map[string]any{"type": "text_delta", "text": delta.Value},
				}); err != nil {
					w.CloseWithError(err)
					return
				}
			case *bedrocktypes.ContentBlockDeltaMemberToolUse:
				if delta.Value.Input != nil {
					inputBuilder.WriteString(*delta.Value.Input)
					if err := writeEvent("content_block_delta", map[string]any{
						"index": ev.Value.ContentBlockIndex,
						"delta": map[string]any{"type": "input_json_delta", "partial_json": *delta.Value.Input},
					}); err != nil {
						w.CloseWithError(err)
						return
					}
				}
			}
		case *bedrocktypes.ConverseStreamOutputMemberContentBlockStop:
			if err := writeEvent("content_block_stop", map[string]any{"index": ev.Value.ContentBlockIndex}); err != nil {
				w.CloseWithError(err)
				return
			}
			toolIndex++
		case *bedrocktypes.ConverseStreamOutputMemberMetadata:
			usage := map[string]any{}
			if ev.Value.Usage != nil {
				usage["input_tokens"] = awssdk.ToInt32(ev.Value.Usage.InputTokens)
				usage["output_tokens"] = awssdk.ToInt32(ev.Value.Usage.OutputTokens)
			}
			if err := writeEvent("message_delta", map[string]any{"delta": map[string]any{}, "usage": usage}); err != nil {
				w.CloseWithError(err)
				return
			}
		case *bedrocktypes.ConverseStreamOutputMemberMessageStop:
			if err := writeEvent("message_stop", map[string]any{}); err != nil {
				w.CloseWithError(err)
				return
			}
			w.Close()
			return
		}
	}

	if err := es.Err(); err != nil {
		w.CloseWithError(wrapBedrockErr(err, model))
		return
	}
	w.Close()
}

func wrapBedrockErr(err error, model string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "throttl") || strings.Contains(lower, "429"):
		return apierror.New(apierror.KindRateLimit, fmt.Sprintf("bedrock(%s): %s", model, msg))
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return apierror.New(apierror.KindTimeout, fmt.Sprintf("bedrock(%s): %s", model, msg))
	case strings.Contains(lower, "internal") || strings.Contains(lower, "service unavailable"):
		return apierror.New(apierror.KindServerError, fmt.Sprintf("bedrock(%s): %s", model, msg))
	default:
		return apierror.Wrap(apierror.KindAPIError, err).WithContext(fmt.Sprintf("bedrock(%s)", model))
	}
}
