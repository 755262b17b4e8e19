package image

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/skill/event"
	"github.com/BaSui01/skillflow/skill/graph"
	"github.com/BaSui01/skillflow/types"
	"go.uber.org/zap"
)

// Name 技能名
const Name = "generateImage"

// NodeGenerate 唯一的图节点
const NodeGenerate = "generateImage"

// 配置项
const (
	ConfigAPIURL         = "apiUrl"
	ConfigAPIKey         = "apiKey"
	ConfigImageRatio     = "imageRatio"
	ConfigModel          = "model"
	ConfigReferenceGenID = "referenceGenId"
)

// Ratios 支持的画幅
var Ratios = []string{"1:1", "16:9", "9:16", "4:3", "3:4"}

// Skill 单节点图：调用外部生成服务并产出 image artifact
type Skill struct {
	deps      skill.Deps
	generator *Generator
	logger    *zap.Logger
}

// New 创建图片生成技能
func New(deps skill.Deps) *Skill {
	deps = deps.WithDefaults()
	return &Skill{
		deps:      deps,
		generator: NewGenerator(deps.HTTPClient, deps.Image, deps.Logger),
		logger:    deps.Logger.With(zap.String("skill", Name)),
	}
}

func (s *Skill) Name() string { return Name }

func (s *Skill) Description() string {
	return "Generate an image from a text prompt, optionally editing a previous generation."
}

func (s *Skill) ConfigSchema() types.ConfigSchema {
	ratios := make([]types.ConfigOption, 0, len(Ratios))
	for _, r := range Ratios {
		ratios = append(ratios, types.ConfigOption{Value: r, Labels: types.LocalizedText{"en": r}})
	}
	return types.ConfigSchema{Items: []types.ConfigItem{
		{
			Key:          ConfigAPIURL,
			InputMode:    types.InputModeText,
			DefaultValue: s.deps.Image.Endpoint,
			Labels:       types.LocalizedText{"en": "API URL", "zh-CN": "接口地址"},
		},
		{
			Key:          ConfigAPIKey,
			InputMode:    types.InputModeText,
			DefaultValue: s.deps.Image.APIKey,
			Labels:       types.LocalizedText{"en": "API key", "zh-CN": "API 密钥"},
		},
		{
			Key:          ConfigImageRatio,
			InputMode:    types.InputModeSelect,
			DefaultValue: s.deps.Image.AspectRatio,
			Labels:       types.LocalizedText{"en": "Aspect ratio", "zh-CN": "画幅比例"},
			Options:      ratios,
		},
		{
			Key:          ConfigModel,
			InputMode:    types.InputModeText,
			DefaultValue: s.deps.Image.Model,
			Labels:       types.LocalizedText{"en": "Model", "zh-CN": "模型"},
		},
		{
			Key:          ConfigReferenceGenID,
			InputMode:    types.InputModeText,
			Labels:       types.LocalizedText{"en": "Reference generation ID", "zh-CN": "参考生成 ID"},
			Descriptions: types.LocalizedText{"en": "Edit a previous image by its gen_id", "zh-CN": "基于已有图片的 gen_id 进行编辑"},
		},
	}}
}

// Invoke 生成图片。生成失败时发送一个 error 事件与文字回复，并返回 nil 错误。
func (s *Skill) Invoke(ctx context.Context, in *skill.Input, cfg *skill.RunConfig) (*skill.Output, error) {
	if cfg == nil {
		cfg = &skill.RunConfig{}
	}
	if cfg.Resolved == nil {
		resolved, err := s.ConfigSchema().Resolve(cfg.Config)
		if err != nil {
			return nil, err
		}
		cfg.Resolved = resolved
	}
	locale := cfg.LocaleOr(s.deps.Settings.Locale)
	n := &generateNode{skill: s, in: in, cfg: cfg, locale: locale}

	g, err := graph.NewBuilder(Name).
		AddNode(NodeGenerate, n.run).
		AddEdge(graph.Start, NodeGenerate).
		AddEdge(NodeGenerate, graph.End).
		WithLogger(s.logger).
		WithMetrics(s.deps.Metrics).
		Build()
	if err != nil {
		return nil, err
	}
	state, err := g.Run(ctx, &graph.State{})
	if err != nil {
		return nil, err
	}

	out := &skill.Output{Messages: state.Messages, Artifacts: state.Artifacts, Steps: state.Steps}
	if last, ok := state.LastAssistantMessage(); ok {
		out.Answer = last.Content
	}
	return out, nil
}

type generateNode struct {
	skill  *Skill
	in     *skill.Input
	cfg    *skill.RunConfig
	locale string
}

func (n *generateNode) run(ctx context.Context, _ *graph.State) (graph.Update, error) {
	emitter := n.cfg.Emitter
	resolved := n.cfg.Resolved
	req := Request{
		Endpoint:       resolved.String(ConfigAPIURL),
		APIKey:         resolved.String(ConfigAPIKey),
		Model:          resolved.String(ConfigModel),
		Prompt:         strings.TrimSpace(n.in.Query),
		Ratio:          resolved.String(ConfigImageRatio),
		ReferenceGenID: strings.TrimSpace(resolved.String(ConfigReferenceGenID)),
	}
	if req.Ratio == "" {
		req.Ratio = n.skill.deps.Image.AspectRatio
	}

	event.EmitLog(ctx, emitter, NodeGenerate, "generateImage.start", map[string]any{
		"ratio": req.Ratio,
		"edit":  req.ReferenceGenID != "",
	})
	res, err := n.skill.generator.Generate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			// 调用方取消，交给上层
			return graph.Update{}, err
		}
		n.skill.logger.Warn("image generation failed", zap.Error(err))
		event.EmitError(ctx, emitter, NodeGenerate, err)
		msg := types.NewAssistantMessage(failureMessage(n.locale, err))
		event.EmitStream(ctx, emitter, NodeGenerate, msg.Content)
		return graph.Update{Messages: []types.Message{msg}}, nil
	}

	artifact := types.NewArtifact(types.ArtifactTypeImage, artifactTitle(req.Prompt), types.ArtifactStatusFinish)
	artifact.Metadata["url"] = res.URL
	artifact.Metadata["ratio"] = req.Ratio
	artifact.Metadata["prompt"] = req.Prompt
	if res.GenID != "" {
		artifact.Metadata["genId"] = res.GenID
	}
	event.EmitArtifact(ctx, emitter, artifact)
	event.EmitCreateNode(ctx, emitter, types.CanvasNodeFor(artifact))

	msg := types.NewAssistantMessage(successMessage(req.Prompt, res))
	event.EmitStream(ctx, emitter, NodeGenerate, msg.Content)
	return graph.Update{Messages: []types.Message{msg}, Artifacts: []types.Artifact{artifact}}, nil
}

func artifactTitle(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > 50 {
		return string(runes[:50]) + "..."
	}
	return prompt
}

func successMessage(prompt string, res Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "![%s](%s)", artifactTitle(prompt), res.URL)
	if res.GenID != "" {
		fmt.Fprintf(&sb, "\n\ngen_id: `%s`", res.GenID)
	}
	return sb.String()
}

// failureMessage 每类失败给出不同的提示
func failureMessage(locale string, err error) string {
	zh := strings.HasPrefix(strings.ToLower(locale), "zh")
	code := types.ErrInternalError
	if e, ok := types.AsError(err); ok {
		code = e.Code
	}
	switch code {
	case types.ErrMissingPrompt:
		if zh {
			return "请描述想要生成的图片。"
		}
		return "Please describe the image you want to generate."
	case types.ErrMissingAPIKey:
		if zh {
			return "未配置图片生成服务的 API 密钥，请在技能配置中填写。"
		}
		return "The image generation API key is not configured. Add it in the skill settings."
	case types.ErrUpstreamStatus, types.ErrUpstreamError:
		if zh {
			return "图片生成服务返回了错误，请稍后再试。"
		}
		return "The image generation service returned an error. Please try again later."
	case types.ErrStreamReadFailed:
		if zh {
			return "读取图片生成结果时连接中断，请重试。"
		}
		return "The connection dropped while reading the generated image. Please retry."
	case types.ErrResultNotFound, types.ErrUpstreamTimeout, types.ErrBufferOverflow:
		if zh {
			return "在限定时间内没有拿到生成的图片，请调整描述后重试。"
		}
		return "No image was returned in time. Try adjusting the prompt and generating again."
	default:
		if zh {
			return "图片生成失败：" + err.Error()
		}
		return "Image generation failed: " + err.Error()
	}
}
