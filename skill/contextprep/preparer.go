package contextprep

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/skillflow/llm/tokenizer"
	"github.com/BaSui01/skillflow/skill/knowledge"
	"github.com/BaSui01/skillflow/types"
	"go.uber.org/zap"
)

// DefaultMinBlockTokens 截断最后一个块时至少要剩余的 token 数
const DefaultMinBlockTokens = 32

const blockSeparator = "\n\n"

// Input 上下文准备输入
type Input struct {
	Query                     string
	RewrittenQueries          []string
	MentionedContext          *types.Context
	MaxTokens                 int
	EnableMentionedContext    bool
	URLSources                []types.Source
	EnableKnowledgeBaseSearch bool
	Locale                    string
	ProjectID                 string
}

// Options 组装参数，零值使用默认值
type Options struct {
	MinBlockTokens int
	KnowledgeLimit int
}

// Result 上下文准备结果
type Result struct {
	ContextStr string         `json:"contextStr"`
	Sources    []types.Source `json:"sources"`
	UsedTokens int            `json:"usedTokens"`
	// Truncated 为 true 表示最后一个块被截断
	Truncated bool `json:"truncated"`
}

// Preparer 按优先级把提及内容、知识库命中与 URL 来源拼成上下文，累计 token 且不超预算。
type Preparer struct {
	searcher  knowledge.Searcher
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewPreparer 创建上下文准备器。searcher 可为 nil，表示没有知识库。
func NewPreparer(searcher knowledge.Searcher, tok tokenizer.Tokenizer, logger *zap.Logger) *Preparer {
	if tok == nil {
		tok = tokenizer.NewEstimatorTokenizer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preparer{
		searcher:  searcher,
		tokenizer: tok,
		logger:    logger.With(zap.String("component", "context_preparer")),
	}
}

// Prepare 组装上下文。预算 ≤ 0 时直接返回空结果，不访问知识库。
// 知识库检索失败时记录日志并跳过，不返回错误。
func (p *Preparer) Prepare(ctx context.Context, in Input, opts Options) (*Result, error) {
	if in.MaxTokens <= 0 {
		return &Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.ErrCanceled, "context preparation canceled").WithCause(err)
	}
	if opts.MinBlockTokens <= 0 {
		opts.MinBlockTokens = DefaultMinBlockTokens
	}

	a := &assembler{tok: p.tokenizer, max: in.MaxTokens, minBlock: opts.MinBlockTokens, seen: map[string]struct{}{}}

	if in.EnableMentionedContext {
		a.addAll(mentionedSources(in.MentionedContext))
	}
	if !a.full && in.EnableKnowledgeBaseSearch && p.searcher != nil {
		a.addAll(p.searchKnowledge(ctx, in, opts.KnowledgeLimit))
	}
	if !a.full {
		a.addAll(in.URLSources)
	}

	res := a.result()
	p.logger.Debug("context prepared",
		zap.Int("sources", len(res.Sources)),
		zap.Int("used_tokens", res.UsedTokens),
		zap.Int("max_tokens", in.MaxTokens),
		zap.Bool("truncated", res.Truncated),
	)
	return res, nil
}

// searchKnowledge 用优化查询与改写查询依次检索，首个错误即放弃知识库
func (p *Preparer) searchKnowledge(ctx context.Context, in Input, limit int) []types.Source {
	queries := make([]string, 0, 1+len(in.RewrittenQueries))
	if q := strings.TrimSpace(in.Query); q != "" {
		queries = append(queries, q)
	}
	for _, q := range in.RewrittenQueries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}

	var out []types.Source
	for _, q := range queries {
		hits, err := p.searcher.Search(ctx, q, knowledge.Options{Limit: limit, ProjectID: in.ProjectID, Locale: in.Locale})
		if err != nil {
			p.logger.Warn("knowledge base search failed, skipping", zap.String("query", q), zap.Error(err))
			return out
		}
		out = append(out, hits...)
	}
	return out
}

// mentionedSources 把用户选中的材料转成来源，顺序为内容、资源、画布、项目、消息、网页搜索结果
func mentionedSources(c *types.Context) []types.Source {
	if c.IsEmpty() {
		return nil
	}
	var out []types.Source
	for _, item := range c.Items() {
		out = append(out, types.Source{
			URL:         item.URL,
			Title:       item.Title,
			PageContent: item.Content,
			Kind:        types.SourceKindMentioned,
			EntityID:    item.EntityID,
			Metadata:    map[string]any{"contextKind": string(item.Kind)},
		})
	}
	out = append(out, c.WebSearchSources...)
	return out
}

// =============================================================================
// 🔧 组装
// =============================================================================

type assembler struct {
	tok      tokenizer.Tokenizer
	max      int
	minBlock int

	b         strings.Builder
	used      int
	sources   []types.Source
	seen      map[string]struct{}
	full      bool
	truncated bool
}

func (a *assembler) addAll(sources []types.Source) {
	for _, s := range sources {
		if a.full {
			return
		}
		a.add(s)
	}
}

func (a *assembler) add(s types.Source) {
	if strings.TrimSpace(s.PageContent) == "" {
		return
	}
	key := s.Key()
	if _, dup := a.seen[key]; dup {
		return
	}

	prefix := a.b.String()
	if prefix != "" {
		prefix += blockSeparator
	}
	index := len(a.sources) + 1

	candidate := prefix + renderBlock(index, s, s.PageContent)
	if n := a.tok.CountTokens(candidate); n <= a.max {
		a.accept(key, s, candidate, n)
		return
	}

	// 放不下：剩余预算足够时截断本块，然后停止
	a.full = true
	remaining := a.max - a.tok.CountTokens(prefix+renderBlock(index, s, ""))
	if remaining < a.minBlock {
		return
	}
	for budget := remaining; budget > 0; {
		content := a.tok.Truncate(s.PageContent, budget)
		if content == "" {
			return
		}
		candidate = prefix + renderBlock(index, s, content)
		n := a.tok.CountTokens(candidate)
		if n <= a.max {
			s.PageContent = content
			a.accept(key, s, candidate, n)
			a.truncated = true
			return
		}
		budget -= max(1, n-a.max)
	}
}

func (a *assembler) accept(key string, s types.Source, assembled string, tokens int) {
	a.b.Reset()
	a.b.WriteString(assembled)
	a.used = tokens
	a.seen[key] = struct{}{}
	a.sources = append(a.sources, s)
	if a.used >= a.max {
		a.full = true
	}
}

func (a *assembler) result() *Result {
	return &Result{
		ContextStr: a.b.String(),
		Sources:    a.sources,
		UsedTokens: a.used,
		Truncated:  a.truncated,
	}
}

func renderBlock(index int, s types.Source, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<context_item index=\"%d\" type=%q", index, string(s.Kind))
	if s.EntityID != "" {
		fmt.Fprintf(&b, " id=%q", s.EntityID)
	}
	if s.Title != "" {
		fmt.Fprintf(&b, " title=%q", s.Title)
	}
	if s.URL != "" {
		fmt.Fprintf(&b, " url=%q", s.URL)
	}
	b.WriteString(">\n")
	b.WriteString(content)
	b.WriteString("\n</context_item>")
	return b.String()
}
