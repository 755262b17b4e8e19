package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/internal/database"
	"github.com/BaSui01/skillflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultLimit 每次检索默认返回条数
const DefaultLimit = 5

// 单次检索从数据库取出的候选上限，打分在内存中完成
const maxCandidates = 200

// Document 知识库文档
type Document struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	EntityID  string    `gorm:"size:64;not null;uniqueIndex" json:"entityId"`
	Title     string    `gorm:"size:512" json:"title"`
	Content   string    `gorm:"type:text" json:"content"`
	URL       string    `gorm:"size:2048" json:"url,omitempty"`
	Locale    string    `gorm:"size:16;index" json:"locale,omitempty"`
	ProjectID string    `gorm:"size:64;index" json:"projectId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Document) TableName() string {
	return "sf_knowledge_documents"
}

// Options 检索选项
type Options struct {
	Limit     int
	ProjectID string
	Locale    string
}

// Searcher 知识库检索接口，上下文准备只依赖它
type Searcher interface {
	Search(ctx context.Context, query string, opts Options) ([]types.Source, error)
}

// SearcherFunc 函数适配器
type SearcherFunc func(ctx context.Context, query string, opts Options) ([]types.Source, error)

// Search 实现 Searcher
func (f SearcherFunc) Search(ctx context.Context, query string, opts Options) ([]types.Source, error) {
	return f(ctx, query, opts)
}

// =============================================================================
// 🗄️ Store
// =============================================================================

// Store 基于 GORM 的知识库，按词项命中次数打分
type Store struct {
	pool   *database.PoolManager
	limit  int
	logger *zap.Logger
}

// NewStore 在已有连接池上创建知识库
func NewStore(pool *database.PoolManager, limit int, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("knowledge: pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{pool: pool, limit: limit, logger: logger.With(zap.String("component", "knowledge"))}, nil
}

// Open 按配置打开数据库、迁移表结构并返回知识库
func Open(ctx context.Context, cfg config.KnowledgeConfig, logger *zap.Logger) (*Store, error) {
	pool, err := database.Open(cfg.Driver, cfg.Path, database.DefaultPoolConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open database: %w", err)
	}
	store, err := NewStore(pool, cfg.Limit, logger)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	if err := store.AutoMigrate(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return store, nil
}

// AutoMigrate 迁移表结构
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.pool.DB().WithContext(ctx).AutoMigrate(&Document{}); err != nil {
		return fmt.Errorf("knowledge: auto migrate: %w", err)
	}
	return nil
}

// Add 写入文档，EntityID 已存在时覆盖，为空时自动生成
func (s *Store) Add(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	for i := range docs {
		if docs[i].EntityID == "" {
			docs[i].EntityID = uuid.NewString()
		}
	}
	err := s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "content", "url", "locale", "project_id", "updated_at"}),
		}).Create(&docs).Error
	})
	if err != nil {
		return fmt.Errorf("knowledge: add documents: %w", err)
	}
	s.logger.Debug("documents added", zap.Int("count", len(docs)))
	return nil
}

// Delete 按 EntityID 删除文档
func (s *Store) Delete(ctx context.Context, entityIDs ...string) error {
	if len(entityIDs) == 0 {
		return nil
	}
	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Where("entity_id IN ?", entityIDs).Delete(&Document{}).Error
	})
}

// Count 返回文档总数
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.DB().WithContext(ctx).Model(&Document{}).Count(&n).Error
	return n, err
}

// Search 对 query 分词后做 LIKE 匹配，按命中次数降序返回（标题命中加权）
func (s *Store) Search(ctx context.Context, query string, opts Options) ([]types.Source, error) {
	terms := Terms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.limit
	}

	db := s.pool.DB().WithContext(ctx).Model(&Document{})
	if opts.ProjectID != "" {
		db = db.Where("project_id = ?", opts.ProjectID)
	}
	if opts.Locale != "" {
		db = db.Where("locale = ? OR locale = ''", opts.Locale)
	}
	match := s.pool.DB().Session(&gorm.Session{NewDB: true})
	for i, term := range terms {
		pattern := "%" + escapeLike(term) + "%"
		cond := "LOWER(title) LIKE ? ESCAPE '!' OR LOWER(content) LIKE ? ESCAPE '!'"
		if i == 0 {
			match = match.Where(cond, pattern, pattern)
		} else {
			match = match.Or(cond, pattern, pattern)
		}
	}

	var docs []Document
	if err := db.Where(match).Order("id").Limit(maxCandidates).Find(&docs).Error; err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "knowledge search failed").WithCause(err)
	}

	type scored struct {
		doc   Document
		score int
	}
	ranked := make([]scored, 0, len(docs))
	for _, d := range docs {
		if sc := score(d, terms); sc > 0 {
			ranked = append(ranked, scored{doc: d, score: sc})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]types.Source, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, types.Source{
			URL:         r.doc.URL,
			Title:       r.doc.Title,
			PageContent: r.doc.Content,
			Kind:        types.SourceKindKnowledge,
			EntityID:    r.doc.EntityID,
			Score:       float64(r.score),
		})
	}
	s.logger.Debug("knowledge search",
		zap.String("query", query),
		zap.Int("candidates", len(docs)),
		zap.Int("hits", len(out)),
	)
	return out, nil
}

// Close 关闭底层连接池
func (s *Store) Close() error {
	return s.pool.Close()
}

// =============================================================================
// 🔧 打分
// =============================================================================

// Terms 把查询拆成去重的小写词项
func Terms(query string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range strings.FieldsFunc(strings.ToLower(query), isSeparator) {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', ',', '.', ';', ':', '!', '?', '"', '\'', '(', ')',
		'，', '。', '；', '：', '！', '？', '、':
		return true
	}
	return false
}

func score(d Document, terms []string) int {
	title := strings.ToLower(d.Title)
	content := strings.ToLower(d.Content)
	total := 0
	for _, t := range terms {
		total += 2*strings.Count(title, t) + strings.Count(content, t)
	}
	return total
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
