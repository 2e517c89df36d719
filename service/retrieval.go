package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"procure-agent/internal/aiclient"
	"procure-agent/metrics"
	"procure-agent/model"
)

// Searcher is the similarity-search collaborator.
type Searcher interface {
	Search(ctx context.Context, req aiclient.SearchRequest) ([]model.RetrievedDocument, error)
}

// Retrieval is the outcome of one Fetch. Err is informational only.
type Retrieval struct {
	Docs    []model.RetrievedDocument
	Skipped bool
	Err     error
}

type RetrievalAugmenter struct {
	searcher  Searcher
	topK      int
	threshold float64
	logger    zerolog.Logger
}

func NewRetrievalAugmenter(searcher Searcher, topK int, threshold float64, logger zerolog.Logger) *RetrievalAugmenter {
	if topK <= 0 {
		topK = 3
	}
	return &RetrievalAugmenter{
		searcher:  searcher,
		topK:      topK,
		threshold: threshold,
		logger:    logger,
	}
}

// Fetch is best effort: a missing user scope or searcher is a no-op and a
// search failure yields no documents.
func (r *RetrievalAugmenter) Fetch(ctx context.Context, query, userScope string) Retrieval {
	if r == nil || r.searcher == nil || strings.TrimSpace(userScope) == "" {
		metrics.RetrievalResults.WithLabelValues("skipped").Inc()
		return Retrieval{Skipped: true}
	}

	docs, err := r.searcher.Search(ctx, aiclient.SearchRequest{
		Query:     query,
		UserID:    userScope,
		TopK:      r.topK,
		Threshold: r.threshold,
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("user_id", userScope).Msg("[Retrieval] 文档检索失败，跳过检索增强")
		metrics.RetrievalResults.WithLabelValues("error").Inc()
		return Retrieval{Err: err}
	}

	kept := make([]model.RetrievedDocument, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			kept = append(kept, d)
		}
	}
	outcome := "hit"
	if len(kept) == 0 {
		outcome = "empty"
	}
	metrics.RetrievalResults.WithLabelValues(outcome).Inc()
	r.logger.Debug().Int("docs", len(kept)).Msg("[Retrieval] 文档检索完成")
	return Retrieval{Docs: kept}
}

const retrievalInstructions = "请基于以上文档内容回答用户的问题。回答时请注意：\n" +
	"1. 优先使用文档中的信息，并说明信息出处\n" +
	"2. 如果文档内容与一般常识存在冲突，请指出冲突并解释原因\n" +
	"3. 如果文档信息不足以回答问题，可以使用联网搜索工具补充最新信息"

// Construct returns query unchanged when docs is empty.
func (r *RetrievalAugmenter) Construct(query string, docs []model.RetrievedDocument) string {
	if len(docs) == 0 {
		return query
	}
	var sb strings.Builder
	sb.WriteString("以下是与问题相关的文档内容：\n\n")
	for i, d := range docs {
		fmt.Fprintf(&sb, "文档%d（相似度 %.2f）：\n%s\n\n", i+1, d.Similarity, strings.TrimSpace(d.Content))
	}
	sb.WriteString("用户问题：")
	sb.WriteString(query)
	sb.WriteString("\n\n")
	sb.WriteString(retrievalInstructions)
	return sb.String()
}
