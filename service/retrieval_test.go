package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procure-agent/logging"
	"procure-agent/model"
)

func TestConstructWithoutDocsIsIdentity(t *testing.T) {
	r := NewRetrievalAugmenter(nil, 3, 0.5, logging.Nop())
	for _, q := range []string{"", "查询", "  带空白的查询\n\n"} {
		assert.Equal(t, q, r.Construct(q, nil))
		assert.Equal(t, q, r.Construct(q, []model.RetrievedDocument{}))
	}

	var nilAugmenter *RetrievalAugmenter
	assert.Equal(t, "查询", nilAugmenter.Construct("查询", nil))
}

func TestConstructWithDocs(t *testing.T) {
	r := NewRetrievalAugmenter(nil, 3, 0.5, logging.Nop())
	out := r.Construct("投标保证金比例是多少", []model.RetrievedDocument{
		{Content: "投标保证金不得超过采购项目预算金额的2%。", Similarity: 0.91},
		{Content: "履约保证金不得超过合同金额的10%。", Similarity: 0.72},
	})
	assert.Contains(t, out, "文档1（相似度 0.91）")
	assert.Contains(t, out, "文档2（相似度 0.72）")
	assert.Contains(t, out, "用户问题：投标保证金比例是多少")
	assert.Contains(t, out, "优先使用文档中的信息")
	assert.Contains(t, out, "联网搜索工具")
}

func TestFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("no user scope", func(t *testing.T) {
		r := NewRetrievalAugmenter(stubSearcher{docs: []model.RetrievedDocument{{Content: "x"}}}, 3, 0.5, logging.Nop())
		got := r.Fetch(ctx, "q", "")
		assert.True(t, got.Skipped)
		assert.Empty(t, got.Docs)
	})

	t.Run("no searcher", func(t *testing.T) {
		got := NewRetrievalAugmenter(nil, 3, 0.5, logging.Nop()).Fetch(ctx, "q", "user-1")
		assert.True(t, got.Skipped)
	})

	t.Run("search failure is swallowed", func(t *testing.T) {
		r := NewRetrievalAugmenter(stubSearcher{err: errors.New("connection refused")}, 3, 0.5, logging.Nop())
		got := r.Fetch(ctx, "q", "user-1")
		assert.Error(t, got.Err)
		assert.Empty(t, got.Docs)
		assert.Equal(t, "q", r.Construct("q", got.Docs))
	})

	t.Run("blank documents dropped", func(t *testing.T) {
		r := NewRetrievalAugmenter(stubSearcher{docs: []model.RetrievedDocument{
			{Content: "  "},
			{Content: "有效内容", Similarity: 0.8},
		}}, 3, 0.5, logging.Nop())
		got := r.Fetch(ctx, "q", "user-1")
		require.NoError(t, got.Err)
		require.Len(t, got.Docs, 1)
		assert.Equal(t, "有效内容", got.Docs[0].Content)
	})
}
