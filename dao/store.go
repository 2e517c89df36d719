package dao

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"procure-agent/model"
)

// 定义错误类型
var (
	ErrSessionConflict = errors.New("session conflict: conversation was modified concurrently")
	ErrMaxRetries      = errors.New("max retries exceeded")
	ErrInvalidParam    = errors.New("invalid parameter")
	ErrForbidden       = errors.New("conversation belongs to another user")
)

// MessageStore persists conversation messages and ingestion file status.
type MessageStore interface {
	GetMessages(ctx context.Context, conversationID, userScope string) ([]model.Message, error)
	AppendMessage(ctx context.Context, conversationID, userScope, content string, isUser bool) (model.Message, error)
	UpdateFileStatus(ctx context.Context, fileID string, status model.FileStatus, errMsg string) error
	Ping(ctx context.Context) error
	Close() error
}

// conversation is the stored form of one conversation.
type conversation struct {
	ID        string          `json:"id"`
	Owner     string          `json:"owner,omitempty"`
	Messages  []model.Message `json:"messages"`
	UpdatedAt string          `json:"updated_at"`
}

func newMessage(content string, isUser bool) model.Message {
	return model.Message{
		ID:        uuid.New().String(),
		Content:   content,
		IsUser:    isUser,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// checkOwner allows access when either side is unknown.
func checkOwner(conversationID, owner, userScope string) error {
	if owner == "" || userScope == "" || owner == userScope {
		return nil
	}
	return fmt.Errorf("%w: conversation %s", ErrForbidden, conversationID)
}

func validateIDs(conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("%w: conversationID is empty", ErrInvalidParam)
	}
	return nil
}

func validateFileStatus(fileID string, status model.FileStatus) error {
	if fileID == "" {
		return fmt.Errorf("%w: fileID is empty", ErrInvalidParam)
	}
	switch status {
	case model.FileProcessing, model.FileCompleted, model.FileFailed:
		return nil
	default:
		return fmt.Errorf("%w: unknown file status %q", ErrInvalidParam, status)
	}
}

// isTimestampNewer 安全比较时间戳，返回timestampA是否比timestampB更新
func isTimestampNewer(timestampA, timestampB string) bool {
	timeA, errA := time.Parse(time.RFC3339Nano, timestampA)
	timeB, errB := time.Parse(time.RFC3339Nano, timestampB)
	if errA == nil && errB == nil {
		return timeA.After(timeB)
	}
	// 解析失败时回退到字符串比较
	return timestampA > timestampB
}

// sortMessages orders messages oldest first, keeping insertion order for ties.
func sortMessages(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return isTimestampNewer(msgs[j].CreatedAt, msgs[i].CreatedAt)
	})
}
