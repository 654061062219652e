package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaySingh79/Agentic-Recruiter/internal/session"
)

// 错误到HTTP状态码的映射。候选人通道不泄露内部错误细节，
// 乐观并发冲突属于正常竞争，映射为409而不是500。
func TestRespondErrorMapping(t *testing.T) {
	h := NewInterviewHandler(nil, nil, zerolog.Nop())

	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "会话不存在",
			err:        fmt.Errorf("编排器: 取会话失败: %w", session.ErrSessionNotFound),
			wantStatus: consts.StatusNotFound,
		},
		{
			name:       "非法会话操作",
			err:        &session.InvalidOperationError{Op: "record_answer", SessionID: "s-1", Reason: "会话已终结"},
			wantStatus: consts.StatusConflict,
		},
		{
			name:       "版本冲突",
			err:        fmt.Errorf("编排器: 提交回答失败: %w", session.ErrVersionConflict),
			wantStatus: consts.StatusConflict,
		},
		{
			name:       "未知内部错误",
			err:        errors.New("数据库连接中断"),
			wantStatus: consts.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := app.NewContext(16)
			h.respondError(context.Background(), c, "test_op", tc.err)

			assert.Equal(t, tc.wantStatus, c.Response.StatusCode())

			var body map[string]string
			require.NoError(t, json.Unmarshal(c.Response.Body(), &body))
			assert.NotEmpty(t, body["error"])
			if tc.wantStatus == consts.StatusInternalServerError {
				assert.Equal(t, "服务内部错误", body["error"], "内部错误细节不外露")
			}
		})
	}
}
