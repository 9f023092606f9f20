// Package fixtures 提供交互请求的测试数据样例。
package fixtures

import (
	"sync/atomic"
	"time"

	"github.com/BaSui01/agentdesk/hitl"
)

// TextInput 返回文本输入请求的创建参数
func TextInput() hitl.CreateOptions {
	return hitl.CreateOptions{
		Kind:        hitl.KindTextInput,
		Prompt:      "What should the release be called?",
		Description: "Used as the tag name",
	}
}

// Login 返回登录请求的创建参数
func Login() hitl.CreateOptions {
	return hitl.CreateOptions{
		Kind:        hitl.KindLogin,
		Prompt:      "Please log in to GitHub",
		Description: "Open https://github.com/login and type done when finished",
		Metadata:    map[string]any{"service": "GitHub", "url": "https://github.com/login"},
	}
}

// Confirmation 返回确认请求的创建参数
func Confirmation() hitl.CreateOptions {
	return hitl.CreateOptions{
		Kind:   hitl.KindConfirmation,
		Prompt: "Deploy to production?",
	}
}

// Selection 返回单选请求的创建参数。未指定选项时使用三个默认区域。
func Selection(options ...string) hitl.CreateOptions {
	if len(options) == 0 {
		options = []string{"eu-west", "us-east", "ap-south"}
	}
	return hitl.CreateOptions{
		Kind:    hitl.KindSelection,
		Prompt:  "Pick a region",
		Options: options,
	}
}

// Custom 返回任意类型请求的创建参数，用于未知类型的确认路径
func Custom(kind string) hitl.CreateOptions {
	return hitl.CreateOptions{
		Kind:   hitl.Kind(kind),
		Prompt: "Acknowledge the " + kind + " notice",
	}
}

// AllKinds 返回每种已知类型各一个创建参数，外加一个未知类型
func AllKinds() []hitl.CreateOptions {
	return []hitl.CreateOptions{
		TextInput(),
		Login(),
		Confirmation(),
		Selection(),
		Custom("file_upload"),
	}
}

var sequence atomic.Uint64

// PendingRequest 按创建参数构造一个挂起请求，序号单调递增
func PendingRequest(id string, opts hitl.CreateOptions) *hitl.Request {
	options := []string{}
	if opts.Kind == hitl.KindSelection {
		options = append(options, opts.Options...)
	}
	return &hitl.Request{
		ID:          id,
		Kind:        opts.Kind,
		Prompt:      opts.Prompt,
		Description: opts.Description,
		Options:     options,
		Status:      hitl.StatusPending,
		Sequence:    sequence.Add(1),
		Required:    !opts.Optional,
		Metadata:    opts.Metadata,
		CreatedAt:   time.Now(),
	}
}
