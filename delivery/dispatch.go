package delivery

import (
	"slices"

	"github.com/BaSui01/agentdesk/hitl"
)

// Affordance 描述前端为请求提供的输入形式。
type Affordance string

const (
	AffordanceText        Affordance = "text"
	AffordanceExternal    Affordance = "external"
	AffordanceToggle      Affordance = "toggle"
	AffordanceChoice      Affordance = "choice"
	AffordanceAcknowledge Affordance = "acknowledge"
)

// Input 是用户在表单中留下的原始输入。
// 不同类型只读取各自关心的字段，零值即为默认输入。
type Input struct {
	Text   string
	Toggle bool
	Choice *string
}

// AffordanceFor 返回请求类型对应的输入形式。
func AffordanceFor(kind hitl.Kind) Affordance {
	switch kind {
	case hitl.KindTextInput:
		return AffordanceText
	case hitl.KindLogin:
		return AffordanceExternal
	case hitl.KindConfirmation:
		return AffordanceToggle
	case hitl.KindSelection:
		return AffordanceChoice
	default:
		return AffordanceAcknowledge
	}
}

// ExtractValue 按请求类型把用户输入转换为应答取值。
//
//	text_input    输入文本原样返回，不做裁剪
//	login         "completed"
//	confirmation  开关状态
//	selection     选中的选项；未选择或选项不在列表中时为 nil
//	其他          "acknowledged"
func ExtractValue(req *hitl.Request, in Input) any {
	switch AffordanceFor(req.Kind) {
	case AffordanceText:
		return in.Text
	case AffordanceExternal:
		return hitl.ValueCompleted
	case AffordanceToggle:
		return in.Toggle
	case AffordanceChoice:
		if in.Choice == nil || !slices.Contains(req.Options, *in.Choice) {
			return nil
		}
		return *in.Choice
	default:
		return hitl.ValueAcknowledged
	}
}
