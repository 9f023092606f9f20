package hitl

// Kind 定义交互请求的类型，决定前端的输入形式与取值规则。
// 未识别的取值被原样保留，前端退化为通用确认表单。
type Kind string

const (
	KindTextInput    Kind = "text_input"
	KindLogin        Kind = "login"
	KindConfirmation Kind = "confirmation"
	KindSelection    Kind = "selection"
	KindCustom       Kind = "custom"
)

// 约定的哨兵取值，Agent 侧按约定而非类型化 schema 解读。
const (
	ValueCompleted    = "completed"
	ValueAcknowledged = "acknowledged"
)

// Known 报告该类型是否拥有专门的输入形式。
func (k Kind) Known() bool {
	switch k {
	case KindTextInput, KindLogin, KindConfirmation, KindSelection:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	return string(k)
}

// Status 表示交互请求的生命周期状态.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAnswered  Status = "answered"
	StatusCancelled Status = "cancelled"
)

// Terminal 报告状态是否为终态。终态之后不再有任何转换。
func (s Status) Terminal() bool {
	return s == StatusAnswered || s == StatusCancelled
}
