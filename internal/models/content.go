package models

// Speaker 表示一条对话内容的角色。
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
	SpeakerSystem    Speaker = "system"
)

// Content 是提交给补全服务的一条对话内容。
// 本服务只需要纯文本补全，不涉及多模态与工具调用。
type Content struct {
	Role Speaker `json:"role"`
	Text string  `json:"text"`
}

// GenerateContentRequest 是补全服务的统一请求格式。
type GenerateContentRequest struct {
	Contents []Content `json:"contents"`
}

// GenerateContentResponse 是补全服务的统一响应格式。
type GenerateContentResponse struct {
	Contents []Content `json:"contents"`
}

// Text 返回响应中第一条内容的文本，响应为空时返回空字符串。
func (r *GenerateContentResponse) Text() string {
	if r == nil || len(r.Contents) == 0 {
		return ""
	}
	return r.Contents[0].Text
}
