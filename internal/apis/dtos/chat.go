package dtos

type CreateChatResponse struct {
	ChatToken  string `json:"chat_token"`
	IsFollowUp bool   `json:"is_follow_up"`
}

type AppendMessageRequest struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}
