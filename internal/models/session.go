package models

import (
	"time"
)

const sessionTitleMaxLen = 50

type ChatSession struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	UserID      uint          `gorm:"index;not null" json:"user_id"`
	Title       string        `gorm:"size:50" json:"title"`
	Model       string        `gorm:"size:100" json:"model,omitempty"`
	TotalTokens int           `gorm:"default:0" json:"total_tokens"`
	TotalCost   float64       `gorm:"type:decimal(10,4);default:0" json:"total_cost"`
	IsActive    bool          `gorm:"default:true;index" json:"is_active"`
	Messages    []ChatMessage `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"index;not null" json:"session_id"`
	Role      string    `gorm:"size:20;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Model     string    `gorm:"size:100" json:"model,omitempty"`
	Tokens    int       `gorm:"default:0" json:"tokens"`
	Cost      float64   `gorm:"type:decimal(10,6);default:0" json:"cost"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// SessionTitle derives a session title from the first user message.
func SessionTitle(firstMessage string) string {
	if len(firstMessage) > sessionTitleMaxLen {
		return firstMessage[:sessionTitleMaxLen]
	}
	return firstMessage
}

type SessionSummary struct {
	ID           uint      `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model,omitempty"`
	MessageCount int       `json:"message_count"`
	TotalTokens  int       `json:"total_tokens"`
	TotalCost    float64   `json:"total_cost"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type SessionExport struct {
	ExportID    string              `json:"export_id"`
	SessionID   uint                `json:"session_id"`
	Title       string              `json:"title"`
	Model       string              `json:"model,omitempty"`
	TotalTokens int                 `json:"total_tokens"`
	TotalCost   float64             `json:"total_cost"`
	ExportedBy  string              `json:"exported_by"`
	ExportedAt  time.Time           `json:"exported_at"`
	Messages    []ExportableMessage `json:"messages"`
}

type ExportableMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	Tokens    int       `json:"tokens,omitempty"`
	Cost      float64   `json:"cost,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
