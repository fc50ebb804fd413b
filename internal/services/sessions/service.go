// Package sessions persists conversations. Sessions are owned by a single
// user and soft-deleted; message history is a normalized child table so a
// damaged row surfaces as a query error instead of a silently empty
// transcript.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mfcastro/aihub/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContextWindow is how many trailing messages accompany a new turn to the
// provider.
const ContextWindow = 20

var ErrNotFound = errors.New("session not found")

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetOrCreate returns the user's session by id, or creates a new one when
// sessionID is zero. The new session's title is cut from the first message.
// A session belonging to another user is reported as not found.
func (s *Service) GetOrCreate(ctx context.Context, userID, sessionID uint, firstMessage, model string) (*models.ChatSession, error) {
	if sessionID != 0 {
		return s.Get(ctx, userID, sessionID)
	}

	session := &models.ChatSession{
		UserID:   userID,
		Title:    models.SessionTitle(firstMessage),
		Model:    model,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// Get loads an active session owned by the user, without messages.
func (s *Service) Get(ctx context.Context, userID, sessionID uint) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND is_active = ?", sessionID, userID, true).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %d: %w", sessionID, err)
	}
	return &session, nil
}

// GetWithMessages loads a session and its full transcript in order.
func (s *Service) GetWithMessages(ctx context.Context, userID, sessionID uint) (*models.ChatSession, error) {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&session.Messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages for session %d: %w", sessionID, err)
	}

	return session, nil
}

// AppendMessage stores one turn and folds its tokens and cost into the
// session totals.
func (s *Service) AppendMessage(ctx context.Context, sessionID uint, msg models.ChatMessage) error {
	msg.SessionID = sessionID

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}

		if err := tx.Model(&models.ChatSession{}).
			Where("id = ?", sessionID).
			Updates(map[string]any{
				"total_tokens": gorm.Expr("total_tokens + ?", msg.Tokens),
				"total_cost":   gorm.Expr("total_cost + ?", msg.Cost),
			}).Error; err != nil {
			return fmt.Errorf("failed to update session totals: %w", err)
		}

		return nil
	})
}

// Window returns the trailing context sent with a new turn: the last
// ContextWindow stored messages, oldest first.
func (s *Service) Window(ctx context.Context, sessionID uint) ([]models.Message, error) {
	var stored []models.ChatMessage
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		Limit(ContextWindow).
		Find(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load context window: %w", err)
	}

	// Reverse back into chronological order.
	out := make([]models.Message, len(stored))
	for i, m := range stored {
		out[len(stored)-1-i] = models.Message{Role: m.Role, Content: m.Content}
	}
	return out, nil
}

// List returns the user's active sessions, newest activity first.
func (s *Service) List(ctx context.Context, userID uint) ([]models.SessionSummary, error) {
	var summaries []models.SessionSummary
	if err := s.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("chat_sessions.user_id = ? AND chat_sessions.is_active = ?", userID, true).
		Select(`
			chat_sessions.id,
			chat_sessions.title,
			chat_sessions.model,
			chat_sessions.total_tokens,
			chat_sessions.total_cost,
			chat_sessions.created_at,
			chat_sessions.updated_at,
			COUNT(chat_messages.id) as message_count
		`).
		Joins("LEFT JOIN chat_messages ON chat_messages.session_id = chat_sessions.id").
		Group("chat_sessions.id").
		Order("chat_sessions.updated_at DESC").
		Scan(&summaries).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return summaries, nil
}

// Deactivate soft-deletes a session. The transcript stays for accounting.
func (s *Service) Deactivate(ctx context.Context, userID, sessionID uint) error {
	result := s.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("id = ? AND user_id = ? AND is_active = ?", sessionID, userID, true).
		Update("is_active", false)

	if result.Error != nil {
		return fmt.Errorf("failed to deactivate session %d: %w", sessionID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Export produces a portable snapshot of one session's transcript,
// carrying the session's running totals so a re-parsed export reproduces
// the same sequence and sums. exportedBy records who pulled the snapshot.
func (s *Service) Export(ctx context.Context, userID, sessionID uint, exportedBy string) (*models.SessionExport, error) {
	session, err := s.GetWithMessages(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	export := &models.SessionExport{
		ExportID:    uuid.NewString(),
		SessionID:   session.ID,
		Title:       session.Title,
		Model:       session.Model,
		TotalTokens: session.TotalTokens,
		TotalCost:   session.TotalCost,
		ExportedBy:  exportedBy,
		ExportedAt:  time.Now().UTC(),
		Messages:    make([]models.ExportableMessage, 0, len(session.Messages)),
	}
	for _, m := range session.Messages {
		export.Messages = append(export.Messages, models.ExportableMessage{
			Role:      m.Role,
			Content:   m.Content,
			Model:     m.Model,
			Tokens:    m.Tokens,
			Cost:      m.Cost,
			Timestamp: m.CreatedAt,
		})
	}
	return export, nil
}
