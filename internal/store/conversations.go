package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
)

// CreateConversation inserts a new conversation row.
func (s *Store) CreateConversation(ctx context.Context, conv *chat.Conversation) error {
	_, err := s.exec(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.UserID, nullString(conv.Title), formatTime(conv.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation loads a conversation with its messages in chronological order.
func (s *Store) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	row := s.queryRow(ctx, `
		SELECT id, user_id, title, created_at, overall_sentiment, sentiment_explanation
		FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	messages, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages
	conv.MessageCount = len(messages)
	return conv, nil
}

// ListConversations returns a user's conversations, newest first, with message counts.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	rows, err := s.query(ctx, `
		SELECT c.id, c.user_id, c.title, c.created_at, c.overall_sentiment, c.sentiment_explanation,
		       COUNT(m.id) AS message_count
		FROM conversations c
		LEFT JOIN messages m ON c.id = m.conversation_id
		WHERE c.user_id = ?
		GROUP BY c.id, c.user_id, c.title, c.created_at, c.overall_sentiment, c.sentiment_explanation
		ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []chat.Conversation{}
	for rows.Next() {
		var (
			conv                        chat.Conversation
			title, overall, explanation sql.NullString
			createdAt                   string
		)
		if err := rows.Scan(&conv.ID, &conv.UserID, &title, &createdAt, &overall, &explanation, &conv.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if conv.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		conv.Title = title.String
		conv.OverallSentiment = chat.Sentiment(overall.String)
		conv.SentimentExplanation = explanation.String
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM messages WHERE conversation_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM conversations WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// UpdateConversationTitle sets the display title.
func (s *Store) UpdateConversationTitle(ctx context.Context, id, title string) error {
	if _, err := s.exec(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, nullString(title), id); err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	return nil
}

// SaveConversationSentiment stores the latest aggregate sentiment.
func (s *Store) SaveConversationSentiment(ctx context.Context, id string, overall chat.Sentiment, explanation string) error {
	_, err := s.exec(ctx,
		`UPDATE conversations SET overall_sentiment = ?, sentiment_explanation = ? WHERE id = ?`,
		nullString(string(overall)), nullString(explanation), id,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation sentiment: %w", err)
	}
	return nil
}

// SaveMessage appends a message to its conversation.
func (s *Store) SaveMessage(ctx context.Context, msg *chat.Message) error {
	var score sql.NullFloat64
	if msg.CompoundScore != nil {
		score = sql.NullFloat64{Float64: *msg.CompoundScore, Valid: true}
	}
	_, err := s.exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender, message_text, sentiment, sentiment_score, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Sender), msg.Text,
		nullString(string(msg.Sentiment)), score, formatTime(msg.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ListMessages returns a conversation's messages oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	rows, err := s.query(ctx, `
		SELECT id, conversation_id, sender, message_text, sentiment, sentiment_score, timestamp
		FROM messages WHERE conversation_id = ?
		ORDER BY timestamp ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []chat.Message{}
	for rows.Next() {
		var (
			msg       chat.Message
			sender    string
			sentiment sql.NullString
			score     sql.NullFloat64
			timestamp string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &sender, &msg.Text, &sentiment, &score, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if msg.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		msg.Sender = chat.Sender(sender)
		msg.Sentiment = chat.Sentiment(sentiment.String)
		if score.Valid {
			v := score.Float64
			msg.CompoundScore = &v
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func scanConversation(row *sql.Row) (*chat.Conversation, error) {
	var (
		conv                        chat.Conversation
		title, overall, explanation sql.NullString
		createdAt                   string
	)
	if err := row.Scan(&conv.ID, &conv.UserID, &title, &createdAt, &overall, &explanation); err != nil {
		return nil, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	conv.CreatedAt = created
	conv.Title = title.String
	conv.OverallSentiment = chat.Sentiment(overall.String)
	conv.SentimentExplanation = explanation.String
	return &conv, nil
}
