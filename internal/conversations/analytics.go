package conversations

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"orgops/internal/models"
	"orgops/internal/store"
)

const (
	DefaultUsageDays = 30
	MaxUsageDays     = 365
)

// ParseDays reads the analytics window. Empty means the default; values
// above the maximum are clamped.
func ParseDays(raw string) (int, error) {
	if raw == "" {
		return DefaultUsageDays, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: days must be a positive integer", models.ErrInvalid)
	}
	if n > MaxUsageDays {
		n = MaxUsageDays
	}
	return n, nil
}

type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type AgentCount struct {
	AgentID int64  `json:"agent_id"`
	Name    string `json:"name"`
	Count   int64  `json:"count"`
}

type Usage struct {
	Days            int              `json:"days"`
	From            string           `json:"from"`
	To              string           `json:"to"`
	Messages        int64            `json:"messages"`
	MessagesPerDay  []DayCount       `json:"messages_per_day"`
	MessagesByAgent []AgentCount     `json:"messages_by_agent"`
	Conversations   int64            `json:"conversations"`
	Actions         map[string]int64 `json:"actions"`
}

// Usage summarizes conversation activity over the last days UTC days,
// today included. Every day of the window is present in MessagesPerDay.
func (s *Service) Usage(ctx context.Context, orgID int64, days int) (*Usage, error) {
	if days < 1 || days > MaxUsageDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", models.ErrInvalid, MaxUsageDays)
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -(days - 1))
	db := s.DB.WithContext(ctx)

	u := &Usage{
		Days:            days,
		From:            from.Format(time.DateOnly),
		To:              today.Format(time.DateOnly),
		MessagesPerDay:  make([]DayCount, days),
		MessagesByAgent: []AgentCount{},
		Actions:         map[string]int64{},
	}
	index := make(map[string]int, days)
	for i := range u.MessagesPerDay {
		d := from.AddDate(0, 0, i).Format(time.DateOnly)
		u.MessagesPerDay[i] = DayCount{Date: d}
		index[d] = i
	}

	// Bucketing happens here rather than in SQL; date functions differ
	// between MySQL, PostgreSQL and SQLite.
	var stamps []time.Time
	if err := store.Scoped(db.Model(&models.Message{}), orgID).
		Where("created_at >= ?", from).
		Pluck("created_at", &stamps).Error; err != nil {
		return nil, err
	}
	for _, ts := range stamps {
		if i, ok := index[ts.UTC().Format(time.DateOnly)]; ok {
			u.MessagesPerDay[i].Count++
			u.Messages++
		}
	}

	err := db.Table("messages AS m").
		Select("m.sender_agent_id AS agent_id, a.name AS name, COUNT(*) AS count").
		Joins("JOIN ai_agents a ON a.id = m.sender_agent_id").
		Where("m.org_id = ? AND m.deleted_at IS NULL AND m.created_at >= ?", orgID, from).
		Group("m.sender_agent_id, a.name").
		Order("count DESC, m.sender_agent_id").
		Scan(&u.MessagesByAgent).Error
	if err != nil {
		return nil, err
	}

	if err := store.Scoped(db.Model(&models.Conversation{}), orgID).
		Where("created_at >= ?", from).
		Count(&u.Conversations).Error; err != nil {
		return nil, err
	}

	for _, st := range models.ActionStatuses {
		u.Actions[string(st)] = 0
	}
	var rows []struct {
		Status string
		N      int64
	}
	if err := store.Scoped(db.Model(&models.PendingAction{}), orgID).
		Where("created_at >= ?", from).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		u.Actions[r.Status] = r.N
	}
	return u, nil
}
