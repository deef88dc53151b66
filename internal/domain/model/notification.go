package model

import (
	"time"

	"github.com/craftora/marketplace/internal/domain/enums"
)

type Notification struct {
	ID          string                 `json:"id"`
	RecipientID int64                  `json:"recipient_id"`
	Kind        enums.NotificationKind `json:"kind"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Data        map[string]any         `json:"data,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}
