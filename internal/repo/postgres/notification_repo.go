package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftora/marketplace/internal/domain/enums"
	"github.com/craftora/marketplace/internal/domain/model"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

func (r *NotificationRepo) Insert(ctx context.Context, n model.Notification) (model.Notification, error) {
	if r.pool == nil {
		return model.Notification{}, fmt.Errorf("postgres pool is nil")
	}
	if n.RecipientID <= 0 || strings.TrimSpace(n.Title) == "" {
		return model.Notification{}, fmt.Errorf("invalid notification payload")
	}
	switch n.Kind {
	case enums.NotificationKindSale, enums.NotificationKindPurchase, enums.NotificationKindSystem:
	default:
		return model.Notification{}, fmt.Errorf("invalid notification kind: %s", n.Kind)
	}

	dataJSON, err := marshalNotificationData(n.Data)
	if err != nil {
		return model.Notification{}, err
	}

	var kind string
	out := n
	out.ID = uuid.NewString()
	err = r.pool.QueryRow(ctx, `
INSERT INTO notifications (id, recipient_id, kind, title, message, data, created_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, NOW())
RETURNING id, recipient_id, kind, title, message, created_at
`, out.ID, n.RecipientID, string(n.Kind), strings.TrimSpace(n.Title), n.Message, dataJSON).Scan(
		&out.ID,
		&out.RecipientID,
		&kind,
		&out.Title,
		&out.Message,
		&out.CreatedAt,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	out.Kind = enums.NotificationKind(kind)

	return out, nil
}

func marshalNotificationData(data map[string]any) (string, error) {
	if len(data) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal notification data: %w", err)
	}
	return string(raw), nil
}
