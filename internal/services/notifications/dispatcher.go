package notifications

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/craftora/marketplace/internal/domain/enums"
	"github.com/craftora/marketplace/internal/domain/model"
)

type NotificationStore interface {
	Insert(ctx context.Context, n model.Notification) (model.Notification, error)
}

type ItemStore interface {
	FindByID(ctx context.Context, itemID string) (model.Item, error)
}

// LinkSigner issues a time-limited download URL for a stored asset. The minio
// client satisfies this directly.
type LinkSigner interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

type Pusher interface {
	Push(ctx context.Context, text string) error
}

// Dispatcher fires the once-per-settled-row notification pair: a sale for the
// payee and a purchase for the buyer. Everything here is best effort; a
// notification failure never rolls back a settled purchase, so errors are
// logged and swallowed.
type Dispatcher struct {
	store   NotificationStore
	items   ItemStore
	signer  LinkSigner
	bucket  string
	linkTTL time.Duration
	pusher  Pusher
	logger  *zap.Logger
}

type Config struct {
	Store   NotificationStore
	Items   ItemStore
	Signer  LinkSigner
	Bucket  string
	LinkTTL time.Duration
	Pusher  Pusher
	Logger  *zap.Logger
}

func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Store == nil || cfg.Items == nil {
		return nil, fmt.Errorf("notification dispatcher dependencies are incomplete")
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Dispatcher{
		store:   cfg.Store,
		items:   cfg.Items,
		signer:  cfg.Signer,
		bucket:  cfg.Bucket,
		linkTTL: cfg.LinkTTL,
		pusher:  cfg.Pusher,
		logger:  cfg.Logger,
	}, nil
}

func (d *Dispatcher) PurchaseSettled(ctx context.Context, purchase model.Purchase) {
	item, err := d.items.FindByID(ctx, purchase.ItemID)
	if err != nil {
		d.logger.Error("load item for settled purchase",
			zap.String("item_id", purchase.ItemID),
			zap.String("purchase_id", purchase.ID),
			zap.Error(err),
		)
		return
	}

	saleData := map[string]any{
		"purchase_id": purchase.ID,
		"item_id":     item.ID,
		"amount":      purchase.Amount,
		"payout":      purchase.PayeePayout,
		"rail":        string(purchase.Rail),
	}
	d.insert(ctx, model.Notification{
		RecipientID: item.PayeeID,
		Kind:        enums.NotificationKindSale,
		Title:       "Your design sold",
		Message:     fmt.Sprintf("%s sold for %s. Your payout is %s.", item.Title, formatMinor(purchase.Amount), formatMinor(purchase.PayeePayout)),
		Data:        saleData,
	})

	buyerData := map[string]any{
		"purchase_id": purchase.ID,
		"item_id":     item.ID,
		"amount":      purchase.Amount,
		"rail":        string(purchase.Rail),
	}
	if link := d.downloadLink(ctx, item); link != "" {
		buyerData["download_url"] = link
	}
	d.insert(ctx, model.Notification{
		RecipientID: purchase.BuyerID,
		Kind:        enums.NotificationKindPurchase,
		Title:       "Purchase complete",
		Message:     fmt.Sprintf("You bought %s for %s.", item.Title, formatMinor(purchase.Amount)),
		Data:        buyerData,
	})

	if d.pusher != nil {
		text := fmt.Sprintf("Sold: %s for %s via %s", item.Title, formatMinor(purchase.Amount), purchase.Rail)
		if err := d.pusher.Push(ctx, text); err != nil {
			d.logger.Warn("push sale announcement", zap.String("purchase_id", purchase.ID), zap.Error(err))
		}
	}
}

func (d *Dispatcher) insert(ctx context.Context, n model.Notification) {
	if _, err := d.store.Insert(ctx, n); err != nil {
		d.logger.Error("insert notification",
			zap.Int64("recipient_id", n.RecipientID),
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) downloadLink(ctx context.Context, item model.Item) string {
	if d.signer == nil || d.bucket == "" || item.AssetObjectKey == nil || *item.AssetObjectKey == "" {
		return ""
	}

	link, err := d.signer.PresignedGetObject(ctx, d.bucket, *item.AssetObjectKey, d.linkTTL, nil)
	if err != nil {
		d.logger.Warn("presign asset download link",
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
		return ""
	}

	return link.String()
}

func formatMinor(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s$%d.%02d", sign, amount/100, amount%100)
}
