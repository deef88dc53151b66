package notifications

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/craftora/marketplace/internal/domain/enums"
	"github.com/craftora/marketplace/internal/domain/model"
	"github.com/craftora/marketplace/internal/repo/postgres"
)

type stubStore struct {
	inserted []model.Notification
	err      error
}

func (s *stubStore) Insert(_ context.Context, n model.Notification) (model.Notification, error) {
	if s.err != nil {
		return model.Notification{}, s.err
	}
	n.ID = "n-1"
	s.inserted = append(s.inserted, n)
	return n, nil
}

type stubItemStore struct {
	item model.Item
	err  error
}

func (s *stubItemStore) FindByID(_ context.Context, _ string) (model.Item, error) {
	if s.err != nil {
		return model.Item{}, s.err
	}
	return s.item, nil
}

type stubSigner struct {
	object string
	err    error
}

func (s *stubSigner) PresignedGetObject(_ context.Context, bucket, object string, _ time.Duration, _ url.Values) (*url.URL, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.object = object
	return url.Parse("https://cdn.example.com/" + bucket + "/" + object + "?sig=abc")
}

type stubPusher struct {
	texts []string
	err   error
}

func (s *stubPusher) Push(_ context.Context, text string) error {
	if s.err != nil {
		return s.err
	}
	s.texts = append(s.texts, text)
	return nil
}

func settledPurchase() model.Purchase {
	return model.Purchase{
		ID:          "p-1",
		BuyerID:     5,
		ItemID:      "itm-1",
		Amount:      5000,
		PlatformFee: 500,
		PayeePayout: 4500,
		Rail:        enums.RailCard,
		Status:      enums.PurchaseStatusCompleted,
	}
}

func TestPurchaseSettledFiresBothNotifications(t *testing.T) {
	assetKey := "designs/itm-1.zip"
	store := &stubStore{}
	signer := &stubSigner{}
	pusher := &stubPusher{}

	dispatcher, err := NewDispatcher(Config{
		Store:  store,
		Items:  &stubItemStore{item: model.Item{ID: "itm-1", Title: "Poster Pack", PayeeID: 9, AssetObjectKey: &assetKey}},
		Signer: signer,
		Bucket: "assets",
		Pusher: pusher,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	dispatcher.PurchaseSettled(context.Background(), settledPurchase())

	if len(store.inserted) != 2 {
		t.Fatalf("expected sale + purchase notifications, got %d", len(store.inserted))
	}

	sale := store.inserted[0]
	if sale.Kind != enums.NotificationKindSale || sale.RecipientID != 9 {
		t.Fatalf("unexpected sale notification: %+v", sale)
	}
	if sale.Data["payout"] != int64(4500) {
		t.Fatalf("expected payout 4500 in sale data, got %v", sale.Data["payout"])
	}

	buyer := store.inserted[1]
	if buyer.Kind != enums.NotificationKindPurchase || buyer.RecipientID != 5 {
		t.Fatalf("unexpected buyer notification: %+v", buyer)
	}
	link, ok := buyer.Data["download_url"].(string)
	if !ok || link == "" {
		t.Fatalf("expected download url in buyer data, got %v", buyer.Data["download_url"])
	}
	if signer.object != assetKey {
		t.Fatalf("expected presign for %q, got %q", assetKey, signer.object)
	}

	if len(pusher.texts) != 1 {
		t.Fatalf("expected one push, got %d", len(pusher.texts))
	}
}

func TestPurchaseSettledWithoutAssetSkipsLink(t *testing.T) {
	store := &stubStore{}
	dispatcher, err := NewDispatcher(Config{
		Store: store,
		Items: &stubItemStore{item: model.Item{ID: "itm-1", Title: "Poster Pack", PayeeID: 9}},
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	dispatcher.PurchaseSettled(context.Background(), settledPurchase())

	if len(store.inserted) != 2 {
		t.Fatalf("expected both notifications, got %d", len(store.inserted))
	}
	if _, ok := store.inserted[1].Data["download_url"]; ok {
		t.Fatalf("no download url expected without an asset or signer")
	}
}

func TestPurchaseSettledToleratesPushFailure(t *testing.T) {
	store := &stubStore{}
	dispatcher, err := NewDispatcher(Config{
		Store:  store,
		Items:  &stubItemStore{item: model.Item{ID: "itm-1", Title: "Poster Pack", PayeeID: 9}},
		Pusher: &stubPusher{err: errors.New("telegram down")},
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	dispatcher.PurchaseSettled(context.Background(), settledPurchase())

	if len(store.inserted) != 2 {
		t.Fatalf("push failure must not block persisted notifications")
	}
}

func TestPurchaseSettledMissingItemNotifiesNothing(t *testing.T) {
	store := &stubStore{}
	dispatcher, err := NewDispatcher(Config{
		Store: store,
		Items: &stubItemStore{err: postgres.ErrItemNotFound},
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	dispatcher.PurchaseSettled(context.Background(), settledPurchase())

	if len(store.inserted) != 0 {
		t.Fatalf("expected no notifications for a missing item")
	}
}
