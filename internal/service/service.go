// Package service implements the catalog, recommendation, banner and
// strip lanes. Every mutation commits to the local cache first, then
// queues the remote copy and broadcasts the lane's refresh signal.
package service

import (
	"encoding/json"

	"storefront/internal/events"
	"storefront/internal/outbox"
)

// Remote collections
const (
	CollectionProducts       = "products"
	CollectionContent        = "content"
	CollectionBanners        = "banners"
	CollectionFooterBanners  = "footer_banners"
	CollectionStrips         = "strips"
	RecommendationsContentID = "gang-boyz-recommendations"
)

// Publisher broadcasts refresh signals
type Publisher interface {
	Publish(signal events.Signal, detail map[string]any) events.Event
}

// RemoteQueue accepts remote writes to apply after the local commit
type RemoteQueue interface {
	Enqueue(op outbox.Operation)
}

func enqueuePut(queue RemoteQueue, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	queue.Enqueue(outbox.Operation{
		Kind:       outbox.KindPut,
		Collection: collection,
		ID:         id,
		Data:       data,
	})
	return nil
}

func enqueueDelete(queue RemoteQueue, collection, id string) {
	queue.Enqueue(outbox.Operation{
		Kind:       outbox.KindDelete,
		Collection: collection,
		ID:         id,
	})
}
