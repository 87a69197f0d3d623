package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"storefront/internal/kvstore"

	"go.uber.org/zap"
)

// readJSON decodes key into v, which must be a non-nil pointer. Decoding
// happens on a copy, so a missing key or malformed JSON leaves v untouched
// and reports false; only store failures are errors.
func readJSON(ctx context.Context, store kvstore.Store, logger *zap.Logger, key string, v any) (bool, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}

	target := reflect.ValueOf(v).Elem()
	fresh := reflect.New(target.Type())
	fresh.Elem().Set(target)
	if err := json.Unmarshal(raw, fresh.Interface()); err != nil {
		logger.Debug("Treating malformed cache entry as absent", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	target.Set(fresh.Elem())
	return true, nil
}

func writeJSON(ctx context.Context, store kvstore.Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return store.Set(ctx, key, raw)
}
