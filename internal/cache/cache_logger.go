package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateTemplateCache invalidates all caches touching one template
func InvalidateTemplateCache(ctx context.Context, cm *CacheManager, templateID uint) {
	SafeDelete(ctx, cm.Template,
		fmt.Sprintf("id:%d", templateID),
		fmt.Sprintf("tree:%d", templateID))
	SafeInvalidatePattern(ctx, cm.Template, fmt.Sprintf("history:%d*", templateID))
	SafeInvalidatePattern(ctx, cm.Template, "list:*")
}

// InvalidateInstanceCache invalidates all caches touching one instance
func InvalidateInstanceCache(ctx context.Context, cm *CacheManager, instanceID uint, userID string) {
	SafeDelete(ctx, cm.Instance,
		fmt.Sprintf("id:%d", instanceID),
		fmt.Sprintf("tree:%d", instanceID))
	SafeInvalidatePattern(ctx, cm.Instance, fmt.Sprintf("user:%s:*", userID))
}
