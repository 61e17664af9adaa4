package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"

	// MetaCacheHit flags responses served from the Redis read cache.
	MetaCacheHit = "cache_hit"
	// MetaIsDefault flags grading scales that fell back to the built-in bands.
	MetaIsDefault = "is_default"
	// MetaProcessingTime is filled in once the handler chain returns.
	MetaProcessingTime = "processing_time_ms"
)

// WithResponseMeta gives every request a meta map that handlers can annotate.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
		meta := ensureMeta(c)
		if _, exists := meta[MetaProcessingTime]; !exists {
			meta[MetaProcessingTime] = time.Since(start).Milliseconds()
		}
	}
}

// SetMeta stores a single meta entry for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if key == "" {
		return
	}
	ensureMeta(c)[key] = value
}

// SetCacheHit records whether the payload came from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, MetaCacheHit, hit)
}

// ExtractMeta returns the meta map, or nil when none was started.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok && len(typed) > 0 {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	created := make(map[string]interface{})
	c.Set(responseMetaKey, created)
	return created
}
