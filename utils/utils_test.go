package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToPtr(t *testing.T) {
	p := ToPtr(42)
	assert.Equal(t, 42, *p)
	assert.NotSame(t, ToPtr(42), p)
}

func TestStringFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, TimeoutKey, time.Second)

	assert.Equal(t, "req-1", StringFromContext(ctx, RequestIDKey))
	assert.Equal(t, "", StringFromContext(ctx, TimeoutKey))
	assert.Equal(t, "", StringFromContext(ctx, UserAgentKey))
}

func TestUTCNow(t *testing.T) {
	assert.Equal(t, time.UTC, UTCNow().Location())
	assert.WithinDuration(t, time.Now(), *UTCNowPtr(), time.Second)
}
