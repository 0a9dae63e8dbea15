package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "cardvault/pkg/domain"
)

func TestAccessors(t *testing.T) {
	ctx := context.Background()

	t.Run("zero values when unset", func(t *testing.T) {
		assert.True(t, UserID(ctx).IsNil())
		assert.Empty(t, RequestID(ctx))
		assert.Equal(t, Contact{}, UserContact(ctx))
		assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
	})

	t.Run("values round-trip", func(t *testing.T) {
		userID := id.UserID(uuid.New())
		fixed := time.Date(2023, 12, 31, 12, 0, 0, 0, time.UTC)
		ctx := WithUserID(ctx, userID)
		ctx = WithRequestID(ctx, "req-1")
		ctx = WithTime(ctx, fixed)
		ctx = WithUserContact(ctx, Contact{Email: "ana@example.com", FullName: "Ana Díaz"})

		assert.Equal(t, userID, UserID(ctx))
		assert.Equal(t, "req-1", RequestID(ctx))
		assert.Equal(t, fixed, Now(ctx))
		assert.Equal(t, "ana@example.com", UserContact(ctx).Email)
	})
}
