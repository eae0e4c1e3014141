package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/yourusername/bookflow/internal/models"
)

// ContextUserKey は、ハンドラー間でログイン済み利用者を共有するためのキーです。
const ContextUserKey = "auth.user"

// CurrentUser は RequireLogin が設定した利用者を返します。
func CurrentUser(c *gin.Context) (models.PublicUser, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return models.PublicUser{}, false
	}
	user, ok := v.(models.PublicUser)
	return user, ok
}

func setCurrentUser(c *gin.Context, user models.PublicUser) {
	c.Set(ContextUserKey, user)
}
