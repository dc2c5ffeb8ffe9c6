package api

import (
	"net/http"

	"meetscribe/internal/model"
	"meetscribe/internal/pipeline"
	"meetscribe/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const userKey = "meetscribe.user"

// identityMiddleware extracts the authenticated identity supplied by the
// upstream authenticator. Authentication itself happens before this
// service; here we only require that the identity headers are present and
// well-formed.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		idStr := c.GetHeader("X-User-ID")
		if idStr == "" {
			idStr = c.Query("user_id")
		}
		if idStr == "" {
			utils.Error(c, http.StatusBadRequest, "user identity is required (X-User-ID header)")
			c.Abort()
			return
		}

		userID, err := uuid.Parse(idStr)
		if err != nil {
			utils.Error(c, http.StatusBadRequest, "invalid user id format")
			c.Abort()
			return
		}

		tier := c.GetHeader("X-User-Tier")
		switch tier {
		case model.TierFree, model.TierPro, model.TierAdmin:
		case "":
			tier = model.TierFree
		default:
			utils.Error(c, http.StatusBadRequest, "unknown tier "+tier)
			c.Abort()
			return
		}

		c.Set(userKey, pipeline.User{ID: userID, Tier: tier})
		c.Next()
	}
}

func currentUser(c *gin.Context) pipeline.User {
	u, _ := c.Get(userKey)
	user, _ := u.(pipeline.User)
	return user
}
