package middleware

import (
	"errors"
	"strings"

	"cms-publisher/helper"
	"cms-publisher/models"
	"cms-publisher/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

var HTTPHelper = helper.NewHTTPHelper()

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextRole     = "role"
	ContextPlan     = "plan"
)

// Claims are issued by the external auth service; only the subject is
// trusted, role and plan are reloaded from the user record.
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware resolves the current user from an HS256 bearer token.
func AuthMiddleware(secret string, users services.UserService) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			HTTPHelper.SendUnauthorizedError(c, "Authorization header required", HTTPHelper.EmptyJsonMap())
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			HTTPHelper.SendUnauthorizedError(c, "Bearer token required", HTTPHelper.EmptyJsonMap())
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			HTTPHelper.SendUnauthorizedError(c, "Token is not valid", HTTPHelper.EmptyJsonMap())
			c.Abort()
			return
		}

		user, err := users.GetUserByID(claims.UserID)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				HTTPHelper.SendUnauthorizedError(c, "User not found", HTTPHelper.EmptyJsonMap())
			} else {
				HTTPHelper.SendDatabaseError(c, "Failed to load user", HTTPHelper.EmptyJsonMap())
			}
			c.Abort()
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUsername, user.Username)
		c.Set(ContextRole, string(user.Role))
		c.Set(ContextPlan, user.Plan)

		c.Next()
	}
}

func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get(ContextRole)
		if !exists {
			HTTPHelper.SendUnauthorizedError(c, "User role not found", HTTPHelper.EmptyJsonMap())
			c.Abort()
			return
		}

		roleStr, _ := userRole.(string)
		for _, role := range roles {
			if roleStr == string(role) {
				c.Next()
				return
			}
		}

		HTTPHelper.SendForbidden(c, "Insufficient permissions", HTTPHelper.EmptyJsonMap())
		c.Abort()
	}
}

// UserID returns the resolved user id, or 0 on public routes.
func UserID(c *gin.Context) uint {
	id, _ := c.Get(ContextUserID)
	userID, _ := id.(uint)
	return userID
}

// Plan returns the resolved user's subscription plan.
func Plan(c *gin.Context) models.SubscriptionPlan {
	plan, _ := c.Get(ContextPlan)
	p, _ := plan.(models.SubscriptionPlan)
	return p
}
