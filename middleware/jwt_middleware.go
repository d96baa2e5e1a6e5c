package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"cdmsuite/config"
	"cdmsuite/models"
	"cdmsuite/utils"
)

// Protected authenticates the request and loads the user into locals.
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Try the Authorization header first, cookie as fallback
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return utils.FailWarn(c, fiber.StatusUnauthorized, utils.CodeUnauthorized, "Invalid authorization format", nil)
			}
			token = tokenParts[1]
		} else {
			token = c.Cookies("access_token")
			if token == "" {
				return utils.FailWarn(c, fiber.StatusUnauthorized, utils.CodeUnauthorized, "Authorization required", nil)
			}
		}

		claims, err := utils.ParseJWTToken(token)
		if err != nil {
			return utils.FailWarn(c, fiber.StatusUnauthorized, utils.CodeUnauthorized, "Invalid or expired token", nil)
		}

		var user models.User
		if err := config.DB.First(&user, claims.UserID).Error; err != nil {
			return utils.FailWarn(c, fiber.StatusForbidden, utils.CodeForbidden, "User not found", logrus.Fields{"user_id": claims.UserID})
		}

		if !user.IsActive {
			return utils.FailWarn(c, fiber.StatusForbidden, utils.CodeForbidden, "Account is not active", logrus.Fields{"user_id": user.ID})
		}

		if claims.TokenVersion != user.TokenVersion {
			return utils.FailWarn(c, fiber.StatusUnauthorized, utils.CodeUnauthorized, "Invalid token version", logrus.Fields{"user_id": user.ID})
		}

		c.Locals("user", &user)
		c.Locals("userID", user.ID)

		return c.Next()
	}
}

// RequireCapability gates CRM mutations: admins always pass, employees need
// the named capability, everyone else is rejected.
func RequireCapability(capability string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := c.Locals("user").(*models.User)
		if !user.HasCapability(capability) {
			return utils.FailWarn(c, fiber.StatusForbidden, utils.CodeInsufficientPermissions, "Your role does not allow this action", logrus.Fields{
				"user_id":    user.ID,
				"role":       user.Role,
				"capability": capability,
			})
		}
		return c.Next()
	}
}
