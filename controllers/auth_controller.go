package controller

import (
	"log"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"cdmsuite/models"
	"cdmsuite/utils"
)

type AuthController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAuthController(db *gorm.DB, logger *log.Logger) *AuthController {
	return &AuthController{DB: db, Logger: logger}
}

const refreshTokenTTL = 7 * 24 * time.Hour

// Register creates a new console account. Role defaults to client; admin and
// employee accounts are provisioned by an existing admin through the same
// endpoint.
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var input struct {
		Email        string   `json:"email" validate:"required,email"`
		Password     string   `json:"password" validate:"required,min=8,max=72"`
		Name         string   `json:"name" validate:"required,max=200"`
		Role         string   `json:"role" validate:"omitempty,oneof=admin employee client"`
		Capabilities []string `json:"capabilities"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), nil)
	}

	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := checkmail.ValidateFormat(input.Email); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeInvalidFormat, "Invalid email address", logrus.Fields{"email": input.Email})
	}

	role := input.Role
	if role == "" {
		role = models.RoleClient
	}

	// Privileged roles require an authenticated admin caller
	if role != models.RoleClient {
		caller, ok := c.Locals("user").(*models.User)
		if !ok || caller.Role != models.RoleAdmin {
			return utils.FailWarn(c, fiber.StatusForbidden, utils.CodeInsufficientPermissions,
				"Only admins can create admin or employee accounts", logrus.Fields{"email": input.Email, "role": role})
		}
	}

	var existing models.User
	if err := ac.DB.Where("email = ?", input.Email).First(&existing).Error; err == nil {
		return utils.FailWarn(c, fiber.StatusConflict, utils.CodeDuplicateEntry, "Email already registered", logrus.Fields{"email": input.Email})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to create account", err, nil)
	}

	user := models.User{
		Email:        input.Email,
		PasswordHash: string(hash),
		Name:         input.Name,
		Role:         role,
		Capabilities: input.Capabilities,
		IsActive:     true,
	}

	if err := ac.DB.Create(&user).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to create account", err, logrus.Fields{"email": input.Email})
	}

	ac.Logger.Printf("User registered: %s (%s)", user.Email, user.Role)
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(user))
}

// Login verifies credentials and issues a token pair. The refresh token is
// stored server-side so it can be revoked.
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var input struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "Invalid request body", nil)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, err.Error(), nil)
	}

	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	var user models.User
	if err := ac.DB.Where("email = ?", input.Email).First(&user).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusUnauthorized, utils.CodeUnauthorized, "Invalid email or password", logrus.Fields{"email": input.Email})
	}
	if !user.IsActive {
		return utils.FailWarn(c, fiber.StatusUnauthorized, utils.CodeUnauthorized, "Account is deactivated", logrus.Fields{"email": input.Email})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return utils.FailWarn(c, fiber.StatusUnauthorized, utils.CodeUnauthorized, "Invalid email or password", logrus.Fields{"email": input.Email})
	}

	accessToken, refreshToken, err := utils.GenerateJWTToken(&user)
	if err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to issue tokens", err, logrus.Fields{"user_id": user.ID})
	}

	record := models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: time.Now().UTC().Add(refreshTokenTTL),
	}
	if err := ac.DB.Create(&record).Error; err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to issue tokens", err, logrus.Fields{"user_id": user.ID})
	}

	setAuthCookies(c, accessToken, refreshToken)

	return c.JSON(fiber.Map{
		"success":       true,
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user":          user,
	})
}

// RefreshToken rotates the token pair. The presented refresh token must exist
// server-side, be unrevoked and unexpired; it is revoked on use.
func (ac *AuthController) RefreshToken(c *fiber.Ctx) error {
	var input struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&input); err != nil || input.RefreshToken == "" {
		input.RefreshToken = c.Cookies("refresh_token")
	}
	if input.RefreshToken == "" {
		return utils.FailWarn(c, fiber.StatusBadRequest, utils.CodeValidationFailed, "refresh_token is required", nil)
	}

	var record models.RefreshToken
	if err := ac.DB.Where("token = ?", input.RefreshToken).First(&record).Error; err != nil {
		return utils.FailWarn(c, fiber.StatusUnauthorized, utils.CodeUnauthorized, "Invalid refresh token", nil)
	}
	if record.RevokedAt != nil || time.Now().After(record.ExpiresAt) {
		return utils.FailWarn(c, fiber.StatusUnauthorized, utils.CodeUnauthorized, "Refresh token expired or revoked", logrus.Fields{"user_id": record.UserID})
	}

	accessToken, refreshToken, err := utils.RefreshTokens(input.RefreshToken)
	if err != nil {
		return utils.FailWarn(c, fiber.StatusUnauthorized, utils.CodeUnauthorized, "Invalid refresh token", logrus.Fields{"user_id": record.UserID})
	}

	now := time.Now().UTC()
	err = ac.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&record).UpdateColumn("revoked_at", now).Error; err != nil {
			return err
		}
		return tx.Create(&models.RefreshToken{
			UserID:    record.UserID,
			Token:     refreshToken,
			ExpiresAt: now.Add(refreshTokenTTL),
		}).Error
	})
	if err != nil {
		return utils.FailError(c, fiber.StatusInternalServerError, utils.CodeDatabaseError, "Failed to rotate tokens", err, logrus.Fields{"user_id": record.UserID})
	}

	setAuthCookies(c, accessToken, refreshToken)

	return c.JSON(fiber.Map{
		"success":       true,
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

// Logout revokes the active refresh token and clears session cookies.
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	if token := c.Cookies("refresh_token"); token != "" {
		ac.DB.Model(&models.RefreshToken{}).
			Where("token = ? AND revoked_at IS NULL", token).
			UpdateColumn("revoked_at", time.Now().UTC())
	}

	c.ClearCookie("access_token", "refresh_token")
	return c.JSON(fiber.Map{"success": true, "message": "Logged out"})
}

// GetCurrentUser returns the authenticated account.
func (ac *AuthController) GetCurrentUser(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	return c.JSON(utils.SuccessResponse(user))
}

func setAuthCookies(c *fiber.Ctx, accessToken, refreshToken string) {
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Expires:  time.Now().Add(15 * time.Minute),
		HTTPOnly: true,
		SameSite: "Lax",
	})
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Expires:  time.Now().Add(refreshTokenTTL),
		HTTPOnly: true,
		SameSite: "Lax",
	})
}
