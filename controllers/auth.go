package controllers

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"closetapi/models"

	"github.com/getsentry/sentry-go"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthController struct{}

func (controller *AuthController) AuthRoutes(g *echo.Group) {
	g.POST("/signup", controller.SignUp)
	g.POST("/login", controller.Login)
}

func issueAccessToken(userID uint) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}

func (controller *AuthController) SignUp(c echo.Context) error {
	var req models.SignUpIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var existing models.UserAccount
	if err := db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "An account with this email already exists"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create account"})
	}

	user := models.UserAccount{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashed),
		Status:   "FINISHED_AUTH",
		LastIp:   c.RealIP(),
	}
	if err := db.Create(&user).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create account"})
	}

	accessToken, err := issueAccessToken(user.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to issue token"})
	}
	return c.JSON(http.StatusCreated, models.AuthOut{
		Id:          strconv.FormatUint(uint64(user.ID), 10),
		Email:       user.Email,
		Name:        user.Name,
		New:         true,
		AccessToken: accessToken,
	})
}

func (controller *AuthController) Login(c echo.Context) error {
	var req models.LoginIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var user models.UserAccount
	if err := db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
	}
	if user.Banned {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
	}

	user.LastIp = c.RealIP()
	if err := db.Save(&user).Error; err != nil {
		fmt.Printf("[User %v] Failed to update last ip: %v\n", user.ID, err)
	}

	accessToken, err := issueAccessToken(user.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to issue token"})
	}
	return c.JSON(http.StatusOK, models.AuthOut{
		Id:          strconv.FormatUint(uint64(user.ID), 10),
		Email:       user.Email,
		Name:        user.Name,
		AccessToken: accessToken,
	})
}
