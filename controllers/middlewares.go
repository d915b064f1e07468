package controllers

import (
	"fmt"
	"log"

	"closetapi/models"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

func UserMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		db := c.Get("__db").(*gorm.DB)
		userRaw := c.Get("user")
		if userRaw == nil {
			return echo.ErrUnauthorized
		}
		user := userRaw.(*jwt.Token)
		claims := user.Claims.(jwt.MapClaims)
		userId := claims["sub"]
		if userId == nil || userId == "" {
			log.Println("Error while getting the token information!")
			return echo.ErrUnauthorized
		}

		var currentUser models.UserAccount
		if err := db.First(&currentUser, "id = ?", userId).Error; err != nil {
			return echo.ErrUnauthorized
		}
		if currentUser.Banned {
			return echo.ErrUnauthorized
		}

		c.Set("currentUser", currentUser)
		fmt.Printf("Fetched user %s \n", currentUser.Name)
		return next(c)
	}
}

// BypassUserMiddleware binds every request to a fixed local account. Only
// wired in when AUTH_BYPASS=true for single-user/offline deployments.
func BypassUserMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		db := c.Get("__db").(*gorm.DB)

		var localUser models.UserAccount
		err := db.Where("email = ?", "local@closet").First(&localUser).Error
		if err == gorm.ErrRecordNotFound {
			localUser = models.UserAccount{Name: "Local", Email: "local@closet", Status: "FINISHED_AUTH"}
			if err := db.Create(&localUser).Error; err != nil {
				return echo.ErrInternalServerError
			}
		} else if err != nil {
			return echo.ErrInternalServerError
		}

		c.Set("currentUser", localUser)
		return next(c)
	}
}
