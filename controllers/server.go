package controllers

import (
	"net/http"
	"os"

	"closetapi/models"
	"closetapi/services"

	"github.com/go-playground/validator"
	"github.com/hibiken/asynq"
	echojwt "github.com/labstack/echo-jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func SetupServer(
	db *gorm.DB,
	gateway *services.VisionGateway,
	outfitLLM services.OutfitLLM,
	awsService services.AWSServiceProvider,
	asynqClient *asynq.Client,
	urlCache services.URLCacheServiceProvider,
) *echo.Echo {

	e := echo.New()
	v := validator.New()
	v.RegisterValidation("behavior_action", models.ValidateBehaviorAction)
	v.RegisterValidation("behavior_target", models.ValidateBehaviorTargetType)
	v.RegisterValidation("garment_category", models.ValidateGarmentCategory)
	e.Validator = &CustomValidator{validator: v}

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("__db", db)
			c.Set("__asynqclient", asynqClient)
			return next(c)
		}
	})

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "db unreachable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	authController := AuthController{}
	authController.AuthRoutes(e.Group("auth"))

	closetGroup := e.Group("closet")
	if services.GetEnv("AUTH_BYPASS", "") == "true" {
		// single-user / offline deployments skip token auth entirely
		closetGroup.Use(BypassUserMiddleware)
	} else {
		closetGroup.Use(echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))), UserMiddleware)
	}

	garmentsController := GarmentsController{AWSService: awsService, Gateway: gateway, URLCache: urlCache}
	garmentsController.GarmentRoutes(closetGroup.Group("/garments"))

	behaviorController := BehaviorController{}
	behaviorController.BehaviorRoutes(closetGroup.Group("/behavior"))

	outfitsController := OutfitsController{LLM: outfitLLM}
	outfitsController.OutfitRoutes(closetGroup.Group("/outfits"))

	adminGroup := closetGroup.Group("/admin")
	adminGroup.GET("/vision-metrics", func(c echo.Context) error {
		return c.JSON(http.StatusOK, gateway.MetricsSnapshot())
	})

	return e
}
