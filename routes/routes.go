package routes

import (
	"cadencecrm/config"
	controller "cadencecrm/controllers"
	"cadencecrm/metrics"
	"cadencecrm/middleware"
	"cadencecrm/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Services bundles the domain services the HTTP layer drives
type Services struct {
	Touches  *services.TouchLog
	Engine   *services.Engine
	Timeline *services.Timeline
	Cadences *services.Cadences
}

// NewServices wires the domain services over db
func NewServices(db *gorm.DB, log *logrus.Logger, opts ...services.Option) Services {
	touches := services.NewTouchLog(db, log.WithField("component", "touches"))
	engine := services.NewEngine(db, touches, log.WithField("component", "engine"), opts...)
	return Services{
		Touches:  touches,
		Engine:   engine,
		Timeline: services.NewTimeline(db),
		Cadences: services.NewCadences(db, engine, log.WithField("component", "cadences")),
	}
}

func SetupRoutes(app *fiber.App, db *gorm.DB, cfg config.Config, svc Services, log *logrus.Logger) {
	app.Use(recover.New())
	app.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins)))
	app.Use(metrics.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	SetupAPIRoutes(app, db, cfg, svc, log)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, cfg config.Config, svc Services, log *logrus.Logger) {
	contactController := controller.NewContactController(db, svc.Engine, cfg.DefaultRegion, log.WithField("controller", "contacts"))
	tagController := controller.NewTagController(db, log.WithField("controller", "tags"))
	templateController := controller.NewTemplateController(db, log.WithField("controller", "templates"))
	cadenceController := controller.NewCadenceController(svc.Cadences, svc.Engine, svc.Timeline, log.WithField("controller", "cadences"))
	stepController := controller.NewStepController(svc.Engine, log.WithField("controller", "steps"))
	touchController := controller.NewTouchController(svc.Touches, log.WithField("controller", "touches"))

	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	if cfg.JWTSecret != "" {
		api.Use(middleware.Protected(cfg.JWTSecret))
	}
	if cfg.RateLimitMax > 0 {
		api.Use(middleware.MutationRateLimiter(cfg.RateLimitMax, middleware.RateLimitStorage(cfg.Redis)))
	}

	// Contact routes
	contact := api.Group("/contacts")
	contact.Post("/", contactController.CreateContact)
	contact.Get("/", contactController.GetContacts)
	contact.Get("/:id", contactController.GetContact)
	contact.Put("/:id", contactController.UpdateContact)
	contact.Delete("/:id", contactController.DeleteContact)
	contact.Post("/:id/tags", contactController.AddTag)
	contact.Delete("/:id/tags/:tagId", contactController.RemoveTag)
	contact.Get("/:id/enrollments", contactController.GetContactEnrollments)
	contact.Get("/:id/touches", touchController.GetContactTouches)

	// Step progression
	contact.Get("/:id/due-steps", stepController.GetDueSteps)
	contact.Post("/:id/steps/:stepId/complete", stepController.CompleteStep)
	contact.Post("/:id/steps/:stepId/skip", stepController.SkipStep)
	contact.Post("/:id/steps/:stepId/postpone", stepController.PostponeStep)
	contact.Post("/:id/steps/:stepId/send-email", stepController.SendStepEmail)

	// Tag routes
	tag := api.Group("/tags")
	tag.Post("/", tagController.CreateTag)
	tag.Get("/", tagController.GetTags)
	tag.Delete("/:id", tagController.DeleteTag)

	// Template routes
	template := api.Group("/templates")
	template.Post("/", templateController.CreateTemplate)
	template.Get("/", templateController.GetTemplates)
	template.Get("/:id", templateController.GetTemplate)
	template.Put("/:id", templateController.UpdateTemplate)
	template.Delete("/:id", templateController.DeleteTemplate)

	// Cadence routes
	cadence := api.Group("/cadences")
	cadence.Post("/", cadenceController.CreateCadence)
	cadence.Get("/", cadenceController.GetCadences)
	cadence.Get("/:id", cadenceController.GetCadence)
	cadence.Put("/:id", cadenceController.UpdateCadence)
	cadence.Delete("/:id", cadenceController.DeleteCadence)
	cadence.Post("/:id/steps", cadenceController.AddStep)
	cadence.Put("/:id/steps/:stepId", cadenceController.UpdateStep)
	cadence.Delete("/:id/steps/:stepId", cadenceController.DeleteStep)
	cadence.Get("/:id/contacts", cadenceController.GetEnrollments)
	cadence.Post("/:id/contacts", cadenceController.EnrollContact)
	cadence.Delete("/:id/contacts/:contactId", cadenceController.RemoveContact)
	cadence.Post("/:id/contacts/:contactId/end", cadenceController.EndEnrollment)
	cadence.Get("/:id/contacts/:contactId/timeline", cadenceController.GetTimeline)

	// Touch routes
	touch := api.Group("/touches")
	touch.Post("/", touchController.LogTouch)
	touch.Get("/:id", touchController.GetTouch)
	touch.Put("/:id", touchController.UpdateTouch)
	touch.Delete("/:id", touchController.DeleteTouch)

	log.Info("API routes initialized successfully")
}
