package server

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sw33tLie/stockfinder/internal/utils"
	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/storage"
	"golang.org/x/crypto/bcrypt"
)

type Server struct {
	DB       *storage.DB
	Registry *sources.Registry
	Username string
	// PasswordHash is a bcrypt hash. Auth is disabled when both Username
	// and PasswordHash are empty.
	PasswordHash string

	validate *validator.Validate
}

func New(db *storage.DB, registry *sources.Registry, user, passwordHash string) *Server {
	return &Server{
		DB:           db,
		Registry:     registry,
		Username:     user,
		PasswordHash: passwordHash,
		validate:     validator.New(),
	}
}

// App builds the fiber application with every API route.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             1 << 20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				utils.Log.WithField("path", c.Path()).Errorf("request failed: %v", err)
				return c.Status(code).JSON(fiber.Map{"error": "internal error"})
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(recover.New())
	app.Use(requestid.New())

	api := app.Group("/api")
	if s.Username != "" || s.PasswordHash != "" {
		api.Use(basicauth.New(basicauth.Config{
			Realm:      "Restricted",
			Authorizer: s.authorize,
		}))
	}
	api.Get("/stats", s.handleStats)
	api.Get("/alerts", s.handleAlerts)
	api.Get("/availabilities", s.handleAvailabilities)
	api.Post("/watches", s.handleAddWatch)
	return app
}

func (s *Server) authorize(user, pass string) bool {
	if user != s.Username {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte(pass)) == nil
}

// Start serves the API on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	app := s.App()
	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			utils.Log.Warnf("server shutdown: %v", err)
		}
	}()
	utils.Log.Infof("Starting server on %s", addr)
	return app.Listen(addr)
}
