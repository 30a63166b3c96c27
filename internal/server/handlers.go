package server

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/storage"
)

type statsResponse struct {
	Sources []storage.SourceStats `json:"sources"`
	Channel storage.QueueStats    `json:"channel_queue"`
	User    storage.QueueStats    `json:"user_queue"`
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.DB.GetStats(c.UserContext())
	if err != nil {
		return err
	}
	channel, user, err := s.DB.GetQueueStats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(statsResponse{Sources: stats, Channel: channel, User: user})
}

func (s *Server) handleAlerts(c *fiber.Ctx) error {
	var userID int64
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "user_id must be a positive integer")
		}
		userID = id
	}
	alerts, err := s.DB.ListAlerts(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(alerts)
}

func (s *Server) handleAvailabilities(c *fiber.Ctx) error {
	opts := storage.ListOptions{
		InStockOnly: c.Query("in_stock") == "true",
		Limit:       c.QueryInt("limit", 100),
	}
	if name := c.Query("source"); name != "" {
		a, err := s.Registry.Get(name)
		if errors.Is(err, sources.ErrUnknownSource) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return err
		}
		opts.SourceID = a.Source().ID
	}
	list, err := s.DB.ListAvailabilities(c.UserContext(), opts)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

type WatchRequest struct {
	URL             string  `json:"url" validate:"required,url"`
	UserID          int64   `json:"user_id" validate:"required,gt=0"`
	MaxPrice        float64 `json:"max_price" validate:"gt=0"`
	AlertByEmail    bool    `json:"alert_by_email"`
	AlertByTelegram bool    `json:"alert_by_telegram"`
}

type watchResponse struct {
	ID     int64  `json:"id"`
	Source string `json:"source"`
}

func (s *Server) handleAddWatch(c *fiber.Ctx) error {
	var req WatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	a, ok := s.Registry.Resolve(req.URL)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "url does not belong to a known source")
	}

	id, err := s.DB.EnqueueUserEntry(c.UserContext(), storage.UserEntry{
		URL:             req.URL,
		UserID:          req.UserID,
		MaxPrice:        req.MaxPrice,
		AlertByEmail:    req.AlertByEmail,
		AlertByTelegram: req.AlertByTelegram,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(watchResponse{ID: id, Source: a.Source().Name})
}
