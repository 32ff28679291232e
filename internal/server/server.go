package server

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"podhound/internal/debuglog"
	"podhound/internal/feed"
	"podhound/internal/search"
	"podhound/internal/storage"
)

// Config carries the server's collaborators. Search may be nil when no
// index path is configured; the search route then reports 503.
type Config struct {
	Store    *storage.Store
	Manager  *feed.Manager
	Searcher search.Searcher
}

type discoverRequest struct {
	URL string `json:"url"`
}

type addFeedRequest struct {
	URL string `json:"url"`
}

// New builds the fiber app with all API routes wired.
func New(cfg *Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		debuglog.WithFields(map[string]any{
			"method":  c.Method(),
			"path":    c.Path(),
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Infof("request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))

	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/api/discover", func(c *fiber.Ctx) error {
		var req discoverRequest
		if err := c.BodyParser(&req); err != nil || req.URL == "" {
			return errorJSON(c, fiber.StatusBadRequest, "url is required")
		}

		feeds, err := cfg.Manager.Discover(c.UserContext(), req.URL)
		if err != nil {
			return errorJSON(c, statusForError(err), err.Error())
		}
		return c.JSON(feeds)
	})

	app.Get("/api/feeds", func(c *fiber.Ctx) error {
		feeds, err := cfg.Store.GetAllFeeds()
		if err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, err.Error())
		}
		if feeds == nil {
			feeds = []*storage.Feed{}
		}
		return c.JSON(feeds)
	})

	app.Post("/api/feeds", func(c *fiber.Ctx) error {
		var req addFeedRequest
		if err := c.BodyParser(&req); err != nil || req.URL == "" {
			return errorJSON(c, fiber.StatusBadRequest, "url is required")
		}

		added, err := cfg.Manager.AddFeed(c.UserContext(), req.URL)
		if err != nil {
			return errorJSON(c, statusForError(err), err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(added)
	})

	app.Delete("/api/feeds/:id", func(c *fiber.Ctx) error {
		if err := cfg.Manager.DeleteFeed(c.Params("id")); err != nil {
			if errors.Is(err, storage.ErrFeedNotFound) {
				return errorJSON(c, fiber.StatusNotFound, "feed not found")
			}
			return errorJSON(c, fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"message": "feed removed"})
	})

	app.Get("/api/feeds/:id/episodes", func(c *fiber.Ctx) error {
		if _, err := cfg.Store.GetFeed(c.Params("id")); err != nil {
			if errors.Is(err, storage.ErrFeedNotFound) {
				return errorJSON(c, fiber.StatusNotFound, "feed not found")
			}
			return errorJSON(c, fiber.StatusInternalServerError, err.Error())
		}

		limit := 50
		if l := c.Query("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		episodes, err := cfg.Store.GetEpisodes(c.Params("id"), limit)
		if err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, err.Error())
		}
		if episodes == nil {
			episodes = []*storage.Episode{}
		}
		return c.JSON(episodes)
	})

	app.Post("/api/feeds/:id/refresh", func(c *fiber.Ctx) error {
		if _, err := cfg.Store.GetFeed(c.Params("id")); err != nil {
			if errors.Is(err, storage.ErrFeedNotFound) {
				return errorJSON(c, fiber.StatusNotFound, "feed not found")
			}
			return errorJSON(c, fiber.StatusInternalServerError, err.Error())
		}

		result, err := cfg.Manager.RefreshFeed(c.UserContext(), c.Params("id"))
		if err != nil {
			return errorJSON(c, statusForError(err), err.Error())
		}
		return c.JSON(result)
	})

	app.Post("/api/refresh", func(c *fiber.Ctx) error {
		outcomes, err := cfg.Manager.RefreshAll(c.UserContext())
		if outcomes == nil {
			outcomes = []*feed.RefreshOutcome{}
		}
		if err != nil {
			// Partial failure: the outcomes carry per-feed errors
			return c.Status(fiber.StatusMultiStatus).JSON(outcomes)
		}
		return c.JSON(outcomes)
	})

	app.Get("/api/search/stats", func(c *fiber.Ctx) error {
		if cfg.Searcher == nil {
			return errorJSON(c, fiber.StatusServiceUnavailable, "search index not configured")
		}
		stats, ok := cfg.Searcher.(search.DebugStatser)
		if !ok {
			return errorJSON(c, fiber.StatusServiceUnavailable, "search index does not report stats")
		}

		count, err := stats.DocCount()
		if err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"documents": count})
	})

	app.Get("/api/search", func(c *fiber.Ctx) error {
		if cfg.Searcher == nil {
			return errorJSON(c, fiber.StatusServiceUnavailable, "search index not configured")
		}

		query := c.Query("q")
		if query == "" {
			return errorJSON(c, fiber.StatusBadRequest, "q is required")
		}

		limit := 25
		if l := c.Query("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		results, err := cfg.Searcher.Search(query, limit)
		if err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(results)
	})

	return app
}

// statusForError maps the feed error taxonomy onto HTTP statuses: bad input
// is the client's to fix, fetch failures are upstream trouble, parse
// failures mean the URL does not point at usable content.
func statusForError(err error) int {
	var invalidErr *feed.InvalidInputError
	var fetchErr *feed.FetchError
	var parseErr *feed.ParseError

	switch {
	case errors.As(err, &invalidErr):
		return fiber.StatusBadRequest
	case errors.As(err, &fetchErr):
		return fiber.StatusBadGateway
	case errors.As(err, &parseErr):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
