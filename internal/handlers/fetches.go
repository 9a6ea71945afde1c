package handlers

import (
	"context"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jjenkins/tenders/internal/store"
	"github.com/jjenkins/tenders/internal/templates"
)

func FetchesHandler(fetchStore *store.FetchStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := context.Background()

		limit := c.QueryInt("limit", 90)
		if limit < 0 {
			limit = 0
		}

		logs, err := fetchStore.GetRecent(ctx, uint64(limit))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading fetches")
		}

		page := templates.Fetches(logs)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}
