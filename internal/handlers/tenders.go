package handlers

import (
	"context"
	"net/url"
	"strconv"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jjenkins/tenders/internal/store"
	"github.com/jjenkins/tenders/internal/templates"
)

const tenderPageSize = 500

func TendersHandler(tenderStore *store.TenderStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := context.Background()

		filter := templates.TenderFilter{
			SortBy: c.Query("sort", "published"),
			Order:  c.Query("order", "desc"),
		}
		if s := c.Query("status"); s != "" {
			status, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).SendString("Invalid status code")
			}
			filter.Status = status
		}

		tenders, err := tenderStore.GetAllSorted(ctx, store.ListOptions{
			SortBy:     filter.SortBy,
			Order:      filter.Order,
			StatusCode: filter.Status,
			Limit:      tenderPageSize,
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading tenders")
		}

		// Check if this is an HTMX request for just the table body
		if c.Get("HX-Request") == "true" {
			page := templates.TendersTableBody(tenders)
			handler := adaptor.HTTPHandler(templ.Handler(page))
			return handler(c)
		}

		page := templates.Tenders(tenders, filter)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}

func TenderDetailHandler(tenderStore *store.TenderStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := context.Background()

		code, err := url.PathUnescape(c.Params("code"))
		if err != nil || code == "" {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid tender code")
		}

		tender, err := tenderStore.GetByCode(ctx, code)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading tender")
		}
		if tender == nil {
			return c.Status(fiber.StatusNotFound).SendString("Tender not found")
		}

		page := templates.TenderDetail(tender)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}
