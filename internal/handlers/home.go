package handlers

import (
	"context"
	"log"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jjenkins/tenders/internal/service"
	"github.com/jjenkins/tenders/internal/store"
	"github.com/jjenkins/tenders/internal/templates"
)

func HomeHandler(tenderStore *store.TenderStore, fetchStore *store.FetchStore, metrics *service.MetricsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := context.Background()

		m := templates.HomeMetrics{}

		totalTenders, err := tenderStore.CountTenders(ctx)
		if err != nil {
			log.Printf("Error counting tenders: %v", err)
		} else {
			m.TotalTenders = totalTenders
			m.HasData = totalTenders > 0
		}

		if m.HasData {
			byStatus, err := tenderStore.CountByStatus(ctx)
			if err != nil {
				log.Printf("Error counting tenders by status: %v", err)
			} else {
				m.ByStatus = byStatus
			}

			failed, err := fetchStore.CountFailed(ctx)
			if err != nil {
				log.Printf("Error counting failed fetches: %v", err)
			} else {
				m.FailedFetches = failed
			}

			lastRun, err := metrics.GetLatestMetrics(ctx)
			if err != nil {
				log.Printf("Error loading metrics: %v", err)
			} else {
				m.LastRun = lastRun
			}
		}

		page := templates.Home(m)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}
