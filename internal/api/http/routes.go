package httpapi

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/temperature-history/internal/temperature"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *temperature.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/temperature/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		records, err := service.GetDailyRecords(c.Context(), req.City, req.From, req.To)
		if err != nil {
			return mapServiceError(err)
		}

		return c.JSON(fiber.Map{
			"city":        req.City,
			"from":        formatDate(req.From),
			"to":          formatDate(req.To),
			"recordCount": len(records),
			"records":     records,
		})
	})

	v1.Get("/temperature/metadata", func(c *fiber.Ctx) error {
		city := c.Query("city")
		if err := validate.Var(city, "required"); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "city query parameter is required")
		}

		meta, err := service.GetMetadata(c.Context(), city)
		if err != nil {
			if errors.Is(err, temperature.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no cached data for requested city")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read city metadata")
		}

		return c.JSON(meta)
	})
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, temperature.ErrInvalidRange):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, temperature.ErrLocationNotFound):
		return fiber.NewError(fiber.StatusNotFound, "requested city could not be resolved")
	default:
		return fiber.NewError(fiber.StatusBadGateway, "failed to fetch temperature data")
	}
}

// historyQuery holds query parameters for the history endpoint. From and To
// are optional; the service applies the default historical window.
type historyQuery struct {
	City string `validate:"required"`
	From time.Time
	To   time.Time
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	h.City = c.Query("city")

	if fromStr := c.Query("from"); fromStr != "" {
		from, err := parseDate(fromStr)
		if err != nil {
			return err
		}
		h.From = from
	}
	if toStr := c.Query("to"); toStr != "" {
		to, err := parseDate(toStr)
		if err != nil {
			return err
		}
		h.To = to
	}

	return validate.Struct(h)
}

// parseDate tries calendar-day format first, then RFC3339.
func parseDate(s string) (time.Time, error) {
	if ts, err := time.ParseInLocation(temperature.DateLayout, s, time.UTC); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, errors.New("invalid date format; use YYYY-MM-DD or RFC3339")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(temperature.DateLayout)
}
