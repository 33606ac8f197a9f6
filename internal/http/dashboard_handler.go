package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"github.com/Riken-Shah/finding-me/internal/metrics"
	"github.com/Riken-Shah/finding-me/internal/pkg/async"
	"github.com/Riken-Shah/finding-me/internal/timeframe"
)

// DashboardResponse is the full metrics payload for one time window. Empty
// result sets come back as empty arrays and zeroed scalars, never null.
type DashboardResponse struct {
	Retention       metrics.RetentionMetrics `json:"retention"`
	Pages           []metrics.PageMetric     `json:"pages"`
	NavigationPaths []metrics.NavigationPath `json:"navigation_paths"`
	DeviceMetrics   []metrics.DeviceMetric   `json:"device_metrics"`
	GeographicData  []metrics.GeoMetric      `json:"geographic_data"`
	ClickThrough    []metrics.ClickMetric    `json:"click_through"`
	ScrollDepth     map[string]float64       `json:"scroll_depth"`
	Range           string                   `json:"range"`
}

// DashboardAction answers the metrics query endpoint. The window comes from
// a named range (24h/7d/30d) or explicit startTime/endTime epoch millis.
func DashboardAction(ctx *cartridge.Context) error {
	parser := timeframe.NewParser()
	tf, err := parser.Parse(timeframe.ParseParams{
		Range:   ctx.Query("range"),
		StartMs: queryInt64(ctx.Ctx, "startTime"),
		EndMs:   queryInt64(ctx.Ctx, "endTime"),
	})
	if err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "INVALID_TIME_RANGE",
		})
	}

	resp, err := fetchMetrics(ctx.DBManager.GetConnection(), tf, ctx.Logger)
	if err != nil {
		ctx.Logger.Error("Failed to build dashboard response", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute metrics",
			"code":  "METRICS_ERROR",
		})
	}

	return ctx.JSON(resp)
}

func fetchMetrics(db *gorm.DB, tf *timeframe.TimeFrame, logger *slog.Logger) (*DashboardResponse, error) {
	queryParams := metrics.NewQueryParams(tf)

	tasks := []async.Task{
		{
			Name: "retention",
			Execute: func() (interface{}, error) {
				return metrics.GetRetentionMetrics(db, queryParams)
			},
		},
		{
			Name: "pages",
			Execute: func() (interface{}, error) {
				return metrics.GetPageMetrics(db, queryParams)
			},
		},
		{
			Name: "navigationPaths",
			Execute: func() (interface{}, error) {
				return metrics.GetNavigationPaths(db, queryParams)
			},
		},
		{
			Name: "deviceMetrics",
			Execute: func() (interface{}, error) {
				return metrics.GetDeviceMetrics(db, queryParams)
			},
		},
		{
			Name: "geographicData",
			Execute: func() (interface{}, error) {
				stats, err := metrics.GetGeographicMetrics(db, queryParams)
				if err != nil {
					return nil, err
				}
				return convertGeoStats(stats), nil
			},
		},
		{
			Name: "clickThrough",
			Execute: func() (interface{}, error) {
				return metrics.GetClickMetrics(db, queryParams)
			},
		},
		{
			Name: "scrollDepth",
			Execute: func() (interface{}, error) {
				return metrics.GetScrollDepthDistribution(db, queryParams)
			},
		},
	}

	pool := async.NewPool(7)
	results := pool.Execute(context.Background(), tasks)

	for name, result := range results {
		if result.Err != nil {
			return nil, fmt.Errorf("error fetching %s: %w", name, result.Err)
		}
	}

	resp := &DashboardResponse{
		Retention:       results["retention"].Data.(metrics.RetentionMetrics),
		Pages:           ensureNonNil(results["pages"].Data.([]metrics.PageMetric)),
		NavigationPaths: ensureNonNil(results["navigationPaths"].Data.([]metrics.NavigationPath)),
		DeviceMetrics:   ensureNonNil(results["deviceMetrics"].Data.([]metrics.DeviceMetric)),
		GeographicData:  ensureNonNil(results["geographicData"].Data.([]metrics.GeoMetric)),
		ClickThrough:    ensureNonNil(results["clickThrough"].Data.([]metrics.ClickMetric)),
		ScrollDepth:     results["scrollDepth"].Data.(map[string]float64),
		Range:           string(tf.Label),
	}

	return resp, nil
}

// convertGeoStats replaces ISO country codes with display names.
func convertGeoStats(items []metrics.GeoMetric) []metrics.GeoMetric {
	if len(items) == 0 {
		return []metrics.GeoMetric{}
	}

	caser := cases.Upper(language.AmericanEnglish)
	countries := gountries.New()

	result := make([]metrics.GeoMetric, len(items))
	for i, item := range items {
		if item.Country == "" {
			item.Country = "Unknown"
		} else if country, err := countries.FindCountryByAlpha(item.Country); err == nil {
			item.Country = country.Name.Common
		} else {
			item.Country = caser.String(item.Country)
		}
		result[i] = item
	}
	return result
}

func ensureNonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func queryInt64(c *fiber.Ctx, key string) int64 {
	raw := c.Query(key)
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return value
}
