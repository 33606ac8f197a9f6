package v1

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/gofiber/fiber/v2"
	"log/slog"

	"github.com/karloscodes/cartridge"
)

//go:embed tracker.js
var trackerTemplate string

// GetTrackerAction serves the capture client script with the request's base
// URL baked in, cached via a strong ETag.
func GetTrackerAction(ctx *cartridge.Context) error {
	tmpl, err := template.New("./api/v1/tracker.js").Parse(trackerTemplate)
	if err != nil {
		ctx.Logger.Error("Failed to parse tracker template", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	var buf bytes.Buffer
	data := map[string]string{
		"BaseURL": ctx.BaseURL(),
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		ctx.Logger.Error("Failed to render tracker template", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	content := buf.Bytes()
	etag := generateETag(content)

	if ctx.Get("If-None-Match") == etag {
		return ctx.Status(fiber.StatusNotModified).Send(nil)
	}

	ctx.Set("Content-Type", "application/javascript")
	ctx.Set("Cache-Control", "public, max-age=3600")
	ctx.Set("ETag", etag)
	ctx.Set("Cross-Origin-Resource-Policy", "cross-origin")
	return ctx.Send(content)
}
