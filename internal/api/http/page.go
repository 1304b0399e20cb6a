package httpapi

import (
	"bytes"
	"embed"
	"html/template"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/air-quality-map/internal/mapview"
)

//go:embed templates/index.html
var templates embed.FS

var pageTmpl = template.Must(template.ParseFS(templates, "templates/index.html"))

const socketPath = "/ws/map"

type pageData struct {
	View       mapview.Options
	SocketPath string
}

// pageHandler renders the page shell. It carries the viewport only; the
// widget is mounted once the browser opens the map socket.
func pageHandler(view mapview.Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var buf bytes.Buffer
		if err := pageTmpl.Execute(&buf, pageData{View: view, SocketPath: socketPath}); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to render page")
		}
		c.Type("html", "utf-8")
		return c.Send(buf.Bytes())
	}
}
