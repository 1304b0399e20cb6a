package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/i474232898/air-quality-map/internal/mapview"
	"github.com/i474232898/air-quality-map/internal/store"
	"github.com/i474232898/air-quality-map/internal/widget"
)

var validate = validator.New()

// WidgetFactory builds an unmounted widget wired to the configured provider and locations.
type WidgetFactory func(opts ...widget.Option) *widget.Widget

// Dependencies are the collaborators of the HTTP surface.
type Dependencies struct {
	NewWidget    WidgetFactory
	Sessions     *store.MemoryStore
	View         mapview.Options
	SnapshotWait time.Duration
	// PingInterval paces keep-alive pings on map sockets.
	PingInterval time.Duration
}

// ErrorHandler renders every handler error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the page, the map socket and the REST handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Dependencies) {
	if deps.SnapshotWait <= 0 {
		deps.SnapshotWait = 30 * time.Second
	}
	if deps.PingInterval <= 0 {
		deps.PingInterval = 30 * time.Second
	}

	app.Get("/", pageHandler(deps.View))
	app.Get(socketPath, requireUpgrade, websocket.New(mapSocket(deps.NewWidget, deps.PingInterval)))

	v1 := app.Group("/api/v1")

	v1.Post("/map", func(c *fiber.Ctx) error {
		w := deps.NewWidget()
		if err := w.Mount(context.Background()); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to mount map")
		}

		sess, err := deps.Sessions.Save(w)
		if err != nil {
			w.Unmount()
			if errors.Is(err, store.ErrFull) {
				return fiber.NewError(fiber.StatusServiceUnavailable, "too many map sessions")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to register map session")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":   sess.ID,
			"view": w.Config().View,
		})
	})

	v1.Get("/map/:id", func(c *fiber.Ctx) error {
		var q snapshotQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		sess, err := deps.Sessions.Get(q.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no map session for requested id")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch map session")
		}

		if q.Wait {
			ctx, cancel := context.WithTimeout(c.UserContext(), deps.SnapshotWait)
			defer cancel()
			// A timeout still returns the partial snapshot with loading=true.
			_ = sess.Widget.Wait(ctx)
		}

		return c.JSON(fiber.Map{
			"id":       sess.ID,
			"snapshot": sess.Widget.Snapshot(),
		})
	})

	v1.Delete("/map/:id", func(c *fiber.Ctx) error {
		var q snapshotQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		sess, err := deps.Sessions.Delete(q.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no map session for requested id")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to delete map session")
		}
		sess.Widget.Unmount()

		return c.SendStatus(fiber.StatusNoContent)
	})
}

// snapshotQuery holds the path and query parameters of a session request.
type snapshotQuery struct {
	ID   string `validate:"required,uuid"`
	Wait bool
}

func (q *snapshotQuery) bind(c *fiber.Ctx) error {
	q.ID = c.Params("id")
	q.Wait = c.QueryBool("wait")
	return validate.Struct(q)
}
