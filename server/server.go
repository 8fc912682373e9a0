package server

import (
	"bufio"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"rssnotify/commands"
	"rssnotify/models"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

type ServerConfig struct {
	// Runs the text commands
	Handler *commands.Handler

	// Delivers dispatched messages to SSE clients
	Broadcaster *Broadcaster

	// Bearer token granting admin commands. Empty disables admin commands.
	AdminToken string

	// Interval between SSE keep-alive pings
	PingInterval time.Duration
}

// CommandRequest is the body of POST /commands/:name
type CommandRequest struct {
	Args []string `json:"args"`
}

// CommandResponse carries either the command output or the error
type CommandResponse struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Returns a fiber.App instance to be used as the HTTP host for commands and channel streams
func Server(config *ServerConfig) *fiber.App {

	bc := config.Broadcaster
	ping := config.PingInterval
	if ping <= 0 {
		ping = 5 * time.Second
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			return strings.HasSuffix(c.Path(), "/sse")
		},
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post("/commands/:name", func(c *fiber.Ctx) error {
		var req CommandRequest
		if len(c.Body()) > 0 {
			if err := json.Unmarshal(c.Body(), &req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(CommandResponse{Error: "invalid request body"})
			}
		}

		admin := isAdmin(c.Get(fiber.HeaderAuthorization), config.AdminToken)
		output, err := config.Handler.Execute(c.UserContext(), c.Params("name"), req.Args, admin)
		if err != nil {
			status := statusFor(err)
			if status == fiber.StatusInternalServerError {
				log.WithFields(log.Fields{
					"command": c.Params("name"),
					"error":   err,
				}).Error("Command failed")
			}
			return c.Status(status).JSON(CommandResponse{Error: err.Error()})
		}
		return c.JSON(CommandResponse{Output: output})
	})

	app.Delete("/channels/sse", func(c *fiber.Ctx) error {
		key := c.Query("key", "")
		bc.RemoveClient(key)
		return c.Status(200).SendString("OK")
	})

	app.Get("/channels/:channel/sse", func(c *fiber.Ctx) error {
		channel, err := url.PathUnescape(c.Params("channel"))
		if err != nil || channel == "" {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid channel")
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		// Unique client key
		key := uuid.New().String()
		events := make(chan models.Message, 10) // Buffered channel

		// Register the client
		bc.AddClient(key, channel, events)

		// Use StreamWriter to manage SSE streaming
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			aliveChan := time.NewTicker(ping)
			defer aliveChan.Stop()
			defer func() {
				log.Infof("Cleaning up SSE stream for client: %s", key)
				bc.RemoveClient(key)
			}()

			// Send initial event with client key
			fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
			if err := w.Flush(); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			for {
				select {
				case <-aliveChan.C:
					// Send keep-alive pings
					if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush ping for client %s: %v", key, err)
						return
					}

				case msg, ok := <-events:
					if !ok {
						log.Warnf("Message channel closed for client %s", key)
						return
					}
					if err := writeMessageEvent(w, msg); err != nil {
						log.Warnf("Failed to send message event to client %s: %v", key, err)
						return
					}
				}
			}
		}))

		return nil
	})

	return app
}

func writeMessageEvent(w *bufio.Writer, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

func isAdmin(authorization, token string) bool {
	if token == "" {
		return false
	}
	bearer, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(bearer), []byte(token)) == 1
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, commands.ErrNotAdmin):
		return fiber.StatusForbidden
	case errors.Is(err, commands.ErrUsage):
		return fiber.StatusBadRequest
	case errors.Is(err, commands.ErrUnknownCommand):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}
