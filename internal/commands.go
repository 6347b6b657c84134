package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/remi/internal/gemtext"
	"github.com/starford/remi/internal/location"
	"github.com/starford/remi/internal/mcpserver"
	"github.com/starford/remi/internal/session"
)

// ErrInputRequired is returned by Fetch when the server asks for input.
var ErrInputRequired = errors.New("server requested input")

// Fetch performs one navigation and writes the result. rawURL is read as typed
// input: a bare "host/path" means gemini://host/path, and an empty rawURL
// fetches home. Gemtext goes to the configured output; an opaque body goes to
// outputPath when set, otherwise to the output as well.
func Fetch(ctx context.Context, rawURL, outputPath string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()

	c, err := app.build(logger)
	if err != nil {
		return err
	}
	defer c.Close()

	target := rawURL
	if target != "" {
		loc, err := location.FromInput(target)
		if err != nil {
			return err
		}
		target = loc.String()
	}
	res, err := c.engine.Navigate(ctx, target, false)
	if err != nil {
		return err
	}

	switch res.Outcome {
	case session.OutcomeInput:
		return fmt.Errorf("%w at %s: %s", ErrInputRequired, res.Location, res.Prompt)
	case session.OutcomeOpaque:
		logger.Info("fetch: opaque response",
			slog.String("url", res.Location.String()),
			slog.String("media_type", res.MediaType),
			slog.Int("size", len(res.Body)))
		if outputPath != "" {
			if err := os.WriteFile(outputPath, res.Body, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		}
		_, err = app.output.Write(res.Body)
		return err
	default:
		data := gemtext.Encode(res.Document.Lines)
		if outputPath != "" {
			if err := os.WriteFile(outputPath, data, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		}
		_, err = app.output.Write(data)
		return err
	}
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
func ServeMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()

	c, err := app.build(logger)
	if err != nil {
		return err
	}
	defer c.Close()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.engine, c.bookmarks, c.db).ServeStdio()
}
