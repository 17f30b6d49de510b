package config

import (
	"log/slog"
	"strings"

	"request_pipeline/internal/cors"
)

// Options converts the responder CORS block. A single non-wildcard origin
// is sent as is; several origins, or any wildcard, become an allow list.
func (c CORSConfig) Options(logger *slog.Logger) *cors.Options {
	opts := &cors.Options{
		Disabled:           c.Disabled,
		Credentials:        c.Credentials,
		ExposeHeaders:      c.ExposeHeaders,
		AllowHeaders:       c.AllowHeaders,
		MaxAge:             c.MaxAge,
		KeepHeadersOnError: c.KeepHeadersOnError,
		Logger:             logger,
	}

	switch {
	case len(c.Origins) == 1 && c.Origins[0] == "*":
		opts.Origin = "*"
	case len(c.Origins) == 1 && !strings.Contains(c.Origins[0], "*"):
		opts.Origin = c.Origins[0]
	case len(c.Origins) > 0:
		opts.OriginFunc = cors.AllowList(c.Origins...)
	}
	return opts
}
