/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
)

func newLogger(cfg *Config) *log.Logger {
	level := log.InfoLevel
	if cfg.verbose {
		level = log.DebugLevel
	}

	return log.NewWithOptions(os.Stdout, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      logDate,
	})
}

func (c *Config) getLogger() *log.Logger {
	if c.logger == nil {
		c.logger = newLogger(c)
	}

	return c.logger
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	cfg.getLogger().Infof(format, args...)
}

// drainErrors logs handler errors until ctx ends. Clients hanging up
// mid-response are routine and only logged when verbose.
func drainErrors(ctx context.Context, cfg *Config, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			switch {
			case err == nil:
			case isDisconnect(err):
				logf(cfg, "SERVE: Client disconnected: %v", err)
			default:
				cfg.getLogger().Error("request failed", "err", err)
			}
		}
	}
}

func isDisconnect(err error) bool {
	var netErr *net.OpError

	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, context.Canceled) ||
		errors.As(err, &netErr)
}

func newPage(prefix, title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon(prefix))
	htmlBody.WriteString(`<link rel="stylesheet" href="` + prefix + `/assets/topdrop.css">`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", html.EscapeString(title)))
	htmlBody.WriteString(fmt.Sprintf("<body><main class=\"home\"><a href=\"%s/\">%s</a></main></body></html>", prefix, html.EscapeString(body)))

	return htmlBody.String()
}
