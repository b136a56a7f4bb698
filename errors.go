/*
Copyright © 2026 rickpro2
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Domain errors surfaced to the offending connection as joinError messages.
var (
	errRoomNotFound      = errors.New("Invalid room PIN")
	errInvalidName       = errors.New("A name is required")
	errTeamRequired      = errors.New("Team selection required")
	errCapacityExhausted = errors.New("No room PINs available, try again later")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
