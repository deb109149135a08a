// Package web embeds the HTML templates and the static PWA assets.
package web

import "embed"

// TemplatesFS embeds HTML templates for server-side rendering.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds static assets: stylesheet, script, service worker,
// manifest and icon.
//
//go:embed static/*
var StaticFS embed.FS
