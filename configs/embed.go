// Package configs provides embedded configuration templates for indexwarden.
//
// Templates are embedded at build time with //go:embed so they ship in every
// distribution, whether installed from source or as a release binary.
//
// The templates are consumed by:
//   - cmd/indexwarden/cmd/init.go, which writes the archive config to
//     .indexwarden/config.yml
//   - the user config created at ~/.config/indexwarden/config.yml
//
// Configuration hierarchy (see internal/config Load):
//  1. Built-in defaults (internal/config NewConfig)
//  2. User config (~/.config/indexwarden/config.yml)
//  3. Archive config (.indexwarden/config.yml)
//  4. Environment variables (INDEXWARDEN_*)
//
// To change a template, edit the .yml file in this directory; the next build
// embeds it.
package configs

import _ "embed"

// ArchiveConfigTemplate is the starter archive configuration written by
// `indexwarden init`. Every key is commented and set to its default, so an
// archive initialised from it behaves identically to one with no config
// file until something is edited.
//
//go:embed archive-config.example.yml
var ArchiveConfigTemplate string

// UserConfigTemplate is the starter for the machine-wide configuration at
// ~/.config/indexwarden/config.yml. It covers the settings that usually
// apply to every archive on a machine (logging, store tuning, metrics).
//
//go:embed user-config.example.yml
var UserConfigTemplate string
