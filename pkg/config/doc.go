// Package config loads environment based configuration for the storefront
// client packages.
//
// Configuration structs are declared next to the code they tune, using
// caarlos0/env struct tags. Load caches each struct type after the first
// successful parse so the whole process shares one view of the environment.
// A .env file is honoured when present, which keeps local development setups
// out of the shell profile.
package config
