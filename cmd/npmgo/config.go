package main

import (
	"log"
	"os"

	"github.com/npmgo/npmgo/internal/builder"
	"github.com/npmgo/npmgo/internal/registry"
	"github.com/npmgo/npmgo/internal/reify"
)

// Config collects every flag the command tree accepts and is read by each
// subcommand. RegistryURL, Concurrency and Debug are populated by cobra's
// persistent flags on rootCmd; the Save*/NoSave fields by addCmd's own flags.
type Config struct {
	RegistryURL string
	Concurrency int
	Debug       bool

	SaveDev      bool
	SaveOptional bool
	SavePeer     bool
	NoSave       bool
}

var cfg = &Config{
	RegistryURL: registry.DefaultBaseURL,
	Concurrency: registry.DefaultPackumentConcurrency,
}

func (c *Config) newRegistryClient() *registry.Client {
	return registry.NewClient(c.RegistryURL)
}

func (c *Config) newBuilder(client *registry.Client) *builder.Builder {
	b := builder.New(client)
	if c.Concurrency > 0 {
		b.Concurrency = c.Concurrency
	}
	b.Debug = c.Debug
	if c.Debug {
		b.Logger = log.New(os.Stderr, "npmgo: ", 0)
	}
	return b
}

// saveField returns the package.json dependency field a resolved root
// edge from `add` should be recorded under, per the save-target flags.
func (c *Config) saveField() string {
	switch {
	case c.SaveDev:
		return "devDependencies"
	case c.SaveOptional:
		return "optionalDependencies"
	case c.SavePeer:
		return "peerDependencies"
	default:
		return "dependencies"
	}
}

func newProgress(quiet bool) reify.Progress {
	if quiet {
		return nil
	}
	return func(message string, processed, total int) {
		if total == 0 {
			return
		}
		log.Printf("%s (%d/%d)", message, processed, total)
	}
}
