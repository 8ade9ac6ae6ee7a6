package main

import (
	"flag"
	"log"

	"github.com/danmuck/rp1210test/internal/config"
)

func main() {
	kind := flag.String("kind", "catalog", "config kind: catalog|profile")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	path := defaultPath(*kind)
	if *validate {
		if *input != "" {
			path = *input
		}
		switch *kind {
		case "catalog":
			cat, err := config.LoadCatalog(path)
			if err != nil {
				log.Fatal(err)
			}
			log.Printf("Validated catalog at %s: %d adapters", path, len(cat.Adapters))
		case "profile":
			if _, err := config.LoadProfile(path); err != nil {
				log.Fatal(err)
			}
			log.Printf("Validated profile at %s", path)
		}
		return
	}

	if *output != "" {
		path = *output
	}
	if err := config.WriteTemplate(path, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s template to %s", *kind, path)
}

func defaultPath(kind string) string {
	switch kind {
	case "catalog":
		return "adapters.toml"
	case "profile":
		return "rp1210test.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}
