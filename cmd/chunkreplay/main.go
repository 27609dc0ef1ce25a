// Command chunkreplay replays recorded vendor streams through the chunk
// transformers, and runs the full pipeline against the lorem vendor.
//
//	chunkreplay replay --provider grok testdata/grok_search.jsonl
//	chunkreplay demo --prompt "count my words"
package main

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

func main() {
	loadEnv()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnv loads the nearest .env walking up from the working directory.
// A missing file is not an error: keys may come from the environment.
func loadEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
