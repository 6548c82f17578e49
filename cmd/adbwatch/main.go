package main

import (
	"log"

	"github.com/adbwatch/adbwatch/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ adbwatch failed to start: %v", err)
	}
}
