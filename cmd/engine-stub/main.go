package main

import (
	"log"

	"github.com/futig/interview-client/internal/builder"
)

func main() {
	app, err := builder.BuildStub()
	if err != nil {
		log.Fatal("Failed to build engine stub:", err)
	}

	if err := app.Run(); err != nil {
		log.Fatal("Engine stub error:", err)
	}
}
