package main

import (
	"log"

	"github.com/MoiChung-nwc/Chunk-Meet/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
