package main

import (
	"github.com/Moonlightintherain/q/internal/app"
)

func main() {
	app.Start()
}
