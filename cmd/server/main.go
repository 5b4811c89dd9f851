package main

import (
	"github.com/joho/godotenv"

	"hrcore/internal/app/server"
)

func main() {
	_ = godotenv.Load()
	server.Run()
}
