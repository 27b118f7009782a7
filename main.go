package main

import (
	_ "github.com/joho/godotenv/autoload"

	"docrag/cmd"
)

func main() {
	cmd.Execute()
}
