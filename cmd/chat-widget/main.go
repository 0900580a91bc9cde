package main

import (
	"errors"
	"fmt"
	"os"

	"storefront-chat/internal/cli"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: failed to read .env:", err)
	}
	cli.Execute()
}
