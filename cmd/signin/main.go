package main

import (
	"context"
	"log"
	"os"
)

func main() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Printf("signin: %v", err)
		os.Exit(1)
	}
}
