package main

import (
	"context"
	"errors"
	"log"

	"github.com/ksteptoe/sfdump/cmd"
)

func main() {
	var err error
	ctx := context.Background()

	// Registered first so it runs last: every other deferred cleanup,
	// tracing shutdown included, completes before the process exits.
	defer func() {
		if err != nil {
			log.Fatalln(err)
		}
	}()

	// Set up OpenTelemetry.
	otelShutdown, setupErr := setupOTelSDK(ctx)
	if setupErr != nil {
		err = setupErr
		return
	}

	// Handle shutdown properly so nothing leaks.
	defer func() {
		err = errors.Join(err, otelShutdown(context.Background()))
	}()

	err = cmd.ExecuteContext(ctx)
}
