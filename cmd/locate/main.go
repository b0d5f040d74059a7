// Command locate answers location lookups offline against the record files,
// without starting the HTTP service.
//
// Usage:
//
//	locate by-location "Austin, Texas" --strict=false
//	locate markets nyc
//	locate place --name Alaska --type region
//	locate tokens "Madison Square Garden, New York City"
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
