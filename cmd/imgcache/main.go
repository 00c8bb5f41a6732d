// Command imgcache publishes and fetches images through a tiered local
// cache backed by an OCI registry, an S3 bucket or Redis.
//
// Every flag can also be set through the environment with the IMGCACHE_
// prefix, e.g. IMGCACHE_BACKEND=s3 or IMGCACHE_S3_BUCKET=images.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	root, a := newRootCmd()
	err := root.Execute()
	if err := errors.Join(err, a.close()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
