package storage

import (
	"embed"
	"io/fs"
)

//go:embed seeds/*.json
var seedFS embed.FS

// BundledSeeds returns the seed files compiled into the binary.
func BundledSeeds() fs.FS {
	sub, err := fs.Sub(seedFS, "seeds")
	if err != nil {
		panic(err)
	}
	return sub
}
