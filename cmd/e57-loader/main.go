// Command e57-loader streams the scans of an ASTM E57 file to a
// visualization sink as chunked point batches.
package main

import (
	"github.com/banshee-data/scanstream/internal/cloud"
	"github.com/banshee-data/scanstream/internal/e57"
	"github.com/banshee-data/scanstream/internal/loader"
)

func main() {
	loader.Main("e57-loader", ".e57", "Stream E57 point clouds to a visualization sink",
		func(path string) (cloud.Source, error) { return e57.Open(path) })
}
