// Command pcd-loader streams the contents of a PCD file to a visualization
// sink as chunked point batches. A PCD file holds a single cloud, which is
// exported as scan 0.
package main

import (
	"github.com/banshee-data/scanstream/internal/cloud"
	"github.com/banshee-data/scanstream/internal/loader"
	"github.com/banshee-data/scanstream/internal/pcdcloud"
)

func main() {
	loader.Main("pcd-loader", ".pcd", "Stream PCD point clouds to a visualization sink",
		func(path string) (cloud.Source, error) { return pcdcloud.Open(path) })
}
