// Command listing-service serves cached, paginated and searchable listings
// of document store collections.
package main

import "github.com/nimburion/listing/pkg/cli"

func main() {
	cli.Execute(cli.NewServiceCommand(cli.ServiceCommandOptions{
		Name:        "listing-service",
		Description: "Cached, paginated and searchable listing API",
		EnvPrefix:   cli.DefaultEnvPrefix,
	}))
}
