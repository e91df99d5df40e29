// Command ingestor runs the grant award ingestion service.
package main

import "github.com/JakeFAU/award-ingestor/cmd"

func main() {
	cmd.Execute()
}
