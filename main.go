// Command sitekb-crawler builds Markdown knowledge bases from websites.
package main

import "github.com/JakeFAU/sitekb-crawler/cmd"

func main() {
	cmd.Execute()
}
