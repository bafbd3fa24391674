// Command ormcost is the query cost attribution CLI.
package main

import "github.com/krishiv1545/django-orm-cost/internal/cli"

func main() {
	cli.Execute()
}
