/*
Package client is the Go client for the Train HTTP API.

The CLI subcommands other than serve go through this client. The server owns
the bbolt database exclusively, so nothing but the server may open it while
it runs.

	c := client.NewClient("localhost:8080")

	spec, _ := os.ReadFile("opsman.yaml")
	art, err := c.Apply(ctx, spec)

	lease, err := c.Borrow(ctx, "opsman")
	fmt.Println(lease.InstanceID, lease.Results["url"])

Non-2xx responses come back as *APIError carrying the status code and the
server's message.
*/
package client
