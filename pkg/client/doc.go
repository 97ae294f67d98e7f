/*
Package client provides a Go client library for the oxidb wire protocol.

It wraps pkg/transport's length-prefixed framing with a typed, synchronous
request/reply API so applications never construct a dispatcher.Request by
hand.

# Usage

Connecting and authenticating:

	c, err := client.Dial("127.0.0.1:7700")
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	if err := c.Authenticate("ada", "hunter2"); err != nil {
		log.Fatal(err)
	}

Connecting over TLS:

	c, err := client.DialTLS("db.example.com:7700", &tls.Config{
		RootCAs: caPool,
	})

Document operations:

	doc := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("name", document.String("ada"))
		return o
	}())
	id, err := c.Insert("users", doc)

	filter := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("name", document.String("ada"))
		return o
	}())
	rows, err := c.Find("users", filter)

Transactions buffer writes on the connection until CommitTx:

	c.BeginTx()
	c.Insert("orders", order1)
	c.Insert("orders", order2)
	ids, err := c.CommitTx()

Blob storage:

	c.CreateBucket("photos")
	c.PutObject("photos", "cat.png", "image/png", data, nil)
	bytes, found, err := c.GetObject("photos", "cat.png")

The SQL subset:

	rows, err := c.SQL("SELECT name FROM users WHERE age >= 18")

# Thread Safety

A Client wraps exactly one connection and one logical session; the wire
protocol has no request multiplexing, so a Client must not be shared
across goroutines without external synchronization. Open one Client per
goroutine, or serialize calls through a channel.

# See Also

  - pkg/transport for the framing protocol
  - pkg/dispatcher for the request/reply wire types and command set
  - pkg/auth for the SCRAM-SHA-256 handshake this package drives
*/
package client
