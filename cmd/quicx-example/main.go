// Command quicx-example runs a minimal HTTP/3 server alongside a
// client that exercises it, demonstrating Server.AddHandler and
// Client.DoRequest end to end.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"time"

	"github.com/caozhiyi/quicx"
)

func main() {
	addr := "127.0.0.1:4433"

	server := quicx.NewServer(addr, quicx.ServerOptions{
		TLSConfig: serverTLSConfig(),
	})
	if err := server.AddHandler("GET", "/hello/:name", helloHandler); err != nil {
		log.Fatal(err)
	}
	if err := server.Start(); err != nil {
		log.Fatal(err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond) // let the listener settle before dialing

	client := quicx.NewClient(addr, quicx.ClientOptions{
		TLSConfig: quicx.NewTLSConfig("localhost", true, quicx.FingerprintChrome),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer client.Stop()

	req := quicx.NewRequest("GET", "https", addr, "/hello/world")
	if err := client.DoRequest(ctx, req, func(resp *quicx.Response, err error) {
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("status=%d body=%s\n", resp.StatusCode, resp.Body())
	}); err != nil {
		log.Fatal(err)
	}
}

func helloHandler(req *quicx.Request, resp *quicx.Response) {
	resp.StatusCode = 200
	resp.Header.Set("content-type", "text/plain")
	resp.SetBody([]byte("hello, " + req.PathParam("name")))
}

func serverTLSConfig() *tls.Config {
	cert, err := tls.LoadX509KeyPair("server.crt", "server.key")
	if err != nil {
		log.Fatal(err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h3"},
	}
}
