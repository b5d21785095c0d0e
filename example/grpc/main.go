// Demonstrates driving a bidirectional stream over grpc: an in-process echo
// server, a stream client writing a few payloads, then a clean finish.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-stream/conf"
	"github.com/go-pantheon/fabrica-stream/executor"
	grpccall "github.com/go-pantheon/fabrica-stream/grpc"
	"github.com/go-pantheon/fabrica-stream/stream"
	"github.com/go-pantheon/fabrica-stream/xstream"
	"github.com/go-pantheon/fabrica-util/errors"
	"golang.org/x/sync/errgroup"
	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const addr = "127.0.0.1:9100"

type printListener struct {
	opened chan struct{}
	done   chan struct{}
	want   int
	got    int
}

func (l *printListener) OnOpen() {
	log.Infof("[example] stream opened")
	close(l.opened)
}

func (l *printListener) OnRead(p xstream.Payload) {
	log.Infof("[RECV] %s", p)

	l.got++
	if l.got == l.want {
		close(l.done)
	}
}

func (l *printListener) OnError(err error) {
	log.Errorf("[example] stream broken. %+v", err)
	close(l.done)
}

func main() {
	eg, ctx := errgroup.WithContext(context.Background())

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen failed. %+v", err)
	}

	srv := newEchoServer()

	eg.Go(func() error {
		return srv.Serve(lis)
	})
	eg.Go(func() error {
		defer srv.GracefulStop()

		return run(ctx)
	})

	if err := eg.Wait(); err != nil {
		log.Fatalf("example failed. %+v", err)
	}
}

func newEchoServer() *googlegrpc.Server {
	return googlegrpc.NewServer(
		googlegrpc.ForceServerCodec(grpccall.RawCodec()),
		googlegrpc.UnknownServiceHandler(func(_ any, ss googlegrpc.ServerStream) error {
			if err := ss.SendHeader(metadata.Pairs("x-echo", "1")); err != nil {
				return err
			}

			for {
				var p []byte
				if err := ss.RecvMsg(&p); err != nil {
					if errors.Is(err, io.EOF) {
						return nil
					}

					return err
				}

				if err := ss.SendMsg(p); err != nil {
					return err
				}
			}
		}),
	)
}

func run(ctx context.Context) error {
	conn, err := googlegrpc.NewClient(addr,
		googlegrpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return errors.Wrap(err, "connect failed")
	}

	defer func() {
		_ = conn.Close()
	}()

	call, err := grpccall.NewCall(ctx, conn, "/example.Echo/Stream", nil)
	if err != nil {
		return err
	}

	exec := executor.New(conf.Default().Executor)

	defer func() {
		_ = exec.Stop(ctx)
	}()

	l := &printListener{
		opened: make(chan struct{}),
		done:   make(chan struct{}),
		want:   3,
	}

	s := stream.New(call, l, exec)

	if err := exec.Dispatch(s.Start); err != nil {
		return err
	}

	select {
	case <-l.opened:
	case <-time.After(time.Second * 5):
		return errors.New("timeout waiting for the stream to open")
	}

	if err := exec.Dispatch(func() {
		for i := 0; i < l.want; i++ {
			s.Write([]byte(fmt.Sprintf("hello %d", i)))
		}
	}); err != nil {
		return err
	}

	select {
	case <-l.done:
	case <-time.After(time.Second * 5):
		return errors.New("timeout waiting for echoes")
	}

	return exec.Dispatch(s.Finish)
}
