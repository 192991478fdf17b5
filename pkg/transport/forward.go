package transport

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	rexerrors "github.com/grovetools/rex/errors"
)

// Dialer opens connections from the host's side of a transport, so that
// addresses such as localhost:8888 resolve on the host.
type Dialer interface {
	DialRemote(ctx context.Context, network, addr string) (net.Conn, error)
}

// Forward accepts connections on ln and relays each one to addr on the host
// until ctx is cancelled. ln is closed when Forward returns, and so is every
// relayed connection.
func Forward(ctx context.Context, d Dialer, ln net.Listener, addr string) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	logger := log.WithFields(logrus.Fields{"listen": ln.Addr().String(), "addr": addr})
	logger.Debug("forwarding")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return rexerrors.TransportFailed("accept", err).WithDetail("listen", ln.Addr().String())
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay(ctx, d, conn, addr, logger)
		}()
	}
}

func relay(ctx context.Context, d Dialer, local net.Conn, addr string, logger *logrus.Entry) {
	defer local.Close()
	remote, err := d.DialRemote(ctx, "tcp", addr)
	if err != nil {
		logger.WithError(err).Warn("forward dial failed")
		return
	}
	defer remote.Close()
	stop := context.AfterFunc(ctx, func() {
		local.Close()
		remote.Close()
	})
	defer stop()

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(local, remote)
		done <- struct{}{}
	}()
	// Either side finishing ends the relay; the deferred closes stop the other copy.
	<-done
}
