// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package udp

import (
	"context"
	"errors"
	"net"
	"slices"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestServerClient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := NewServer(WithBreakPeriod(50 * time.Millisecond))

	g, ctxGroup := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Listen(ctxGroup, 0, func(data []byte, addr net.UDPAddr) {
			_ = srv.Send([]byte(strings.ToUpper(string(data))), addr)
		})
	})

	select {
	case <-srv.Ready():
	case <-ctx.Done():
		t.Fatal("server did not start")
	}

	serverAddr := *srv.LocalAddr()
	serverAddr.IP = net.IPv4(127, 0, 0, 1)

	cli := NewClient(serverAddr, WithClientBreakPeriod(50*time.Millisecond))
	if err := cli.Connect(); err != nil {
		t.Fatalf("failed to connect: %s", err.Error())
	}

	received := make(chan string, 10)

	ctxClient, stopClient := context.WithCancel(ctxGroup)
	defer stopClient()

	g.Go(func() error {
		return cli.Listen(ctxClient, func(data []byte) {
			received <- string(data)
		})
	})

	sent := []string{"alpha", "beta", "gamma"}
	var got []string

	for _, msg := range sent {
		if err := cli.Send([]byte(msg)); err != nil {
			t.Fatalf("failed to send: %s", err.Error())
		}

		select {
		case resp := <-received:
			got = append(got, resp)
		case <-ctx.Done():
			t.Fatal("response not received")
		}
	}

	cancel()

	if err := g.Wait(); !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error: %v", err)
	}

	if want := []string{"ALPHA", "BETA", "GAMMA"}; !slices.Equal(want, got) {
		t.Errorf("want=%v got=%v", want, got)
	}

	if err := srv.Send([]byte("late"), serverAddr); !errors.Is(err, ErrNotRunning) {
		t.Errorf("send after stop: want=%v got=%v", ErrNotRunning, err)
	}
}

func TestSender(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := NewServer(WithBreakPeriod(50 * time.Millisecond))
	received := make(chan string, 1)

	done := make(chan error, 1)
	go func() {
		done <- srv.Listen(ctx, 0, func(data []byte, addr net.UDPAddr) {
			received <- string(data)
		})
	}()

	<-srv.Ready()

	addr := *srv.LocalAddr()
	addr.IP = net.IPv4(127, 0, 0, 1)

	sender, err := NewSender(addr)
	if err != nil {
		t.Fatalf("failed to create sender: %s", err.Error())
	}

	if err := sender.Send([]byte("beacon")); err != nil {
		t.Fatalf("failed to send: %s", err.Error())
	}

	select {
	case msg := <-received:
		if msg != "beacon" {
			t.Errorf("want=beacon got=%s", msg)
		}
	case <-ctx.Done():
		t.Fatal("message not received")
	}

	if err := sender.Close(); err != nil {
		t.Errorf("failed to close: %s", err.Error())
	}

	cancel()
	<-done
}

func TestListenMulticast_NotMulticast(t *testing.T) {
	addr := net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 45286}

	err := ListenMulticast(context.Background(), addr, func([]byte, net.UDPAddr) {})
	if !errors.Is(err, ErrNotMulticast) {
		t.Errorf("want=%v got=%v", ErrNotMulticast, err)
	}
}
