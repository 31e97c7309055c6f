// Package network streams simulation snapshots to external clients over TCP
// and applies the commands they send back. Every message is a 4-byte
// big-endian length followed by that many bytes of JSON.
package network

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"smartflow/manager"

	"golang.org/x/sync/errgroup"
)

// MaxFrameSize bounds the payload of a single message.
const MaxFrameSize = 16 << 20

var ErrFrameTooLarge = errors.New("frame too large")

func WriteFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func ReadFrame(r io.Reader, v any) error {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return fmt.Errorf("failed to read message length: %w", err)
	}

	msgLen := binary.BigEndian.Uint32(lenBuf)
	if msgLen > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, msgLen)
	}

	buf := make([]byte, msgLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

func ReceiveCommand(conn net.Conn) (manager.Command, error) {
	var cmd manager.Command
	err := ReadFrame(conn, &cmd)
	return cmd, err
}

func SendSnapshot(conn net.Conn, snapshot manager.Snapshot) error {
	return WriteFrame(conn, snapshot)
}

// Feed serves one snapshot stream per connected client.
type Feed struct {
	Interval time.Duration
	Logger   *slog.Logger

	tm *manager.TrafficManager
}

func NewFeed(tm *manager.TrafficManager) *Feed {
	return &Feed{
		Interval: 100 * time.Millisecond,
		Logger:   slog.Default(),
		tm:       tm,
	}
}

// ListenAndServe listens on addr and serves until ctx is done.
func (f *Feed) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return f.Serve(ctx, listener)
}

// Serve accepts clients on listener until ctx is done. The listener is
// closed on return.
func (f *Feed) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	f.Logger.Info("feed waiting for clients", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		go func() {
			if err := f.handle(ctx, conn); err != nil {
				f.Logger.Warn("feed client dropped", "remote", conn.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

func (f *Feed) handle(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	f.Logger.Info("feed client connected", "remote", conn.RemoteAddr().String())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		conn.Close()
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(f.Interval)
		defer ticker.Stop()

		for {
			if err := SendSnapshot(conn, f.tm.Snapshot()); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	g.Go(func() error {
		for {
			cmd, err := ReceiveCommand(conn)
			if err != nil {
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return io.EOF
				}
				return err
			}

			if err := f.tm.Apply(cmd); err != nil {
				f.Logger.Warn("command rejected", "action", cmd.Action, "error", err)
				continue
			}
			f.Logger.Info("command applied", "action", cmd.Action)
		}
	})

	err := g.Wait()
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
