package link

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialDialer 通过串口（SPP/UART）连接设备
type SerialDialer struct {
	Port         string
	BaudRate     int
	ReadTimeout  time.Duration // 0 表示阻塞读
	WriteTimeout time.Duration
}

func (d *SerialDialer) Dial(ctx context.Context, onRead func([]byte)) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	baud := d.BaudRate
	if baud <= 0 {
		baud = 115200
	}
	port, err := serial.Open(d.Port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", d.Port, err)
	}
	if d.ReadTimeout > 0 {
		if err := port.SetReadTimeout(d.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
	}
	_ = port.ResetInputBuffer()

	sc := newStreamConn(&serialPort{port}, 0, d.WriteTimeout, onRead)
	sc.start()
	return sc, nil
}

// serialPort 读超时时 go.bug.st/serial 返回 (0, nil)，这里保持读循环继续
type serialPort struct {
	serial.Port
}

func (p *serialPort) Read(b []byte) (int, error) {
	for {
		n, err := p.Port.Read(b)
		if n > 0 || err != nil {
			return n, err
		}
	}
}
