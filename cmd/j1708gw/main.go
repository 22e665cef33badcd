// Command j1708gw hosts one or two j1708gw.Gateway ports, optionally
// bridged together, reading and writing real serial devices.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	apexcli "github.com/apex/log/handlers/cli"

	"github.com/truckbus/j1708gateway"
)

// apexLogger adapts apex/log's package-level logger to j1708gw.Logger.
type apexLogger struct{}

func (apexLogger) Debug(message string)          { log.Debug(message) }
func (apexLogger) Debugf(format string, v ...any) { log.Debugf(format, v...) }
func (apexLogger) Info(message string)            { log.Info(message) }
func (apexLogger) Infof(format string, v ...any)  { log.Infof(format, v...) }
func (apexLogger) Warn(message string)            { log.Warn(message) }
func (apexLogger) Warnf(format string, v ...any)  { log.Warnf(format, v...) }

func main() {
	log.SetHandler(apexcli.Default)

	device := flag.String("device", "/dev/ttyUSB0", "serial device for the primary (shared, \"sp3\") bus segment")
	linkDevice := flag.String("link-device", "", "optional serial device for a second (host, \"sp4\") bus segment to bridge")
	selfMID := flag.Uint("self-mid", 172, "this node's J1708 message ID")
	pcapFile := flag.String("pcap", "", "optional file to record a bus trace to, in pcap format")
	interactive := flag.Bool("interactive", true, "read j1708config/j1708send commands from stdin")
	flag.Parse()

	logger := apexLogger{}
	clock := j1708gw.NewRealClock()

	uart, err := j1708gw.OpenTTYPort(*device)
	j1708gw.Must0(err)
	defer uart.Close()

	gw := j1708gw.NewGateway(j1708gw.GatewayConfig{
		SelfMID:    byte(*selfMID),
		UART:       uart,
		Clock:      clock,
		Logger:     logger,
		Forwarding: true,
		Name:       "sp3",
	})
	ports := map[string]*j1708gw.Gateway{"sp3": gw}

	var hostGW *j1708gw.Gateway
	if *linkDevice != "" {
		hostUART, err := j1708gw.OpenTTYPort(*linkDevice)
		j1708gw.Must0(err)
		defer hostUART.Close()

		hostGW = j1708gw.NewGateway(j1708gw.GatewayConfig{
			SelfMID:    byte(*selfMID),
			UART:       hostUART,
			Clock:      clock,
			Logger:     logger,
			HostPort:   true,
			Forwarding: true,
			Name:       "sp4",
		})
		gw.Link(hostGW)
		hostGW.Link(gw)
		ports["sp4"] = hostGW
	}

	if *pcapFile != "" {
		rec := j1708gw.NewBusRecorder(*pcapFile, logger)
		defer rec.Close()
		gw.SetRecorder(rec)
		if hostGW != nil {
			hostGW.SetRecorder(rec)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runLoop(ctx, gw)
	if hostGW != nil {
		go runLoop(ctx, hostGW)
	}
	if *interactive {
		go runCommandLoop(ctx, ports)
	}
	<-ctx.Done()
	log.Info("j1708gw: shutting down")
}

// runCommandLoop reads j1708config/j1708send lines from stdin until ctx
// is done or stdin is closed, printing each command's response.
func runCommandLoop(ctx context.Context, ports map[string]*j1708gw.Gateway) {
	router := newCommandRouter(ports)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		fmt.Println(router.Dispatch(line))
	}
}

func runLoop(ctx context.Context, gw *j1708gw.Gateway) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			gw.Update()
		}
	}
}
