// cmd/stackmon monitors a battery stack over a USB serial SPI bridge,
// publishing cell voltages and service health, optionally forwarding
// them to an MQTT broker.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"cellstack-go/bus"
	"cellstack-go/drivers/ltc681x"
	"cellstack-go/drivers/serialbridge"
	"cellstack-go/services/heartbeat"
	"cellstack-go/services/stackmon"
	"cellstack-go/services/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "stackmon.yaml", "path to the stack config file")
		port       = flag.String("port", "/dev/ttyACM0", "serial port of the SPI bridge adapter")
		baud       = flag.Int("baud", 115200, "serial baud rate")
		broker     = flag.String("broker", "", "optional MQTT broker URL, e.g. tcp://localhost:1883")
		clientID   = flag.String("client-id", "", "MQTT client id (defaults to cellstack)")
	)
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("[stackmon] ")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := stackmon.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	bridge, err := serialbridge.Open(*port, *baud)
	if err != nil {
		log.Fatalf("bridge: %v", err)
	}
	defer bridge.Close()
	log.Printf("bridge open on %s @ %d", *port, *baud)

	dev, err := ltc681x.New(bridge, bridge.CS(), ltc681x.Config{ChainLength: cfg.ChainLength})
	if err != nil {
		log.Fatalf("device: %v", err)
	}
	if cfg.SDOPolling {
		dev = dev.EnableSDOPolling()
	}

	b := bus.New(8)
	svc, err := stackmon.New(dev, b, cfg)
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	hb := &heartbeat.Service{B: b}
	go func() { _ = hb.Run(ctx) }()

	if *broker != "" {
		pub, err := telemetry.New(telemetry.Config{BrokerURL: *broker, ClientID: *clientID})
		if err != nil {
			log.Fatalf("telemetry: %v", err)
		}
		if err := pub.Connect(); err != nil {
			log.Fatalf("telemetry connect: %v", err)
		}
		defer pub.Close()
		go func() {
			if err := pub.Run(ctx, b, stackmon.TopicCells(), stackmon.TopicState(), heartbeat.Topic()); err != nil && ctx.Err() == nil {
				log.Printf("telemetry: %v", err)
			}
		}()
		log.Printf("forwarding to %s", *broker)
	}

	log.Printf("monitoring: chain=%d cells=%d mode=%s interval=%dms",
		cfg.ChainLength, cfg.CellsPerDevice, cfg.ADCMode, cfg.IntervalMs)
	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("run: %v", err)
	}
	log.Print("stopped")
}
