// cmd/stacksim runs the full monitoring stack against a simulated
// device chain. Useful for exercising the service, bus and telemetry
// wiring without hardware on the bench.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"cellstack-go/bus"
	"cellstack-go/drivers/ltc681x"
	"cellstack-go/drivers/ltc681x/sim"
	"cellstack-go/services/heartbeat"
	"cellstack-go/services/stackmon"
	"cellstack-go/services/telemetry"
)

func main() {
	var (
		chainLen = flag.Int("chain", 2, "number of simulated devices in the chain")
		interval = flag.Int("interval", 500, "sample interval in milliseconds")
		sdoPoll  = flag.Bool("sdo-poll", false, "use line-hold completion polling")
		broker   = flag.String("broker", "", "optional MQTT broker URL, e.g. tcp://localhost:1883")
		duration = flag.Duration("for", 0, "stop after this long (0 runs until interrupted)")
	)
	flag.Parse()
	if *interval <= 0 {
		log.Fatal("interval must be positive")
	}

	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.SetPrefix("[stacksim] ")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	chain := sim.NewChain(*chainLen)
	chain.ConversionTime = 3 * time.Millisecond
	seedCells(chain, *chainLen)

	dev, err := ltc681x.New(chain, chain.CS(), ltc681x.Config{ChainLength: *chainLen})
	if err != nil {
		log.Fatalf("device: %v", err)
	}
	if *sdoPoll {
		dev = dev.EnableSDOPolling()
	}

	cfg := stackmon.Config{
		ChainLength:    *chainLen,
		CellsPerDevice: 6,
		ADCMode:        "normal",
		SDOPolling:     *sdoPoll,
		IntervalMs:     *interval,
		PollTimeoutMs:  500,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	b := bus.New(8)
	svc, err := stackmon.New(dev, b, cfg)
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	hb := &heartbeat.Service{B: b, Interval: 2 * time.Second}
	go func() { _ = hb.Run(ctx) }()

	if *broker != "" {
		pub, err := telemetry.New(telemetry.Config{BrokerURL: *broker})
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
		log.Printf("forwarding samples to %s", *broker)
	}

	go printSamples(ctx, b)

	log.Printf("running: chain=%d interval=%dms sdo_poll=%v", *chainLen, cfg.IntervalMs, *sdoPoll)
	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("run: %v", err)
	}
	log.Print("stopped")
}

// seedCells gives each simulated device a distinct, plausible set of
// cell voltages so the console output is easy to eyeball.
func seedCells(chain *sim.Chain, n int) {
	for i := 0; i < n; i++ {
		dev := chain.Device(i)
		for c := range dev.CellMicrovolts {
			dev.CellMicrovolts[c] = 3_600_000 + uint32(i)*10_000 + uint32(c)*1_000
		}
	}
}

func printSamples(ctx context.Context, b *bus.Bus) {
	sub := b.Subscribe(stackmon.TopicCells())
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			sample, ok := msg.Payload.(*stackmon.Sample)
			if !ok {
				continue
			}
			for i, cells := range sample.DevicesUV {
				log.Printf("dev %d: %v uV", i, cells)
			}
		}
	}
}
