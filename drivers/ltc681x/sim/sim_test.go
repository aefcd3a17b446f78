package sim

import (
	"errors"
	"testing"
	"time"

	"tinygo.org/x/drivers"

	"cellstack-go/drivers/ltc681x"
)

var _ drivers.SPI = (*Chain)(nil)

func TestChain_ReadCellVoltages(t *testing.T) {
	chain := NewChain(2)
	chain.Device(0).CellMicrovolts = [6]uint32{3_650_000, 3_651_500, 3_649_900, 3_700_000, 3_700_100, 3_700_200}
	chain.Device(1).CellMicrovolts = [6]uint32{3_100_000, 3_200_000, 3_300_000, 3_400_000, 3_500_000, 3_600_000}

	dev, err := ltc681x.New(chain, chain.CS(), ltc681x.Config{ChainLength: 2})
	if err != nil {
		t.Fatal(err)
	}
	groups, err := dev.ReadRegisterGroup(ltc681x.CellVoltageGroupA)
	if err != nil {
		t.Fatalf("read group A: %v", err)
	}
	if got, want := groups[0][0], uint16(36500); got != want {
		t.Errorf("device 0 cell 1 raw = %d, want %d", got, want)
	}
	if got, want := groups[1][2], uint16(33000); got != want {
		t.Errorf("device 1 cell 3 raw = %d, want %d", got, want)
	}

	groups, err = dev.ReadRegisterGroup(ltc681x.CellVoltageGroupB)
	if err != nil {
		t.Fatalf("read group B: %v", err)
	}
	if got, want := groups[1][0], uint16(34000); got != want {
		t.Errorf("device 1 cell 4 raw = %d, want %d", got, want)
	}
}

func TestChain_ConfigWriteReadBack(t *testing.T) {
	chain := NewChain(1)
	dev, err := ltc681x.New(chain, chain.CS(), ltc681x.Config{ChainLength: 1})
	if err != nil {
		t.Fatal(err)
	}

	cfg := ltc681x.DefaultConfiguration()
	cfg.EnableReferencePower()
	if err := cfg.SetOverVoltageComp(4_200_000); err != nil {
		t.Fatal(err)
	}
	if err := dev.WriteConfiguration([]ltc681x.Configuration{cfg}); err != nil {
		t.Fatalf("write configuration: %v", err)
	}
	if chain.Device(0).Config != cfg.RegisterA() {
		t.Errorf("stored config = % X, want % X", chain.Device(0).Config, cfg.RegisterA())
	}

	groups, err := dev.ReadRegisterGroup(ltc681x.ConfigGroupA)
	if err != nil {
		t.Fatalf("read config back: %v", err)
	}
	want := cfg.RegisterA()
	if byte(groups[0][0]) != want[0] || byte(groups[0][0]>>8) != want[1] {
		t.Errorf("config word 0 = %04X, want bytes %02X %02X", groups[0][0], want[0], want[1])
	}
}

func TestChain_ConversionPolling(t *testing.T) {
	chain := NewChain(1)
	chain.ConversionTime = 20 * time.Millisecond

	dev, err := ltc681x.New(chain, chain.CS(), ltc681x.Config{ChainLength: 1})
	if err != nil {
		t.Fatal(err)
	}
	dev = dev.EnableSDOPolling()

	if err := dev.StartConversion(ltc681x.ADCModeNormal, ltc681x.CellSelectionAll, false); err != nil {
		t.Fatalf("start conversion: %v", err)
	}
	done, err := dev.PollConversionDone()
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if done {
		t.Fatal("reported done immediately after start")
	}

	deadline := time.Now().Add(time.Second)
	for !done {
		if time.Now().After(deadline) {
			t.Fatal("conversion never completed")
		}
		time.Sleep(5 * time.Millisecond)
		if done, err = dev.PollConversionDone(); err != nil {
			t.Fatalf("poll: %v", err)
		}
	}
}

func TestChain_InjectedFault(t *testing.T) {
	chain := NewChain(1)
	cause := errors.New("injected")
	chain.FailNextTransfer = cause

	dev, err := ltc681x.New(chain, chain.CS(), ltc681x.Config{ChainLength: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.ReadRegisterGroup(ltc681x.CellVoltageGroupA); !errors.Is(err, cause) {
		t.Errorf("err = %v, want wrapped injected cause", err)
	}
}
