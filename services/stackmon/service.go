// Package stackmon runs the measurement loop for one battery stack:
// apply chip configuration, start conversions, await completion, read
// cell voltages and publish samples on the internal bus.
package stackmon

import (
	"context"
	"errors"
	"log"
	"time"

	"cellstack-go/bus"
	"cellstack-go/drivers/ltc681x"
	"cellstack-go/errcode"
)

// Bus topics.
func TopicCells() bus.Topic { return bus.T("bms", "cells") }
func TopicState() bus.Topic { return bus.T("bms", "state") }

// Sample is one synchronized reading of the whole chain.
type Sample struct {
	TS int64 `json:"ts_ns"`
	// DevicesUV holds per-device, per-cell voltages in microvolts,
	// chain order.
	DevicesUV [][]uint32 `json:"devices_uv"`
}

// State is the service health message, retained on the bus.
type State struct {
	Level string `json:"level"` // "ready" or "fault"
	Code  string `json:"code"`
	TS    int64  `json:"ts_ns"`
}

// ErrConversionTimeout reports that SDO polling did not observe
// completion within the configured bound. The poll sequence stays
// open; the next cycle resumes it.
var ErrConversionTimeout = errors.New("stackmon: conversion did not complete in time")

// Service owns one device chain and publishes its readings.
type Service struct {
	dev *ltc681x.Device
	b   *bus.Bus
	cfg Config

	mode ltc681x.ADCMode
}

// New wires a service. The device's poll strategy must match
// cfg.SDOPolling; callers construct the device accordingly.
func New(dev *ltc681x.Device, b *bus.Bus, cfg Config) (*Service, error) {
	mode, err := cfg.adcMode()
	if err != nil {
		return nil, err
	}
	if dev.ChainLength() != cfg.ChainLength {
		return nil, errors.New("stackmon: device chain length does not match config")
	}
	return &Service{dev: dev, b: b, cfg: cfg, mode: mode}, nil
}

// BuildConfiguration encodes the per-device configuration registers
// from the service config. All devices get identical settings.
func (c Config) BuildConfiguration() ([]ltc681x.Configuration, error) {
	one := ltc681x.DefaultConfiguration()
	if c.ReferencePowered {
		one.EnableReferencePower()
	}
	if err := one.SetUnderVoltageComp(c.UnderVoltageUV); err != nil {
		return nil, err
	}
	if err := one.SetOverVoltageComp(c.OverVoltageUV); err != nil {
		return nil, err
	}
	for _, pin := range c.GPIOPullDowns {
		if err := one.EnableGPIOPullDown(ltc681x.GPIO(pin)); err != nil {
			return nil, err
		}
	}
	cfgs := make([]ltc681x.Configuration, c.ChainLength)
	for i := range cfgs {
		cfgs[i] = one
	}
	return cfgs, nil
}

// Apply writes the chip configuration to every device in the chain.
func (s *Service) Apply() error {
	cfgs, err := s.cfg.BuildConfiguration()
	if err != nil {
		return err
	}
	return s.dev.WriteConfiguration(cfgs)
}

// SampleOnce runs one conversion and reads the configured cells from
// every device.
func (s *Service) SampleOnce() (Sample, error) {
	if err := s.dev.StartConversion(s.mode, ltc681x.CellSelectionAll, s.cfg.DischargePermitted); err != nil {
		return Sample{}, err
	}
	if s.cfg.SDOPolling {
		if err := s.awaitConversion(); err != nil {
			return Sample{}, err
		}
	} else {
		time.Sleep(settleTime(s.mode))
	}

	groupA, err := s.dev.ReadRegisterGroup(ltc681x.CellVoltageGroupA)
	if err != nil {
		return Sample{}, err
	}
	var groupB [][3]uint16
	if s.cfg.CellsPerDevice > 3 {
		if groupB, err = s.dev.ReadRegisterGroup(ltc681x.CellVoltageGroupB); err != nil {
			return Sample{}, err
		}
	}

	sample := Sample{
		TS:        time.Now().UnixNano(),
		DevicesUV: make([][]uint32, s.cfg.ChainLength),
	}
	for i := 0; i < s.cfg.ChainLength; i++ {
		cells := make([]uint32, s.cfg.CellsPerDevice)
		for c := 0; c < s.cfg.CellsPerDevice; c++ {
			var raw uint16
			if c < 3 {
				raw = groupA[i][c]
			} else {
				raw = groupB[i][c-3]
			}
			cells[c] = uint32(raw) * 100 // 100µV per LSB
		}
		sample.DevicesUV[i] = cells
	}
	return sample, nil
}

// awaitConversion is the bounded SDO polling loop. On timeout the poll
// sequence is left open for the next cycle.
func (s *Service) awaitConversion() error {
	deadline := time.Now().Add(time.Duration(s.cfg.PollTimeoutMs) * time.Millisecond)
	for {
		done, err := s.dev.PollConversionDone()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrConversionTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

// Run applies configuration and samples on the configured interval
// until ctx is cancelled. Each sample is published retained on
// TopicCells; health transitions go retained on TopicState.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Apply(); err != nil {
		s.publishState("fault", errcode.MapDriverErr(err))
		return err
	}
	s.publishState("ready", errcode.OK)

	ticker := time.NewTicker(time.Duration(s.cfg.IntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		sample, err := s.SampleOnce()
		if err != nil {
			code := s.codeFor(err)
			log.Printf("[stackmon] sample failed: %v (%s)", err, code)
			s.publishState("fault", code)
		} else {
			s.b.Publish(&bus.Message{Topic: TopicCells(), Payload: &sample, Retained: true})
			s.publishState("ready", errcode.OK)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) codeFor(err error) errcode.Code {
	if errors.Is(err, ErrConversionTimeout) {
		return errcode.ConversionTimeout
	}
	return errcode.MapDriverErr(err)
}

func (s *Service) publishState(level string, code errcode.Code) {
	s.b.Publish(&bus.Message{
		Topic:    TopicState(),
		Payload:  &State{Level: level, Code: string(code), TS: time.Now().UnixNano()},
		Retained: true,
	})
}

// settleTime is the worst-case conversion duration per mode for a full
// 6-cell measurement, used when SDO polling is off.
func settleTime(mode ltc681x.ADCMode) time.Duration {
	switch mode {
	case ltc681x.ADCModeFast:
		return 2 * time.Millisecond
	case ltc681x.ADCModeNormal:
		return 3 * time.Millisecond
	case ltc681x.ADCModeFiltered:
		return 202 * time.Millisecond
	default:
		return 13 * time.Millisecond
	}
}
