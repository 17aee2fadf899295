// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"time"

	"github.com/hypebeast/go-osc/osc"
)

const (
	OSCSampleAddr = "/redirection/sample"
	OSCSumsAddr   = "/redirection/sums"
)

// OSCForwarder mirrors every sample to an OSC server, so that sound or
// visual patches can follow the redirection signal live.
type OSCForwarder struct {
	Host   string
	Port   int
	client *osc.Client
}

func NewOSCForwarder(host string, port int) *OSCForwarder {
	return &OSCForwarder{
		Host:   host,
		Port:   port,
		client: osc.NewClient(host, port),
	}
}

// Packet builds the bundle sent for s.
func (f *OSCForwarder) Packet(s Sample) *osc.Bundle {
	b := osc.NewBundle(time.Now())

	msg := osc.NewMessage(OSCSampleAddr)
	msg.Append(float32(s.Time))
	msg.Append(float32(s.OverTime))
	msg.Append(float32(s.Rotational))
	msg.Append(float32(s.Curvature))
	msg.Append(float32(s.Hybrid))
	msg.Append(float32(s.Total))
	b.Append(msg)

	sums := osc.NewMessage(OSCSumsAddr)
	sums.Append(float32(s.OverTimeSum))
	sums.Append(float32(s.RotationalSum))
	sums.Append(float32(s.CurvatureSum))
	b.Append(sums)

	return b
}

func (f *OSCForwarder) Forward(s Sample) error {
	if err := f.client.Send(f.Packet(s)); err != nil {
		oscErrors.Inc()
		return fmt.Errorf("unable to forward sample to %v:%d: %w", f.Host, f.Port, err)
	}
	return nil
}
