// Package bus is the in-process message fabric between the measurement
// service and its consumers. Topics are string paths; the most recent
// retained message per topic is replayed to late subscribers, so a new
// consumer immediately sees the last sample and service state.
package bus

import (
	"strings"
	"sync"
)

// Topic is a sequence of path segments, e.g. T("bms", "cells").
type Topic []string

// T builds a topic from segments.
func T(segments ...string) Topic { return Topic(segments) }

func (t Topic) String() string { return strings.Join(t, "/") }

// Message is a published value. Retained messages are stored on the
// topic and replayed to subsequent subscribers; a retained message
// with a nil payload clears the stored one.
type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

// Subscription delivers messages for one topic. Delivery never blocks
// the publisher: when the queue is full the oldest message is dropped.
type Subscription struct {
	topic Topic
	ch    chan *Message
	bus   *Bus
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.bus.unsubscribe(s) }

type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

// Bus routes messages from publishers to topic subscribers.
type Bus struct {
	mu   sync.Mutex
	root *node
	qLen int
}

// New creates a bus; queueLen is the per-subscription buffer size.
func New(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

// Subscribe registers interest in an exact topic. If a retained
// message is stored there it is delivered immediately.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, b.qLen),
		bus:   b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, seg := range topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[seg]
		if !ok {
			child = &node{}
			n.children[seg] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)
	if n.retained != nil {
		sub.ch <- n.retained
	}
	return sub
}

// Publish delivers msg to all subscribers of its topic.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, seg := range msg.Topic {
		if n.children == nil {
			if !msg.Retained {
				return
			}
			n.children = make(map[string]*node)
		}
		child, ok := n.children[seg]
		if !ok {
			if !msg.Retained {
				return
			}
			child = &node{}
			n.children[seg] = child
		}
		n = child
	}

	for _, sub := range n.subs {
		select {
		case sub.ch <- msg:
		default:
			// Queue full: drop the oldest. The subscriber may drain
			// concurrently, so neither step can block.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- msg:
			default:
			}
		}
	}

	if msg.Retained {
		if msg.Payload == nil {
			n.retained = nil
		} else {
			n.retained = msg
		}
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, seg := range sub.topic {
		if n.children == nil {
			return
		}
		child, ok := n.children[seg]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}

	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			close(sub.ch)
			break
		}
	}

	// Prune empty nodes.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		parent := stack[i]
		key := sub.topic[i]
		child := parent.children[key]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, key)
		} else {
			break
		}
	}
}
